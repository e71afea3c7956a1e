package church

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/zjoart/churpay/pkg/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	CreateChurch(ctx context.Context, church *Church) error
	GetChurch(ctx context.Context, id uuid.UUID) (*Church, error)
	LockChurch(ctx context.Context, id uuid.UUID) (*Church, error)
	GetChurchBySetupToken(ctx context.Context, tokenHash string) (*Church, error)
	ListChurches(ctx context.Context, filter Filter) ([]Church, int64, error)
	// UpdateChurchStatus persists the status fields of church only if the
	// stored status still equals from.
	UpdateChurchStatus(ctx context.Context, church *Church, from Status) error
	// ClaimSetupToken clears a live setup token and returns its church. The
	// read and the clear happen under one row lock, so a token can be claimed
	// once.
	ClaimSetupToken(ctx context.Context, tokenHash string, now time.Time) (*Church, error)
	LinkAdminUser(ctx context.Context, churchID, userID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateChurch(ctx context.Context, church *Church) error {
	err := database.Conn(ctx, r.db).Create(church).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateChurch
	}
	return database.Wrap("create church", err)
}

func (r *repository) GetChurch(ctx context.Context, id uuid.UUID) (*Church, error) {
	var church Church
	err := database.Conn(ctx, r.db).Where("id = ?", id).First(&church).Error
	return found(&church, err)
}

func (r *repository) LockChurch(ctx context.Context, id uuid.UUID) (*Church, error) {
	var church Church
	err := database.Conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&church).Error
	return found(&church, err)
}

func (r *repository) GetChurchBySetupToken(ctx context.Context, tokenHash string) (*Church, error) {
	var church Church
	err := database.Conn(ctx, r.db).Where("setup_token_hash = ?", tokenHash).First(&church).Error
	return found(&church, err)
}

func (r *repository) ListChurches(ctx context.Context, filter Filter) ([]Church, int64, error) {
	byStatus := func(db *gorm.DB) *gorm.DB {
		if filter.Status != nil {
			return db.Where("status = ?", *filter.Status)
		}
		return db
	}

	var count int64
	if err := database.Conn(ctx, r.db).Model(&Church{}).Scopes(byStatus).Count(&count).Error; err != nil {
		return nil, 0, database.Wrap("count churches", err)
	}

	var churches []Church
	err := database.Conn(ctx, r.db).Scopes(byStatus).
		Order("created_at desc").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&churches).Error
	if err != nil {
		return nil, 0, database.Wrap("list churches", err)
	}
	return churches, count, nil
}

func (r *repository) UpdateChurchStatus(ctx context.Context, church *Church, from Status) error {
	res := database.Conn(ctx, r.db).Model(&Church{}).
		Where("id = ? AND status = ?", church.ID, from).
		Updates(map[string]interface{}{
			"status":                 church.Status,
			"status_reason":          church.StatusReason,
			"suspended_from":         church.SuspendedFrom,
			"reviewed_by":            church.ReviewedBy,
			"reviewed_at":            church.ReviewedAt,
			"setup_token_hash":       church.SetupTokenHash,
			"setup_token_expires_at": church.SetupTokenExpiresAt,
		})

	if res.Error != nil {
		return database.Wrap("update church status", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInvalidState
	}
	return nil
}

func (r *repository) ClaimSetupToken(ctx context.Context, tokenHash string, now time.Time) (*Church, error) {
	conn := database.Conn(ctx, r.db)

	var church Church
	err := conn.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("setup_token_hash = ?", tokenHash).
		First(&church).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidOrExpiredToken
	}
	if err != nil {
		return nil, database.Wrap("claim setup token", err)
	}

	if church.SetupTokenExpiresAt == nil || now.After(*church.SetupTokenExpiresAt) {
		return nil, ErrInvalidOrExpiredToken
	}

	res := conn.Model(&Church{}).
		Where("id = ? AND setup_token_hash = ?", church.ID, tokenHash).
		Updates(map[string]interface{}{
			"setup_token_hash":       nil,
			"setup_token_expires_at": nil,
		})
	if res.Error != nil {
		return nil, database.Wrap("claim setup token", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrInvalidOrExpiredToken
	}

	church.SetupTokenHash = nil
	church.SetupTokenExpiresAt = nil
	return &church, nil
}

func (r *repository) LinkAdminUser(ctx context.Context, churchID, userID uuid.UUID) error {
	res := database.Conn(ctx, r.db).Model(&Church{}).
		Where("id = ?", churchID).
		Update("admin_user_id", userID)
	if res.Error != nil {
		return database.Wrap("link church admin", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func found(c *Church, err error) (*Church, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, database.Wrap("get church", err)
	}
	return c, nil
}
