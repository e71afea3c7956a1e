package payout

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/zjoart/churpay/pkg/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	CreatePayout(ctx context.Context, payout *Payout) error
	GetPayout(ctx context.Context, id uuid.UUID) (*Payout, error)
	LockPayout(ctx context.Context, id uuid.UUID) (*Payout, error)
	// UpdatePayout writes the decision fields of payout if its stored status
	// is still from.
	UpdatePayout(ctx context.Context, payout *Payout, from Status) error
	ListPayouts(ctx context.Context, filter Filter) ([]Payout, int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreatePayout(ctx context.Context, payout *Payout) error {
	return database.Wrap("create payout", database.Conn(ctx, r.db).Create(payout).Error)
}

func (r *repository) GetPayout(ctx context.Context, id uuid.UUID) (*Payout, error) {
	var p Payout
	err := database.Conn(ctx, r.db).Where("id = ?", id).First(&p).Error
	return found(&p, err)
}

func (r *repository) LockPayout(ctx context.Context, id uuid.UUID) (*Payout, error) {
	var p Payout
	err := database.Conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&p).Error
	return found(&p, err)
}

func (r *repository) UpdatePayout(ctx context.Context, payout *Payout, from Status) error {
	res := database.Conn(ctx, r.db).Model(&Payout{}).
		Where("id = ? AND status = ?", payout.ID, from).
		Updates(map[string]interface{}{
			"status":           payout.Status,
			"processed_by":     payout.ProcessedBy,
			"processed_at":     payout.ProcessedAt,
			"rejection_reason": payout.RejectionReason,
			"transaction_id":   payout.TransactionID,
			"completed_at":     payout.CompletedAt,
		})

	if res.Error != nil {
		return database.Wrap("update payout", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInvalidState
	}
	return nil
}

func (r *repository) ListPayouts(ctx context.Context, filter Filter) ([]Payout, int64, error) {
	var count int64
	if err := database.Conn(ctx, r.db).Model(&Payout{}).Scopes(filtered(filter)).Count(&count).Error; err != nil {
		return nil, 0, database.Wrap("count payouts", err)
	}

	var payouts []Payout
	err := database.Conn(ctx, r.db).Scopes(filtered(filter)).
		Order("created_at desc").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&payouts).Error
	if err != nil {
		return nil, 0, database.Wrap("list payouts", err)
	}
	return payouts, count, nil
}

func filtered(filter Filter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if filter.ChurchID != nil {
			db = db.Where("church_id = ?", *filter.ChurchID)
		}
		if filter.Status != nil {
			db = db.Where("status = ?", *filter.Status)
		}
		return db
	}
}

func found(p *Payout, err error) (*Payout, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, database.Wrap("get payout", err)
	}
	return p, nil
}
