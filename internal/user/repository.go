package user

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/zjoart/churpay/pkg/database"
	"gorm.io/gorm"
)

type Repository interface {
	FindByGoogleID(ctx context.Context, googleID string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByGoogleID(ctx context.Context, googleID string) (*User, error) {
	var user User
	err := database.Conn(ctx, r.db).Where("google_id = ?", googleID).First(&user).Error
	return found(&user, err)
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := database.Conn(ctx, r.db).Where("email = ?", NormalizeEmail(email)).First(&user).Error
	return found(&user, err)
}

func (r *repository) CreateUser(ctx context.Context, user *User) error {
	user.Email = NormalizeEmail(user.Email)
	err := database.Conn(ctx, r.db).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrEmailTaken
	}
	return database.Wrap("create user", err)
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	err := database.Conn(ctx, r.db).Where("id = ?", id).First(&user).Error
	return found(&user, err)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func found(u *User, err error) (*User, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, database.Wrap("find user", err)
	}
	return u, nil
}
