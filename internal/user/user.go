package user

import (
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type Role string

const (
	RoleMember      Role = "member"
	RoleChurchAdmin Role = "church_admin"
	RoleSuperAdmin  Role = "super_admin"
)

var (
	ErrNotFound     = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrWeakPassword = errors.New("password must be at least 8 characters")
)

const MinPasswordLength = 8

type User struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primary_key" json:"id"`
	Name         string         `json:"name"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	GoogleID     *string        `gorm:"uniqueIndex" json:"-"`
	PasswordHash string         `json:"-"`
	Roles        pq.StringArray `gorm:"type:text[];not null" json:"roles"`
	ChurchID     *uuid.UUID     `gorm:"type:uuid;index" json:"church_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (u User) HasRole(role Role) bool {
	return slices.Contains(u.Roles, string(role))
}
