package church

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusSuspended   Status = "suspended"
)

type Church struct {
	ID                 uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primary_key" json:"id"`
	Name               string    `gorm:"not null" json:"name"`
	RegistrationNumber string    `gorm:"uniqueIndex;not null" json:"registration_number"`
	Denomination       string    `json:"denomination"`
	Address            string    `json:"address"`
	City               string    `json:"city"`
	Province           string    `json:"province"`

	AdminFirstName string `json:"admin_first_name"`
	AdminLastName  string `json:"admin_last_name"`
	AdminEmail     string `gorm:"not null" json:"admin_email"`
	AdminPhone     string `json:"admin_phone"`

	BankName          string `json:"bank_name"`
	BankAccountNumber string `json:"bank_account_number"`
	BankBranchCode    string `json:"bank_branch_code"`
	BankAccountHolder string `json:"bank_account_holder"`

	Status        Status  `gorm:"not null;index;default:pending" json:"status"`
	StatusReason  *string `json:"status_reason,omitempty"`
	SuspendedFrom *Status `json:"-"`

	SetupTokenHash      *string    `gorm:"uniqueIndex" json:"-"`
	SetupTokenExpiresAt *time.Time `json:"-"`

	// set by the super-admin who approved or rejected the application
	ReviewedBy  *uuid.UUID `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	AdminUserID *uuid.UUID `gorm:"type:uuid" json:"admin_user_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Church) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// CanReceiveFunds reports whether donations and payouts may touch the
// church's wallet: it must be approved and its admin must have finished setup.
func (c Church) CanReceiveFunds() bool {
	return c.Status == StatusApproved && c.AdminUserID != nil
}

type Filter struct {
	Status *Status
	Limit  int
	Offset int
}
