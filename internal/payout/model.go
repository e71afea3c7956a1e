package payout

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Status string

const (
	StatusRequested Status = "requested"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Categories accepted for a payout request.
var Categories = []string{"operations", "salaries", "maintenance", "outreach", "events", "other"}

type Payout struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primary_key" json:"id"`
	ChurchID    uuid.UUID `gorm:"type:uuid;not null;index" json:"church_id"`
	Reference   string    `gorm:"uniqueIndex;not null" json:"reference"`
	Amount      int64     `gorm:"not null;check:amount > 0" json:"amount"`
	Currency    string    `gorm:"type:varchar(3);not null" json:"currency"`
	Category    string    `gorm:"not null" json:"category"`
	Description string    `json:"description"`
	Status      Status    `gorm:"not null;index;default:requested" json:"status"`

	RequestedBy     uuid.UUID  `gorm:"type:uuid;not null" json:"requested_by"`
	ProcessedBy     *uuid.UUID `gorm:"type:uuid" json:"processed_by,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	// ledger entry that debited the church wallet
	TransactionID *uuid.UUID `gorm:"type:uuid" json:"transaction_id,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Payout) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

type Filter struct {
	ChurchID *uuid.UUID
	Status   *Status
	Limit    int
	Offset   int
}
