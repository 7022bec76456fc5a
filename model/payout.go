package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PayoutStatus represents the lifecycle state of a payout request
type PayoutStatus string

const (
	PayoutStatusRequested PayoutStatus = "requested"
	PayoutStatusApproved  PayoutStatus = "approved"
	PayoutStatusRejected  PayoutStatus = "rejected"
	PayoutStatusCompleted PayoutStatus = "completed"
)

// PayoutRequest is an instructor withdrawal request reviewed by an admin.
// At most one payout may be in Requested state per instructor at a time.
type PayoutRequest struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	RequestNumber string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"request_number"`
	InstructorID  uuid.UUID `gorm:"type:uuid;not null;index" json:"instructor_id"`
	WalletID      uuid.UUID `gorm:"type:uuid;not null;index" json:"wallet_id"`

	Amount   float64      `gorm:"type:decimal(18,2);not null" json:"amount"`
	Currency string       `gorm:"type:varchar(10);default:'VND'" json:"currency"`
	Status   PayoutStatus `gorm:"type:varchar(20);not null;default:'requested';index" json:"status"`

	// Bank transfer details (snapshot at request time)
	BankName          string `gorm:"type:varchar(200);not null" json:"bank_name"`
	BankAccountNumber string `gorm:"type:varchar(50);not null" json:"bank_account_number"`
	BankAccountName   string `gorm:"type:varchar(200);not null" json:"bank_account_name"`

	RequestedAt time.Time  `gorm:"not null" json:"requested_at"`
	ApprovedBy  *uuid.UUID `gorm:"type:uuid" json:"approved_by"`
	ApprovedAt  *time.Time `json:"approved_at"`
	ProcessedAt *time.Time `json:"processed_at"`

	RejectedBy      *uuid.UUID `gorm:"type:uuid" json:"rejected_by"`
	RejectedAt      *time.Time `json:"rejected_at"`
	RejectionReason string     `gorm:"type:varchar(500)" json:"rejection_reason,omitempty"`
}

// TableName specifies the table name for PayoutRequest
func (PayoutRequest) TableName() string {
	return "payout_requests"
}

// BeforeCreate assigns a UUID primary key
func (p *PayoutRequest) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
