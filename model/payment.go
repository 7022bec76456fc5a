package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentStatus represents the lifecycle state of a payment attempt
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusExpired    PaymentStatus = "expired"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusExpired, PaymentStatusCancelled:
		return true
	}
	return false
}

// PaymentPurpose distinguishes an order payment from a wallet top-up
type PaymentPurpose string

const (
	PaymentPurposeOrderPayment PaymentPurpose = "order_payment"
	PaymentPurposeWalletTopUp  PaymentPurpose = "wallet_topup"
)

// Payment represents one attempt to collect money via the payment gateway.
// Multiple payments may exist per order (retries), but at most one completes.
type Payment struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// OrderID is nil for wallet top-ups; WalletID is nil for order payments.
	OrderID  *uuid.UUID     `gorm:"type:uuid;index" json:"order_id"`
	WalletID *uuid.UUID     `gorm:"type:uuid;index" json:"wallet_id"`
	Purpose  PaymentPurpose `gorm:"type:varchar(20);not null;default:'order_payment'" json:"purpose"`

	PaymentNumber string        `gorm:"type:varchar(50);uniqueIndex;not null" json:"payment_number"`
	Status        PaymentStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Amount        float64       `gorm:"type:decimal(18,2);not null" json:"amount"`
	Currency      string        `gorm:"type:varchar(10);default:'VND'" json:"currency"`

	Provider              string `gorm:"type:varchar(50);not null" json:"provider"`
	PaymentMethod         string `gorm:"type:varchar(50)" json:"payment_method,omitempty"`
	ExternalTransactionID string `gorm:"type:varchar(200);index" json:"external_transaction_id,omitempty"`
	PaymentURL            string `gorm:"type:text" json:"payment_url,omitempty"`

	PaidAt    *time.Time `json:"paid_at"`
	ExpiredAt *time.Time `json:"expired_at"`

	FailureReason string         `gorm:"type:varchar(500)" json:"failure_reason,omitempty"`
	Metadata      datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`

	// Relationships
	Order  *Order            `gorm:"foreignKey:OrderID" json:"order,omitempty"`
	Wallet *InstructorWallet `gorm:"foreignKey:WalletID" json:"wallet,omitempty"`
}

// TableName specifies the table name for Payment
func (Payment) TableName() string {
	return "payments"
}

// BeforeCreate assigns a UUID primary key
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
