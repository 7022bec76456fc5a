package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TransactionType classifies instructor wallet ledger entries
type TransactionType string

const (
	TransactionTypeSale          TransactionType = "sale"
	TransactionTypeTopUp         TransactionType = "topup"
	TransactionTypePayout        TransactionType = "payout"
	TransactionTypeCouponHold    TransactionType = "coupon_hold"
	TransactionTypeCouponUsage   TransactionType = "coupon_usage"
	TransactionTypeCouponRelease TransactionType = "coupon_release"
	TransactionTypeAdjustment    TransactionType = "adjustment"
)

// InstructorWallet holds an instructor's spendable and held funds.
// AvailableBalance and HoldBalance never go negative; every change is
// paired with a TransactionLedger row in the same transaction.
type InstructorWallet struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	InstructorID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"instructor_id"`

	AvailableBalance float64 `gorm:"type:decimal(18,2);default:0" json:"available_balance"`
	// Funds reserved for active coupon commitments.
	HoldBalance    float64 `gorm:"type:decimal(18,2);default:0" json:"hold_balance"`
	TotalEarnings  float64 `gorm:"type:decimal(18,2);default:0" json:"total_earnings"`
	TotalWithdrawn float64 `gorm:"type:decimal(18,2);default:0" json:"total_withdrawn"`
	Currency       string  `gorm:"type:varchar(10);default:'VND'" json:"currency"`

	LastPayoutAt *time.Time `json:"last_payout_at"`
	IsActive     bool       `gorm:"default:true" json:"is_active"`

	BankAccountInfo datatypes.JSON `gorm:"type:jsonb" json:"bank_account_info,omitempty"`

	// Relationships
	Transactions   []TransactionLedger `gorm:"foreignKey:WalletID" json:"-"`
	PayoutRequests []PayoutRequest     `gorm:"foreignKey:WalletID" json:"-"`
}

// TableName specifies the table name for InstructorWallet
func (InstructorWallet) TableName() string {
	return "instructor_wallets"
}

// BeforeCreate assigns a UUID primary key
func (w *InstructorWallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// TransactionLedger is an append-only audit row for one instructor wallet
// balance change. Rows are never mutated or deleted; the sum of rows for a
// wallet must reconcile with its current balance.
type TransactionLedger struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	WalletID uuid.UUID       `gorm:"type:uuid;not null;index" json:"wallet_id"`
	Type     TransactionType `gorm:"type:varchar(30);not null;index" json:"type"`
	Amount   float64         `gorm:"type:decimal(18,2);not null" json:"amount"`
	Currency string          `gorm:"type:varchar(10);default:'VND'" json:"currency"`

	BalanceBefore float64 `gorm:"type:decimal(18,2);not null" json:"balance_before"`
	BalanceAfter  float64 `gorm:"type:decimal(18,2);not null" json:"balance_after"`

	ReferenceID   *uuid.UUID `gorm:"type:uuid;index" json:"reference_id"`
	ReferenceType string     `gorm:"type:varchar(50)" json:"reference_type,omitempty"`

	Description string         `gorm:"type:varchar(500)" json:"description,omitempty"`
	Metadata    datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`

	// Bank transaction id for payouts
	ExternalTransactionID string `gorm:"type:varchar(200)" json:"external_transaction_id,omitempty"`
}

// TableName specifies the table name for TransactionLedger
func (TransactionLedger) TableName() string {
	return "transaction_ledgers"
}

// BeforeCreate assigns a UUID primary key
func (t *TransactionLedger) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
