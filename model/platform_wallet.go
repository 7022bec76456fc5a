package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PlatformTransactionType classifies platform wallet ledger entries
type PlatformTransactionType string

const (
	PlatformTransactionTypeRevenue    PlatformTransactionType = "revenue"
	PlatformTransactionTypeCouponCost PlatformTransactionType = "coupon_cost"
)

// PlatformWallet is the singleton wallet collecting the 30% commission and
// absorbing platform coupon costs. AvailableBalance CAN go negative when
// coupon costs exceed accumulated revenue; incoming commissions offset it.
type PlatformWallet struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	AvailableBalance float64 `gorm:"type:decimal(18,2);default:0" json:"available_balance"`
	TotalRevenue     float64 `gorm:"type:decimal(18,2);default:0" json:"total_revenue"`
	TotalCouponCost  float64 `gorm:"type:decimal(18,2);default:0" json:"total_coupon_cost"`
	Currency         string  `gorm:"type:varchar(10);default:'VND'" json:"currency"`
	IsActive         bool    `gorm:"default:true" json:"is_active"`
}

// TableName specifies the table name for PlatformWallet
func (PlatformWallet) TableName() string {
	return "platform_wallets"
}

// BeforeCreate assigns a UUID primary key
func (w *PlatformWallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// PlatformWalletTransaction is the append-only audit row for one platform
// wallet balance change.
type PlatformWalletTransaction struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	PlatformWalletID uuid.UUID               `gorm:"type:uuid;not null;index" json:"platform_wallet_id"`
	Type             PlatformTransactionType `gorm:"type:varchar(30);not null;index" json:"type"`
	Amount           float64                 `gorm:"type:decimal(18,2);not null" json:"amount"`
	Currency         string                  `gorm:"type:varchar(10);default:'VND'" json:"currency"`

	BalanceBefore float64 `gorm:"type:decimal(18,2);not null" json:"balance_before"`
	BalanceAfter  float64 `gorm:"type:decimal(18,2);not null" json:"balance_after"`

	ReferenceID   *uuid.UUID `gorm:"type:uuid;index" json:"reference_id"`
	ReferenceType string     `gorm:"type:varchar(50)" json:"reference_type,omitempty"`

	Description string         `gorm:"type:varchar(500)" json:"description,omitempty"`
	Metadata    datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
}

// TableName specifies the table name for PlatformWalletTransaction
func (PlatformWalletTransaction) TableName() string {
	return "platform_wallet_transactions"
}

// BeforeCreate assigns a UUID primary key
func (t *PlatformWalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
