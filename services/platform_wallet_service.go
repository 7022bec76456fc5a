package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PlatformWalletService manages the singleton platform wallet that collects
// commission and funds platform coupon discounts.
type PlatformWalletService struct {
	db *gorm.DB
}

// NewPlatformWalletService creates a new platform wallet service
func NewPlatformWalletService(db *gorm.DB) *PlatformWalletService {
	return &PlatformWalletService{db: db}
}

// GetWallet returns the platform wallet, creating it on first use
func (s *PlatformWalletService) GetWallet(ctx context.Context) (*model.PlatformWallet, error) {
	var wallet model.PlatformWallet
	err := s.db.WithContext(ctx).Order("created_at asc").First(&wallet).Error
	if err == nil {
		return &wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load platform wallet: %w", err)
	}

	wallet = model.PlatformWallet{IsActive: true}
	if err := s.db.WithContext(ctx).Create(&wallet).Error; err != nil {
		return nil, fmt.Errorf("failed to create platform wallet: %w", err)
	}
	return &wallet, nil
}

// lockWallet loads the platform wallet row FOR UPDATE inside tx, creating
// it if it does not exist yet
func (s *PlatformWalletService) lockWallet(tx *gorm.DB) (*model.PlatformWallet, error) {
	var wallet model.PlatformWallet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Order("created_at asc").
		First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		wallet = model.PlatformWallet{IsActive: true}
		if err := tx.Create(&wallet).Error; err != nil {
			return nil, fmt.Errorf("failed to create platform wallet: %w", err)
		}
		return &wallet, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock platform wallet: %w", err)
	}
	return &wallet, nil
}

// CreditRevenueTx credits the platform's commission share for a paid order
// inside an existing transaction
func (s *PlatformWalletService) CreditRevenueTx(tx *gorm.DB, amount float64, orderID uuid.UUID, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	wallet, err := s.lockWallet(tx)
	if err != nil {
		return err
	}

	before := wallet.AvailableBalance
	after := RoundMoney(before + amount)

	err = tx.Model(wallet).Updates(map[string]interface{}{
		"available_balance": after,
		"total_revenue":     RoundMoney(wallet.TotalRevenue + amount),
	}).Error
	if err != nil {
		return fmt.Errorf("failed to credit platform revenue: %w", err)
	}

	refID := orderID
	entry := model.PlatformWalletTransaction{
		PlatformWalletID: wallet.ID,
		Type:             model.PlatformTransactionTypeRevenue,
		Amount:           RoundMoney(amount),
		Currency:         wallet.Currency,
		BalanceBefore:    RoundMoney(before),
		BalanceAfter:     after,
		ReferenceID:      &refID,
		ReferenceType:    "order",
		Description:      description,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to record platform ledger entry: %w", err)
	}
	return nil
}

// DebitCouponCostTx charges a redeemed platform coupon's discount to the
// platform wallet inside an existing transaction. The balance may go
// negative; future commission offsets it.
func (s *PlatformWalletService) DebitCouponCostTx(tx *gorm.DB, amount float64, orderID uuid.UUID, couponCode string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	wallet, err := s.lockWallet(tx)
	if err != nil {
		return err
	}

	before := wallet.AvailableBalance
	after := RoundMoney(before - amount)

	err = tx.Model(wallet).Updates(map[string]interface{}{
		"available_balance": after,
		"total_coupon_cost": RoundMoney(wallet.TotalCouponCost + amount),
	}).Error
	if err != nil {
		return fmt.Errorf("failed to debit coupon cost: %w", err)
	}

	refID := orderID
	entry := model.PlatformWalletTransaction{
		PlatformWalletID: wallet.ID,
		Type:             model.PlatformTransactionTypeCouponCost,
		Amount:           RoundMoney(-amount),
		Currency:         wallet.Currency,
		BalanceBefore:    RoundMoney(before),
		BalanceAfter:     after,
		ReferenceID:      &refID,
		ReferenceType:    "order",
		Description:      fmt.Sprintf("Platform coupon %s redeemed", couponCode),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to record platform ledger entry: %w", err)
	}
	return nil
}

// ListTransactions returns platform ledger entries, newest first
func (s *PlatformWalletService) ListTransactions(ctx context.Context, page, limit int) ([]model.PlatformWalletTransaction, int64, error) {
	wallet, err := s.GetWallet(ctx)
	if err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int64
	query := s.db.WithContext(ctx).Model(&model.PlatformWalletTransaction{}).
		Where("platform_wallet_id = ?", wallet.ID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count platform transactions: %w", err)
	}

	var transactions []model.PlatformWalletTransaction
	err = query.Order("created_at desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&transactions).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list platform transactions: %w", err)
	}

	return transactions, total, nil
}
