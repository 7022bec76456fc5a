package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrWalletNotFound      = errors.New("instructor wallet not found")
	ErrWalletInactive      = errors.New("instructor wallet is inactive")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrInsufficientHold    = errors.New("insufficient hold balance")
)

// WalletService manages instructor wallets. Every balance change locks the
// wallet row and writes a TransactionLedger entry in the same transaction.
type WalletService struct {
	db *gorm.DB
}

// NewWalletService creates a new wallet service
func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{db: db}
}

// GetOrCreateWallet returns the instructor's wallet, creating it on first use
func (s *WalletService) GetOrCreateWallet(ctx context.Context, instructorID uuid.UUID) (*model.InstructorWallet, error) {
	var wallet model.InstructorWallet
	err := s.db.WithContext(ctx).Where("instructor_id = ?", instructorID).First(&wallet).Error
	if err == nil {
		return &wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}

	wallet = model.InstructorWallet{
		InstructorID: instructorID,
		IsActive:     true,
	}
	// Concurrent first use may race on the unique instructor index
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&wallet).Error; err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	if err := s.db.WithContext(ctx).Where("instructor_id = ?", instructorID).First(&wallet).Error; err != nil {
		return nil, fmt.Errorf("failed to load wallet after create: %w", err)
	}
	return &wallet, nil
}

// GetWallet returns the instructor's wallet or ErrWalletNotFound
func (s *WalletService) GetWallet(ctx context.Context, instructorID uuid.UUID) (*model.InstructorWallet, error) {
	var wallet model.InstructorWallet
	err := s.db.WithContext(ctx).Where("instructor_id = ?", instructorID).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	return &wallet, nil
}

// lockWallet loads the wallet row FOR UPDATE inside tx
func (s *WalletService) lockWallet(tx *gorm.DB, instructorID uuid.UUID) (*model.InstructorWallet, error) {
	var wallet model.InstructorWallet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("instructor_id = ?", instructorID).
		First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	if !wallet.IsActive {
		return nil, ErrWalletInactive
	}
	return &wallet, nil
}

func (s *WalletService) writeLedger(tx *gorm.DB, wallet *model.InstructorWallet, entryType model.TransactionType, amount, before, after float64, refID *uuid.UUID, refType, description string) error {
	entry := model.TransactionLedger{
		WalletID:      wallet.ID,
		Type:          entryType,
		Amount:        RoundMoney(amount),
		Currency:      wallet.Currency,
		BalanceBefore: RoundMoney(before),
		BalanceAfter:  RoundMoney(after),
		ReferenceID:   refID,
		ReferenceType: refType,
		Description:   description,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to record ledger entry: %w", err)
	}
	return nil
}

// CreditEarningsTx credits sale earnings to the instructor's available
// balance inside an existing transaction. The wallet is created first if
// the instructor has never earned before.
func (s *WalletService) CreditEarningsTx(tx *gorm.DB, instructorID uuid.UUID, amount float64, orderID uuid.UUID, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	wallet, err := s.lockWallet(tx, instructorID)
	if errors.Is(err, ErrWalletNotFound) {
		created := model.InstructorWallet{InstructorID: instructorID, IsActive: true}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&created).Error; err != nil {
			return fmt.Errorf("failed to create wallet: %w", err)
		}
		wallet, err = s.lockWallet(tx, instructorID)
	}
	if err != nil {
		return err
	}

	before := wallet.AvailableBalance
	after := RoundMoney(before + amount)

	err = tx.Model(wallet).Updates(map[string]interface{}{
		"available_balance": after,
		"total_earnings":    RoundMoney(wallet.TotalEarnings + amount),
	}).Error
	if err != nil {
		return fmt.Errorf("failed to credit earnings: %w", err)
	}

	refID := orderID
	return s.writeLedger(tx, wallet, model.TransactionTypeSale, amount, before, after, &refID, "order", description)
}

// CreditTopUpTx credits a confirmed gateway top-up to the wallet inside an
// existing transaction
func (s *WalletService) CreditTopUpTx(tx *gorm.DB, walletID uuid.UUID, amount float64, paymentID uuid.UUID, externalTxnID string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	var wallet model.InstructorWallet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", walletID).
		First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrWalletNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock wallet: %w", err)
	}
	if !wallet.IsActive {
		return ErrWalletInactive
	}

	before := wallet.AvailableBalance
	after := RoundMoney(before + amount)

	if err := tx.Model(&wallet).Update("available_balance", after).Error; err != nil {
		return fmt.Errorf("failed to credit top-up: %w", err)
	}

	refID := paymentID
	entry := model.TransactionLedger{
		WalletID:              wallet.ID,
		Type:                  model.TransactionTypeTopUp,
		Amount:                RoundMoney(amount),
		Currency:              wallet.Currency,
		BalanceBefore:         RoundMoney(before),
		BalanceAfter:          after,
		ReferenceID:           &refID,
		ReferenceType:         "payment",
		Description:           "Wallet top-up via payment gateway",
		ExternalTransactionID: externalTxnID,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to record ledger entry: %w", err)
	}
	return nil
}

// DeductForPayoutTx debits an approved payout from the available balance
// inside an existing transaction. Fails if the balance would go negative.
func (s *WalletService) DeductForPayoutTx(tx *gorm.DB, instructorID uuid.UUID, amount float64, payoutID uuid.UUID) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	wallet, err := s.lockWallet(tx, instructorID)
	if err != nil {
		return err
	}

	if wallet.AvailableBalance < amount {
		return ErrInsufficientBalance
	}

	now := time.Now()
	before := wallet.AvailableBalance
	after := RoundMoney(before - amount)

	err = tx.Model(wallet).Updates(map[string]interface{}{
		"available_balance": after,
		"total_withdrawn":   RoundMoney(wallet.TotalWithdrawn + amount),
		"last_payout_at":    now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to deduct payout: %w", err)
	}

	refID := payoutID
	return s.writeLedger(tx, wallet, model.TransactionTypePayout, -amount, before, after, &refID, "payout_request", "Payout to bank account")
}

// HoldFundsForCouponTx moves funds from available into hold to back an
// instructor coupon's promised discounts
func (s *WalletService) HoldFundsForCouponTx(tx *gorm.DB, instructorID uuid.UUID, amount float64, couponID uuid.UUID) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	wallet, err := s.lockWallet(tx, instructorID)
	if err != nil {
		return err
	}

	if wallet.AvailableBalance < amount {
		return ErrInsufficientBalance
	}

	before := wallet.AvailableBalance
	after := RoundMoney(before - amount)

	err = tx.Model(wallet).Updates(map[string]interface{}{
		"available_balance": after,
		"hold_balance":      RoundMoney(wallet.HoldBalance + amount),
	}).Error
	if err != nil {
		return fmt.Errorf("failed to hold coupon funds: %w", err)
	}

	refID := couponID
	return s.writeLedger(tx, wallet, model.TransactionTypeCouponHold, -amount, before, after, &refID, "coupon", "Funds held for coupon")
}

// DeductCouponUsageFromHoldTx consumes part of the hold when a coupon is
// redeemed on a paid order. The hold balance never goes negative.
func (s *WalletService) DeductCouponUsageFromHoldTx(tx *gorm.DB, instructorID uuid.UUID, amount float64, couponID uuid.UUID, orderID uuid.UUID) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	wallet, err := s.lockWallet(tx, instructorID)
	if err != nil {
		return err
	}

	if wallet.HoldBalance < amount {
		return ErrInsufficientHold
	}

	before := wallet.AvailableBalance
	err = tx.Model(wallet).Update("hold_balance", RoundMoney(wallet.HoldBalance-amount)).Error
	if err != nil {
		return fmt.Errorf("failed to deduct coupon usage: %w", err)
	}

	refID := orderID
	return s.writeLedger(tx, wallet, model.TransactionTypeCouponUsage, -amount, before, before, &refID, "order",
		fmt.Sprintf("Coupon %s redeemed", couponID))
}

// ReleaseCouponHoldTx returns unused hold funds to the available balance
// when a coupon is deactivated or exhausted
func (s *WalletService) ReleaseCouponHoldTx(tx *gorm.DB, instructorID uuid.UUID, amount float64, couponID uuid.UUID) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	wallet, err := s.lockWallet(tx, instructorID)
	if err != nil {
		return err
	}

	if wallet.HoldBalance < amount {
		return ErrInsufficientHold
	}

	before := wallet.AvailableBalance
	after := RoundMoney(before + amount)

	err = tx.Model(wallet).Updates(map[string]interface{}{
		"available_balance": after,
		"hold_balance":      RoundMoney(wallet.HoldBalance - amount),
	}).Error
	if err != nil {
		return fmt.Errorf("failed to release coupon hold: %w", err)
	}

	refID := couponID
	return s.writeLedger(tx, wallet, model.TransactionTypeCouponRelease, amount, before, after, &refID, "coupon", "Unused coupon hold released")
}

// UpdateBankAccount stores the instructor's bank details on the wallet
func (s *WalletService) UpdateBankAccount(ctx context.Context, instructorID uuid.UUID, bankAccountInfo []byte) (*model.InstructorWallet, error) {
	wallet, err := s.GetOrCreateWallet(ctx, instructorID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(wallet).Update("bank_account_info", bankAccountInfo).Error; err != nil {
		return nil, fmt.Errorf("failed to update bank account: %w", err)
	}
	return wallet, nil
}
