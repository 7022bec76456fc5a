package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/model"
	"gorm.io/gorm"
)

var ErrTransactionNotFound = errors.New("transaction not found")

// TransactionService answers ledger queries and reconciliation checks
type TransactionService struct {
	db *gorm.DB
}

// NewTransactionService creates a new transaction service
func NewTransactionService(db *gorm.DB) *TransactionService {
	return &TransactionService{db: db}
}

// ListByWalletOptions filters ledger listings for one wallet
type ListByWalletOptions struct {
	WalletID uuid.UUID
	Type     *model.TransactionType
	From     *time.Time
	To       *time.Time
	Page     int
	Limit    int
}

// ListByWallet returns a wallet's ledger entries, newest first
func (s *TransactionService) ListByWallet(ctx context.Context, opts ListByWalletOptions) ([]model.TransactionLedger, int64, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 || opts.Limit > 100 {
		opts.Limit = 20
	}

	query := s.db.WithContext(ctx).Model(&model.TransactionLedger{}).
		Where("wallet_id = ?", opts.WalletID)
	if opts.Type != nil {
		query = query.Where("type = ?", *opts.Type)
	}
	if opts.From != nil {
		query = query.Where("created_at >= ?", *opts.From)
	}
	if opts.To != nil {
		query = query.Where("created_at < ?", *opts.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	var entries []model.TransactionLedger
	err := query.Order("created_at desc").
		Offset((opts.Page - 1) * opts.Limit).
		Limit(opts.Limit).
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	return entries, total, nil
}

// GetByID returns one ledger entry
func (s *TransactionService) GetByID(ctx context.Context, id uuid.UUID) (*model.TransactionLedger, error) {
	var entry model.TransactionLedger
	err := s.db.WithContext(ctx).First(&entry, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	return &entry, nil
}

// PlatformRevenue sums the platform's commission income over a date range
func (s *TransactionService) PlatformRevenue(ctx context.Context, from, to time.Time) (float64, error) {
	var total float64
	err := s.db.WithContext(ctx).Model(&model.PlatformWalletTransaction{}).
		Where("type = ? AND created_at >= ? AND created_at < ?", model.PlatformTransactionTypeRevenue, from, to).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum platform revenue: %w", err)
	}
	return total, nil
}

// ReconciliationResult reports whether a wallet's ledger adds up to its
// stored balances
type ReconciliationResult struct {
	WalletID        uuid.UUID `json:"wallet_id"`
	LedgerSum       float64   `json:"ledger_sum"`
	AvailableGross  float64   `json:"available_plus_hold"`
	Difference      float64   `json:"difference"`
	Balanced        bool      `json:"balanced"`
	EntriesReviewed int64     `json:"entries_reviewed"`
}

// ReconcileWallet verifies that the sum of a wallet's ledger entries equals
// its available plus hold balance. Coupon usage entries move funds out of
// hold without touching available, so they net against the gross position.
func (s *TransactionService) ReconcileWallet(ctx context.Context, walletID uuid.UUID) (*ReconciliationResult, error) {
	var wallet model.InstructorWallet
	err := s.db.WithContext(ctx).First(&wallet, "id = ?", walletID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}

	var entries []model.TransactionLedger
	err = s.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at asc").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	// Hold moves (coupon_hold, coupon_release) shuffle funds between
	// available and hold, so summing only external movements yields the
	// gross position.
	var sum float64
	for _, entry := range entries {
		switch entry.Type {
		case model.TransactionTypeCouponHold, model.TransactionTypeCouponRelease:
			continue
		default:
			sum += entry.Amount
		}
	}

	gross := wallet.AvailableBalance + wallet.HoldBalance
	diff := RoundMoney(sum - gross)

	return &ReconciliationResult{
		WalletID:        walletID,
		LedgerSum:       RoundMoney(sum),
		AvailableGross:  RoundMoney(gross),
		Difference:      diff,
		Balanced:        math.Abs(diff) < 0.01,
		EntriesReviewed: int64(len(entries)),
	}, nil
}
