package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/model"
	"gorm.io/gorm"
)

var (
	ErrPayoutNotFound       = errors.New("payout request not found")
	ErrPayoutInFlight       = errors.New("a payout request is already awaiting review")
	ErrPayoutNotReviewable  = errors.New("payout request has already been reviewed")
	ErrPayoutReasonRequired = errors.New("a rejection reason is required")
	ErrMissingBankDetails   = errors.New("bank transfer details are required")
)

// PayoutService handles instructor withdrawal requests and their admin
// review. An approval deducts the wallet and completes the payout in one
// transaction.
type PayoutService struct {
	db      *gorm.DB
	wallets *WalletService
}

// NewPayoutService creates a new payout service
func NewPayoutService(db *gorm.DB, wallets *WalletService) *PayoutService {
	return &PayoutService{db: db, wallets: wallets}
}

// CreatePayoutRequestInput carries the instructor's withdrawal request
type CreatePayoutRequestInput struct {
	InstructorID      uuid.UUID
	Amount            float64
	BankName          string
	BankAccountNumber string
	BankAccountName   string
}

// CreatePayoutRequest files a withdrawal request. The amount must be
// covered by the available balance, and only one request may be awaiting
// review per instructor.
func (s *PayoutService) CreatePayoutRequest(ctx context.Context, input CreatePayoutRequestInput) (*model.PayoutRequest, error) {
	if input.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if input.BankName == "" || input.BankAccountNumber == "" || input.BankAccountName == "" {
		return nil, ErrMissingBankDetails
	}

	wallet, err := s.wallets.GetWallet(ctx, input.InstructorID)
	if err != nil {
		return nil, err
	}
	if wallet.AvailableBalance < input.Amount {
		return nil, ErrInsufficientBalance
	}

	var inFlight int64
	err = s.db.WithContext(ctx).Model(&model.PayoutRequest{}).
		Where("instructor_id = ? AND status = ?", input.InstructorID, model.PayoutStatusRequested).
		Count(&inFlight).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check open payout requests: %w", err)
	}
	if inFlight > 0 {
		return nil, ErrPayoutInFlight
	}

	now := time.Now()
	payout := model.PayoutRequest{
		RequestNumber:     GeneratePayoutNumber(now),
		InstructorID:      input.InstructorID,
		WalletID:          wallet.ID,
		Amount:            RoundMoney(input.Amount),
		Currency:          wallet.Currency,
		Status:            model.PayoutStatusRequested,
		BankName:          input.BankName,
		BankAccountNumber: input.BankAccountNumber,
		BankAccountName:   input.BankAccountName,
		RequestedAt:       now,
	}

	if err := s.db.WithContext(ctx).Create(&payout).Error; err != nil {
		// The partial unique index on (instructor_id) WHERE status =
		// 'requested' catches the race between two concurrent requests
		if isUniqueViolation(err) {
			return nil, ErrPayoutInFlight
		}
		return nil, fmt.Errorf("failed to create payout request: %w", err)
	}

	log.Printf("[PAYOUT] Instructor %s requested payout %s of %.2f", input.InstructorID, payout.RequestNumber, payout.Amount)
	return &payout, nil
}

// Approve deducts the payout from the instructor's wallet and completes the
// request. The balance is re-validated under lock at approval time, not at
// request time.
func (s *PayoutService) Approve(ctx context.Context, payoutID, adminID uuid.UUID) (*model.PayoutRequest, error) {
	var payout model.PayoutRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&payout, "id = ?", payoutID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPayoutNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load payout request: %w", err)
		}
		if payout.Status != model.PayoutStatusRequested {
			return ErrPayoutNotReviewable
		}

		if err := s.wallets.DeductForPayoutTx(tx, payout.InstructorID, payout.Amount, payout.ID); err != nil {
			return err
		}

		// Bank transfer happens out of band; the request completes as
		// soon as the funds are deducted.
		now := time.Now()
		err = tx.Model(&payout).Updates(map[string]interface{}{
			"status":       model.PayoutStatusCompleted,
			"approved_by":  adminID,
			"approved_at":  now,
			"processed_at": now,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to approve payout: %w", err)
		}
		payout.Status = model.PayoutStatusCompleted
		payout.ApprovedBy = &adminID
		payout.ApprovedAt = &now
		payout.ProcessedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[PAYOUT] Payout %s approved by %s, %.2f deducted", payout.RequestNumber, adminID, payout.Amount)
	return &payout, nil
}

// Reject declines the request with a reason. No balances change.
func (s *PayoutService) Reject(ctx context.Context, payoutID, adminID uuid.UUID, reason string) (*model.PayoutRequest, error) {
	if reason == "" {
		return nil, ErrPayoutReasonRequired
	}

	var payout model.PayoutRequest
	err := s.db.WithContext(ctx).First(&payout, "id = ?", payoutID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPayoutNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payout request: %w", err)
	}
	if payout.Status != model.PayoutStatusRequested {
		return nil, ErrPayoutNotReviewable
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Model(&payout).Updates(map[string]interface{}{
		"status":           model.PayoutStatusRejected,
		"rejected_by":      adminID,
		"rejected_at":      now,
		"rejection_reason": reason,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to reject payout: %w", err)
	}
	payout.Status = model.PayoutStatusRejected
	payout.RejectedBy = &adminID
	payout.RejectedAt = &now
	payout.RejectionReason = reason

	log.Printf("[PAYOUT] Payout %s rejected by %s: %s", payout.RequestNumber, adminID, reason)
	return &payout, nil
}

// GetByID returns a payout request
func (s *PayoutService) GetByID(ctx context.Context, payoutID uuid.UUID) (*model.PayoutRequest, error) {
	var payout model.PayoutRequest
	err := s.db.WithContext(ctx).First(&payout, "id = ?", payoutID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPayoutNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payout request: %w", err)
	}
	return &payout, nil
}

// ListPayoutsOptions filters payout listings
type ListPayoutsOptions struct {
	InstructorID *uuid.UUID
	Status       *model.PayoutStatus
	Page         int
	Limit        int
}

// ListPayouts returns payout requests, newest first
func (s *PayoutService) ListPayouts(ctx context.Context, opts ListPayoutsOptions) ([]model.PayoutRequest, int64, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 || opts.Limit > 100 {
		opts.Limit = 20
	}

	query := s.db.WithContext(ctx).Model(&model.PayoutRequest{})
	if opts.InstructorID != nil {
		query = query.Where("instructor_id = ?", *opts.InstructorID)
	}
	if opts.Status != nil {
		query = query.Where("status = ?", *opts.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payout requests: %w", err)
	}

	var payouts []model.PayoutRequest
	err := query.Order("created_at desc").
		Offset((opts.Page - 1) * opts.Limit).
		Limit(opts.Limit).
		Find(&payouts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payout requests: %w", err)
	}
	return payouts, total, nil
}
