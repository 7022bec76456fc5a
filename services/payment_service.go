package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/model"
	"github.com/learnforge/marketplace-api/services/vnpay"
	"gorm.io/gorm"
)

var (
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrOrderNotPayable    = errors.New("order is not awaiting payment")
	ErrOrderAlreadyPaid   = errors.New("order has already been paid")
	ErrInvalidTopUpAmount = errors.New("top-up amount must be positive")
)

// PaymentService drives payment attempts through the gateway and settles
// confirmed callbacks.
type PaymentService struct {
	db            *gorm.DB
	gateway       *vnpay.Client
	wallets       *WalletService
	settlement    *SettlementService
	orders        *OrderService
	expiryMinutes int
}

// NewPaymentService creates a new payment service
func NewPaymentService(db *gorm.DB, gateway *vnpay.Client, wallets *WalletService, settlement *SettlementService, orders *OrderService, expiryMinutes int) *PaymentService {
	if expiryMinutes <= 0 {
		expiryMinutes = 15
	}
	return &PaymentService{
		db:            db,
		gateway:       gateway,
		wallets:       wallets,
		settlement:    settlement,
		orders:        orders,
		expiryMinutes: expiryMinutes,
	}
}

// ProcessPayment creates (or reuses) a payment attempt for a pending order
// and returns it with a gateway redirect URL
func (s *PaymentService) ProcessPayment(ctx context.Context, userID, orderID uuid.UUID, ip string) (*model.Payment, error) {
	var order model.Order
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", orderID, userID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	switch order.Status {
	case model.OrderStatusPending:
	case model.OrderStatusPaid:
		return nil, ErrOrderAlreadyPaid
	default:
		return nil, ErrOrderNotPayable
	}
	if order.TotalAmount <= 0 {
		return nil, ErrOrderNotPayable
	}

	// Reuse an open attempt whose gateway window has not closed
	var existing model.Payment
	err = s.db.WithContext(ctx).
		Where("order_id = ? AND status = ? AND expired_at > ?", order.ID, model.PaymentStatusPending, time.Now()).
		First(&existing).Error
	if err == nil {
		log.Printf("[PAYMENT] Reusing open payment %s for order %s", existing.PaymentNumber, order.OrderNumber)
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check open payments: %w", err)
	}

	now := time.Now()
	expiresAt := now.Add(time.Duration(s.expiryMinutes) * time.Minute)
	payment := model.Payment{
		OrderID:       &order.ID,
		Purpose:       model.PaymentPurposeOrderPayment,
		PaymentNumber: GeneratePaymentNumber(now),
		Status:        model.PaymentStatusPending,
		Amount:        order.TotalAmount,
		Currency:      order.Currency,
		Provider:      "VNPay",
		ExpiredAt:     &expiresAt,
	}

	paymentURL, err := s.gateway.BuildPaymentURL(vnpay.PaymentRequest{
		TxnRef:    payment.PaymentNumber,
		Amount:    payment.Amount,
		OrderInfo: fmt.Sprintf("Payment for order %s", order.OrderNumber),
		IPAddress: ip,
		CreatedAt: now,
		ExpireAt:  expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build payment URL: %w", err)
	}
	payment.PaymentURL = paymentURL

	if err := s.db.WithContext(ctx).Create(&payment).Error; err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	log.Printf("[PAYMENT] Created payment %s for order %s, amount %.2f", payment.PaymentNumber, order.OrderNumber, payment.Amount)
	return &payment, nil
}

// ProcessTopUp creates a gateway payment that credits the instructor's
// wallet on confirmation
func (s *PaymentService) ProcessTopUp(ctx context.Context, instructorID uuid.UUID, amount float64, ip string) (*model.Payment, error) {
	if amount <= 0 {
		return nil, ErrInvalidTopUpAmount
	}

	wallet, err := s.wallets.GetOrCreateWallet(ctx, instructorID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := now.Add(time.Duration(s.expiryMinutes) * time.Minute)
	payment := model.Payment{
		WalletID:      &wallet.ID,
		Purpose:       model.PaymentPurposeWalletTopUp,
		PaymentNumber: GeneratePaymentNumber(now),
		Status:        model.PaymentStatusPending,
		Amount:        RoundMoney(amount),
		Currency:      wallet.Currency,
		Provider:      "VNPay",
		ExpiredAt:     &expiresAt,
	}

	paymentURL, err := s.gateway.BuildPaymentURL(vnpay.PaymentRequest{
		TxnRef:    payment.PaymentNumber,
		Amount:    payment.Amount,
		OrderInfo: fmt.Sprintf("Wallet top-up %s", payment.PaymentNumber),
		IPAddress: ip,
		CreatedAt: now,
		ExpireAt:  expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build payment URL: %w", err)
	}
	payment.PaymentURL = paymentURL

	if err := s.db.WithContext(ctx).Create(&payment).Error; err != nil {
		return nil, fmt.Errorf("failed to create top-up payment: %w", err)
	}

	log.Printf("[PAYMENT] Created top-up payment %s for instructor %s, amount %.2f", payment.PaymentNumber, instructorID, payment.Amount)
	return &payment, nil
}

// CallbackOutcome is the result of processing one gateway callback
type CallbackOutcome struct {
	Success          bool
	AlreadyProcessed bool
	Reason           string
	Payment          *model.Payment
}

// activeStatuses are the payment states a callback may still transition
var activeStatuses = []model.PaymentStatus{model.PaymentStatusPending, model.PaymentStatusProcessing}

// HandleVNPayCallback validates and applies one gateway callback. Replays
// and concurrent deliveries are absorbed: a payment already in a terminal
// state produces no side effects.
func (s *PaymentService) HandleVNPayCallback(ctx context.Context, rawQuery string) (*CallbackOutcome, error) {
	result, err := s.gateway.ParseCallback(rawQuery)
	if err != nil {
		return nil, err
	}

	if !result.IsValid {
		log.Printf("[PAYMENT] SECURITY: callback signature verification failed for txn ref %q", result.TxnRef)
		return &CallbackOutcome{Success: false, Reason: "invalid signature"}, nil
	}

	var payment model.Payment
	err = s.db.WithContext(ctx).Where("payment_number = ?", result.TxnRef).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("[PAYMENT] Callback for unknown payment %q", result.TxnRef)
		return &CallbackOutcome{Success: false, Reason: "payment not found"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}

	if payment.Status.IsTerminal() {
		log.Printf("[PAYMENT] Duplicate callback for %s, already %s, ignoring", payment.PaymentNumber, payment.Status)
		return &CallbackOutcome{
			Success:          payment.Status == model.PaymentStatusCompleted,
			AlreadyProcessed: true,
			Reason:           fmt.Sprintf("payment already %s", payment.Status),
			Payment:          &payment,
		}, nil
	}

	if math.Abs(payment.Amount-result.Amount) > 0.01 {
		log.Printf("[PAYMENT] SECURITY: amount mismatch on %s: expected %.2f, callback %.2f",
			payment.PaymentNumber, payment.Amount, result.Amount)
		return &CallbackOutcome{Success: false, Reason: "amount mismatch", Payment: &payment}, nil
	}

	if !result.IsSuccess() {
		return s.applyFailure(ctx, &payment, result)
	}
	return s.applySuccess(ctx, &payment, result)
}

// applySuccess completes the payment and runs the purpose-specific
// settlement in a single transaction. The status flip is a conditional
// update so only one concurrent callback wins.
func (s *PaymentService) applySuccess(ctx context.Context, payment *model.Payment, result *vnpay.CallbackResult) (*CallbackOutcome, error) {
	var order *model.Order
	lost := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&model.Payment{}).
			Where("id = ? AND status IN ?", payment.ID, activeStatuses).
			Updates(map[string]interface{}{
				"status":                  model.PaymentStatusCompleted,
				"paid_at":                 now,
				"external_transaction_id": result.TransactionNo,
				"payment_method":          result.CardType,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to complete payment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			lost = true
			return nil
		}
		payment.Status = model.PaymentStatusCompleted
		payment.PaidAt = &now
		payment.ExternalTransactionID = result.TransactionNo

		switch payment.Purpose {
		case model.PaymentPurposeWalletTopUp:
			if payment.WalletID == nil {
				return fmt.Errorf("top-up payment %s has no wallet", payment.PaymentNumber)
			}
			return s.wallets.CreditTopUpTx(tx, *payment.WalletID, payment.Amount, payment.ID, result.TransactionNo)

		case model.PaymentPurposeOrderPayment:
			if payment.OrderID == nil {
				return fmt.Errorf("order payment %s has no order", payment.PaymentNumber)
			}

			var o model.Order
			if err := tx.First(&o, "id = ?", *payment.OrderID).Error; err != nil {
				return fmt.Errorf("failed to load order: %w", err)
			}

			res := tx.Model(&model.Order{}).
				Where("id = ? AND status = ?", o.ID, model.OrderStatusPending).
				Updates(map[string]interface{}{
					"status":  model.OrderStatusPaid,
					"paid_at": now,
				})
			if res.Error != nil {
				return fmt.Errorf("failed to mark order paid: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("order %s is no longer pending", o.OrderNumber)
			}
			o.Status = model.OrderStatusPaid
			o.PaidAt = &now

			if err := s.settlement.SettleOrderTx(tx, &o); err != nil {
				return err
			}
			order = &o
			return nil

		default:
			return fmt.Errorf("unknown payment purpose %q", payment.Purpose)
		}
	})
	if err != nil {
		return nil, err
	}

	if lost {
		var fresh model.Payment
		if err := s.db.WithContext(ctx).First(&fresh, "id = ?", payment.ID).Error; err == nil {
			payment = &fresh
		}
		log.Printf("[PAYMENT] Callback for %s lost the race, now %s", payment.PaymentNumber, payment.Status)
		return &CallbackOutcome{
			Success:          payment.Status == model.PaymentStatusCompleted,
			AlreadyProcessed: true,
			Reason:           fmt.Sprintf("payment already %s", payment.Status),
			Payment:          payment,
		}, nil
	}

	log.Printf("[PAYMENT] Payment %s completed, gateway txn %s", payment.PaymentNumber, result.TransactionNo)

	if order != nil {
		if err := s.db.WithContext(ctx).Preload("OrderItems").First(order, "id = ?", order.ID).Error; err == nil {
			s.orders.publishCompletion(ctx, order)
		} else {
			log.Printf("[PAYMENT] Failed to reload order for events: %v", err)
		}
	}

	return &CallbackOutcome{Success: true, Payment: payment}, nil
}

// applyFailure marks the payment failed with the gateway's reason. The
// order and cart are untouched so the user can retry.
func (s *PaymentService) applyFailure(ctx context.Context, payment *model.Payment, result *vnpay.CallbackResult) (*CallbackOutcome, error) {
	reason := vnpay.ResponseDescription(result.ResponseCode)

	res := s.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status IN ?", payment.ID, activeStatuses).
		Updates(map[string]interface{}{
			"status":                  model.PaymentStatusFailed,
			"failure_reason":          reason,
			"external_transaction_id": result.TransactionNo,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to mark payment failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		log.Printf("[PAYMENT] Failure callback for %s lost the race, ignoring", payment.PaymentNumber)
		return &CallbackOutcome{Success: false, AlreadyProcessed: true, Reason: reason, Payment: payment}, nil
	}

	payment.Status = model.PaymentStatusFailed
	payment.FailureReason = reason
	log.Printf("[PAYMENT] Payment %s failed: %s (code %s)", payment.PaymentNumber, reason, result.ResponseCode)
	return &CallbackOutcome{Success: false, Reason: reason, Payment: payment}, nil
}

// CheckPaymentStatus returns the payment's current state, expiring it first
// if its gateway window has lapsed
func (s *PaymentService) CheckPaymentStatus(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	err := s.db.WithContext(ctx).First(&payment, "id = ?", paymentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}

	if payment.Status == model.PaymentStatusPending && payment.ExpiredAt != nil && payment.ExpiredAt.Before(time.Now()) {
		res := s.db.WithContext(ctx).Model(&model.Payment{}).
			Where("id = ? AND status = ?", payment.ID, model.PaymentStatusPending).
			Update("status", model.PaymentStatusExpired)
		if res.Error != nil {
			return nil, fmt.Errorf("failed to expire payment: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			payment.Status = model.PaymentStatusExpired
			log.Printf("[PAYMENT] Payment %s expired on status check", payment.PaymentNumber)
		}
	}

	return &payment, nil
}

// GetPaymentsByOrder returns all payment attempts for an order
func (s *PaymentService) GetPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]model.Payment, error) {
	var payments []model.Payment
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at desc").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// GetPaymentsByUser returns the user's order payments, newest first
func (s *PaymentService) GetPaymentsByUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.Payment, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := s.db.WithContext(ctx).Model(&model.Payment{}).
		Joins("JOIN orders ON orders.id = payments.order_id").
		Where("orders.user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	var payments []model.Payment
	err := query.Order("payments.created_at desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, total, nil
}
