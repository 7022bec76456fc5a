package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/model"
	"gorm.io/gorm"
)

// CouponUsageService records and reverts coupon redemptions. Usage rows
// are the source of truth for per-user limits.
type CouponUsageService struct {
	db *gorm.DB
}

// NewCouponUsageService creates a new coupon usage service
func NewCouponUsageService(db *gorm.DB) *CouponUsageService {
	return &CouponUsageService{db: db}
}

// RecordUsageTx inserts a usage row and increments the coupon's used count
// inside an existing transaction
func (s *CouponUsageService) RecordUsageTx(tx *gorm.DB, couponID, userID, orderID uuid.UUID, discountApplied float64) error {
	usage := model.CouponUsage{
		CouponID:        couponID,
		UserID:          userID,
		OrderID:         orderID,
		DiscountApplied: RoundMoney(discountApplied),
		UsedAt:          time.Now(),
	}
	if err := tx.Create(&usage).Error; err != nil {
		return fmt.Errorf("failed to record coupon usage: %w", err)
	}

	err := tx.Model(&model.Coupon{}).
		Where("id = ?", couponID).
		UpdateColumn("used_count", gorm.Expr("used_count + 1")).Error
	if err != nil {
		return fmt.Errorf("failed to increment coupon used count: %w", err)
	}
	return nil
}

// RevertUsageTx removes the usage row for an order and decrements the used
// count. Used when a pending order is cancelled.
func (s *CouponUsageService) RevertUsageTx(tx *gorm.DB, couponID, orderID uuid.UUID) error {
	result := tx.Where("coupon_id = ? AND order_id = ?", couponID, orderID).
		Delete(&model.CouponUsage{})
	if result.Error != nil {
		return fmt.Errorf("failed to revert coupon usage: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil
	}

	err := tx.Model(&model.Coupon{}).
		Where("id = ? AND used_count > 0", couponID).
		UpdateColumn("used_count", gorm.Expr("used_count - 1")).Error
	if err != nil {
		return fmt.Errorf("failed to decrement coupon used count: %w", err)
	}
	return nil
}

// CountByUser returns how many times a user has redeemed a coupon
func (s *CouponUsageService) CountByUser(ctx context.Context, couponID, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.CouponUsage{}).
		Where("coupon_id = ? AND user_id = ?", couponID, userID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count coupon usage: %w", err)
	}
	return count, nil
}

// GetByOrder returns the usage row recorded for an order and coupon, if any
func (s *CouponUsageService) GetByOrder(ctx context.Context, couponID, orderID uuid.UUID) (*model.CouponUsage, error) {
	var usage model.CouponUsage
	err := s.db.WithContext(ctx).
		Where("coupon_id = ? AND order_id = ?", couponID, orderID).
		First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load coupon usage: %w", err)
	}
	return &usage, nil
}

// ListByCoupon returns usage rows for a coupon, newest first
func (s *CouponUsageService) ListByCoupon(ctx context.Context, couponID uuid.UUID, page, limit int) ([]model.CouponUsage, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := s.db.WithContext(ctx).Model(&model.CouponUsage{}).Where("coupon_id = ?", couponID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count coupon usages: %w", err)
	}

	var usages []model.CouponUsage
	err := query.Order("created_at desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&usages).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list coupon usages: %w", err)
	}
	return usages, total, nil
}
