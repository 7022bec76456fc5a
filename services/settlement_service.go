package services

import (
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// instructorSharePercent is the instructor's cut of an item's final price.
// The platform fee is always derived by subtraction, never rounded on its
// own, so the two shares add up to the final price exactly.
const instructorSharePercent = 0.70

// SettlementService finalizes a paid order: derives the per-item revenue
// split, credits instructor and platform wallets, and settles coupon costs.
// All of it runs inside the caller's transaction.
type SettlementService struct {
	wallets  *WalletService
	platform *PlatformWalletService
	usages   *CouponUsageService
}

// NewSettlementService creates a new settlement service
func NewSettlementService(wallets *WalletService, platform *PlatformWalletService, usages *CouponUsageService) *SettlementService {
	return &SettlementService{wallets: wallets, platform: platform, usages: usages}
}

// ItemSplit is the computed revenue breakdown of one order item
type ItemSplit struct {
	ItemID             uuid.UUID
	InstructorID       uuid.UUID
	InstructorDiscount float64
	SystemDiscount     float64
	FinalPrice         float64
	InstructorEarnings float64
	PlatformFee        float64
}

// ComputeSplit derives the per-item discount attribution and revenue split.
// Order discounts are spread proportionally: the instructor discount by each
// item's share of the pre-discount subtotal, the system discount by each
// item's share of the subtotal after instructor discounts. Earnings are 70%
// of the final price; the platform fee is the remainder.
func ComputeSplit(order *model.Order, items []model.OrderItem) []ItemSplit {
	splits := make([]ItemSplit, len(items))

	var totalBase float64
	for _, item := range items {
		totalBase += item.UnitPrice
	}

	afterInstructor := make([]float64, len(items))
	var totalAfterInstructor float64
	for i, item := range items {
		var instDisc float64
		if totalBase > 0 && order.InstructorDiscountAmount > 0 {
			instDisc = order.InstructorDiscountAmount * (item.UnitPrice / totalBase)
		}
		afterInstructor[i] = item.UnitPrice - instDisc
		totalAfterInstructor += afterInstructor[i]

		splits[i] = ItemSplit{
			ItemID:             item.ID,
			InstructorID:       item.InstructorID,
			InstructorDiscount: instDisc,
		}
	}

	for i := range items {
		var sysDisc float64
		if totalAfterInstructor > 0 && order.SystemDiscountAmount > 0 {
			sysDisc = order.SystemDiscountAmount * (afterInstructor[i] / totalAfterInstructor)
		}

		final := afterInstructor[i] - sysDisc
		if final < 0 {
			final = 0
		}
		earnings := final * instructorSharePercent

		splits[i].SystemDiscount = sysDisc
		splits[i].FinalPrice = final
		splits[i].InstructorEarnings = earnings
		splits[i].PlatformFee = final - earnings
	}

	return splits
}

// SettleOrderTx runs the full financial settlement for a paid order inside
// an existing transaction: persists the split onto the order items, credits
// each instructor once, credits the platform fee once, and settles coupon
// redemptions against holds and the platform wallet.
func (s *SettlementService) SettleOrderTx(tx *gorm.DB, order *model.Order) error {
	var items []model.OrderItem
	if err := tx.Where("order_id = ?", order.ID).Find(&items).Error; err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	if len(items) == 0 {
		return fmt.Errorf("order %s has no items to settle", order.OrderNumber)
	}

	splits := ComputeSplit(order, items)

	for i, split := range splits {
		err := tx.Model(&items[i]).Updates(map[string]interface{}{
			"instructor_discount_amount": RoundMoney(split.InstructorDiscount),
			"platform_fee_amount":        RoundMoney(split.PlatformFee),
			"instructor_earnings":        RoundMoney(split.InstructorEarnings),
		}).Error
		if err != nil {
			return fmt.Errorf("failed to persist item split: %w", err)
		}
	}

	// One wallet credit per instructor, not per item
	earningsByInstructor := make(map[uuid.UUID]float64)
	instructorOrder := make([]uuid.UUID, 0, len(splits))
	var totalFee float64
	for _, split := range splits {
		if _, seen := earningsByInstructor[split.InstructorID]; !seen {
			instructorOrder = append(instructorOrder, split.InstructorID)
		}
		earningsByInstructor[split.InstructorID] += split.InstructorEarnings
		totalFee += split.PlatformFee
	}

	for _, instructorID := range instructorOrder {
		earnings := earningsByInstructor[instructorID]
		if earnings <= 0 {
			continue
		}
		desc := fmt.Sprintf("Earnings from order %s", order.OrderNumber)
		if err := s.wallets.CreditEarningsTx(tx, instructorID, earnings, order.ID, desc); err != nil {
			return fmt.Errorf("failed to credit instructor %s: %w", instructorID, err)
		}
		log.Printf("[SETTLEMENT] Credited %.2f to instructor %s for order %s", earnings, instructorID, order.OrderNumber)
	}

	if totalFee > 0 {
		desc := fmt.Sprintf("Platform fee from order %s", order.OrderNumber)
		if err := s.platform.CreditRevenueTx(tx, totalFee, order.ID, desc); err != nil {
			return fmt.Errorf("failed to credit platform fee: %w", err)
		}
	}

	if err := s.settleInstructorCouponTx(tx, order); err != nil {
		return err
	}
	return s.settleSystemCouponTx(tx, order)
}

// settleInstructorCouponTx records the redemption and consumes the coupon's
// wallet hold. When the redemption exhausts the usage limit, any leftover
// hold is released back to the instructor.
func (s *SettlementService) settleInstructorCouponTx(tx *gorm.DB, order *model.Order) error {
	if order.InstructorCouponID == nil || order.InstructorDiscountAmount <= 0 {
		return nil
	}

	var coupon model.Coupon
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&coupon, "id = ?", *order.InstructorCouponID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("instructor coupon %s not found during settlement", *order.InstructorCouponID)
		}
		return fmt.Errorf("failed to lock instructor coupon: %w", err)
	}
	if coupon.ApplicableInstructorID == nil {
		return fmt.Errorf("coupon %s is not instructor-funded", coupon.Code)
	}

	if err := s.usages.RecordUsageTx(tx, coupon.ID, order.UserID, order.ID, order.InstructorDiscountAmount); err != nil {
		return err
	}

	consumed := math.Min(order.InstructorDiscountAmount, coupon.RemainingHoldAmount)
	remaining := RoundMoney(coupon.RemainingHoldAmount - consumed)

	if consumed > 0 {
		err := s.wallets.DeductCouponUsageFromHoldTx(tx, *coupon.ApplicableInstructorID, consumed, coupon.ID, order.ID)
		if err != nil {
			return err
		}
	}

	// RecordUsageTx already bumped used_count in the database
	exhausted := coupon.UsageLimit != nil && coupon.UsedCount+1 >= *coupon.UsageLimit
	if exhausted && remaining > 0 {
		if err := s.wallets.ReleaseCouponHoldTx(tx, *coupon.ApplicableInstructorID, remaining, coupon.ID); err != nil {
			return err
		}
		log.Printf("[SETTLEMENT] Coupon %s exhausted, released %.2f leftover hold", coupon.Code, remaining)
		remaining = 0
	}

	if err := tx.Model(&coupon).Update("remaining_hold_amount", remaining).Error; err != nil {
		return fmt.Errorf("failed to update coupon hold: %w", err)
	}
	return nil
}

// settleSystemCouponTx charges the redeemed discount to the platform
// wallet. The usage row itself was reserved when the order was created.
func (s *SettlementService) settleSystemCouponTx(tx *gorm.DB, order *model.Order) error {
	if order.SystemCouponID == nil || order.SystemDiscountAmount <= 0 {
		return nil
	}

	var coupon model.Coupon
	if err := tx.First(&coupon, "id = ?", *order.SystemCouponID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("system coupon %s not found during settlement", *order.SystemCouponID)
		}
		return fmt.Errorf("failed to load system coupon: %w", err)
	}

	return s.platform.DebitCouponCostTx(tx, order.SystemDiscountAmount, order.ID, coupon.Code)
}
