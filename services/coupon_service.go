package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/model"
	"github.com/learnforge/marketplace-api/services/catalog"
	"gorm.io/gorm"
)

var (
	ErrCouponNotFound          = errors.New("coupon not found")
	ErrCouponInactive          = errors.New("coupon is not active")
	ErrCouponNotYetValid       = errors.New("coupon is not valid yet")
	ErrCouponExpired           = errors.New("coupon has expired")
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
	ErrCouponUserLimitReached  = errors.New("coupon usage limit for this user reached")
	ErrCouponMinOrderNotMet    = errors.New("order amount below coupon minimum")
	ErrCouponNotApplicable     = errors.New("coupon does not apply to any course in this order")
	ErrCouponCodeTaken         = errors.New("coupon code already exists")
	ErrCouponUsageLimitNeeded  = errors.New("instructor coupons require a usage limit")
	ErrCouponCourseNeeded      = errors.New("percentage instructor coupons require an applicable course")
)

// CouponService manages coupon lifecycle and validation. Instructor coupons
// pre-commit wallet funds on creation; the hold is released on deactivation.
type CouponService struct {
	db      *gorm.DB
	wallets *WalletService
	catalog catalog.Service
}

// NewCouponService creates a new coupon service
func NewCouponService(db *gorm.DB, wallets *WalletService, catalogSvc catalog.Service) *CouponService {
	return &CouponService{db: db, wallets: wallets, catalog: catalogSvc}
}

// CreateCouponRequest carries the fields shared by admin and instructor
// coupon creation
type CreateCouponRequest struct {
	Code               string
	Description        string
	Type               model.CouponType
	Value              float64
	MinOrderAmount     *float64
	MaxDiscountAmount  *float64
	UsageLimit         *int
	UsagePerUser       *int
	ApplicableCourseID *uuid.UUID
	ValidFrom          time.Time
	ValidTo            time.Time
}

func (s *CouponService) validateRequest(req *CreateCouponRequest) error {
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	if req.Code == "" {
		return errors.New("coupon code is required")
	}
	switch req.Type {
	case model.CouponTypePercentage:
		if req.Value <= 0 || req.Value > 100 {
			return errors.New("percentage value must be between 0 and 100")
		}
	case model.CouponTypeFixedAmount:
		if req.Value <= 0 {
			return errors.New("fixed discount value must be positive")
		}
	default:
		return fmt.Errorf("unknown coupon type %q", req.Type)
	}
	if !req.ValidTo.After(req.ValidFrom) {
		return errors.New("valid_to must be after valid_from")
	}
	return nil
}

// CreateAdminCoupon creates a platform-scoped coupon. Its discounts are
// charged to the platform wallet at redemption time, so no hold is taken.
func (s *CouponService) CreateAdminCoupon(ctx context.Context, req CreateCouponRequest) (*model.Coupon, error) {
	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	coupon := model.Coupon{
		Code:               req.Code,
		Description:        req.Description,
		Type:               req.Type,
		Value:              req.Value,
		MinOrderAmount:     req.MinOrderAmount,
		MaxDiscountAmount:  req.MaxDiscountAmount,
		UsageLimit:         req.UsageLimit,
		UsagePerUser:       req.UsagePerUser,
		ApplicableCourseID: req.ApplicableCourseID,
		ValidFrom:          req.ValidFrom,
		ValidTo:            req.ValidTo,
		IsActive:           true,
	}

	if err := s.db.WithContext(ctx).Create(&coupon).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrCouponCodeTaken
		}
		return nil, fmt.Errorf("failed to create coupon: %w", err)
	}
	return &coupon, nil
}

// CreateInstructorCoupon creates an instructor-funded coupon, holding the
// maximum total discount from the instructor's available balance.
func (s *CouponService) CreateInstructorCoupon(ctx context.Context, instructorID uuid.UUID, req CreateCouponRequest) (*model.Coupon, error) {
	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}
	if req.UsageLimit == nil || *req.UsageLimit <= 0 {
		return nil, ErrCouponUsageLimitNeeded
	}

	perUse, err := s.perUseDiscountCeiling(ctx, req)
	if err != nil {
		return nil, err
	}
	holdAmount := RoundMoney(perUse * float64(*req.UsageLimit))

	coupon := model.Coupon{
		Code:                   req.Code,
		Description:            req.Description,
		Type:                   req.Type,
		Value:                  req.Value,
		MinOrderAmount:         req.MinOrderAmount,
		MaxDiscountAmount:      req.MaxDiscountAmount,
		UsageLimit:             req.UsageLimit,
		UsagePerUser:           req.UsagePerUser,
		ApplicableInstructorID: &instructorID,
		ApplicableCourseID:     req.ApplicableCourseID,
		ValidFrom:              req.ValidFrom,
		ValidTo:                req.ValidTo,
		IsActive:               true,
		HoldAmount:             holdAmount,
		RemainingHoldAmount:    holdAmount,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&coupon).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrCouponCodeTaken
			}
			return fmt.Errorf("failed to create coupon: %w", err)
		}
		return s.wallets.HoldFundsForCouponTx(tx, instructorID, holdAmount, coupon.ID)
	})
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// perUseDiscountCeiling computes the worst-case discount a single redemption
// can cost the instructor
func (s *CouponService) perUseDiscountCeiling(ctx context.Context, req CreateCouponRequest) (float64, error) {
	if req.Type == model.CouponTypeFixedAmount {
		return req.Value, nil
	}

	// Percentage coupons need a price to bound the discount
	if req.ApplicableCourseID == nil {
		return 0, ErrCouponCourseNeeded
	}
	course, err := s.catalog.GetCourse(ctx, *req.ApplicableCourseID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve coupon course: %w", err)
	}

	perUse := course.FinalPrice * req.Value / 100
	if req.MaxDiscountAmount != nil {
		perUse = math.Min(perUse, *req.MaxDiscountAmount)
	}
	return perUse, nil
}

// GetByCode returns the coupon with the given code (case-insensitive)
func (s *CouponService) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	var coupon model.Coupon
	err := s.db.WithContext(ctx).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&coupon).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load coupon: %w", err)
	}
	return &coupon, nil
}

// GetByID returns the coupon with the given id
func (s *CouponService) GetByID(ctx context.Context, id uuid.UUID) (*model.Coupon, error) {
	var coupon model.Coupon
	err := s.db.WithContext(ctx).First(&coupon, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load coupon: %w", err)
	}
	return &coupon, nil
}

// CouponOrderItem is the per-line context needed for applicability checks
type CouponOrderItem struct {
	CourseID     uuid.UUID
	InstructorID uuid.UUID
}

// ValidateCoupon checks whether a coupon can be applied to the given order
// context. It fails closed: any unmet condition returns a specific error.
func (s *CouponService) ValidateCoupon(ctx context.Context, code string, userID uuid.UUID, items []CouponOrderItem, subtotal float64) (*model.Coupon, error) {
	coupon, err := s.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	switch {
	case !coupon.IsActive:
		return nil, ErrCouponInactive
	case now.Before(coupon.ValidFrom):
		return nil, ErrCouponNotYetValid
	case now.After(coupon.ValidTo):
		return nil, ErrCouponExpired
	}

	if coupon.UsageLimit != nil && coupon.UsedCount >= *coupon.UsageLimit {
		return nil, ErrCouponUsageLimitReached
	}

	if coupon.MinOrderAmount != nil && subtotal < *coupon.MinOrderAmount {
		return nil, ErrCouponMinOrderNotMet
	}

	if coupon.UsagePerUser != nil {
		var used int64
		err := s.db.WithContext(ctx).Model(&model.CouponUsage{}).
			Where("coupon_id = ? AND user_id = ?", coupon.ID, userID).
			Count(&used).Error
		if err != nil {
			return nil, fmt.Errorf("failed to count coupon usage: %w", err)
		}
		if used >= int64(*coupon.UsagePerUser) {
			return nil, ErrCouponUserLimitReached
		}
	}

	if !couponApplies(coupon, items) {
		return nil, ErrCouponNotApplicable
	}

	return coupon, nil
}

func couponApplies(coupon *model.Coupon, items []CouponOrderItem) bool {
	if coupon.ApplicableCourseID == nil && coupon.ApplicableInstructorID == nil {
		return true
	}
	for _, item := range items {
		if coupon.ApplicableCourseID != nil && item.CourseID == *coupon.ApplicableCourseID {
			return true
		}
		if coupon.ApplicableCourseID == nil &&
			coupon.ApplicableInstructorID != nil &&
			item.InstructorID == *coupon.ApplicableInstructorID {
			return true
		}
	}
	return false
}

// CalculateDiscount computes the discount a coupon grants on the given
// subtotal. Never exceeds the subtotal.
func CalculateDiscount(coupon *model.Coupon, subtotal float64) float64 {
	if subtotal <= 0 {
		return 0
	}

	var discount float64
	switch coupon.Type {
	case model.CouponTypePercentage:
		discount = subtotal * coupon.Value / 100
		if coupon.MaxDiscountAmount != nil {
			discount = math.Min(discount, *coupon.MaxDiscountAmount)
		}
	case model.CouponTypeFixedAmount:
		discount = math.Min(coupon.Value, subtotal)
	}

	return RoundMoney(math.Min(discount, subtotal))
}

// Deactivate turns the coupon off and releases any remaining hold back to
// the instructor's available balance
func (s *CouponService) Deactivate(ctx context.Context, couponID uuid.UUID) (*model.Coupon, error) {
	var coupon model.Coupon
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&coupon, "id = ?", couponID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCouponNotFound
			}
			return fmt.Errorf("failed to load coupon: %w", err)
		}
		if !coupon.IsActive {
			return nil
		}

		updates := map[string]interface{}{"is_active": false}
		if coupon.IsInstructorCoupon() && coupon.RemainingHoldAmount > 0 {
			if err := s.wallets.ReleaseCouponHoldTx(tx, *coupon.ApplicableInstructorID, coupon.RemainingHoldAmount, coupon.ID); err != nil {
				return err
			}
			updates["remaining_hold_amount"] = 0.0
		}

		if err := tx.Model(&coupon).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to deactivate coupon: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// Delete deactivates and soft-deletes the coupon, releasing any remaining
// hold first
func (s *CouponService) Delete(ctx context.Context, couponID uuid.UUID) error {
	if _, err := s.Deactivate(ctx, couponID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&model.Coupon{}, "id = ?", couponID).Error; err != nil {
		return fmt.Errorf("failed to delete coupon: %w", err)
	}
	return nil
}

// ListCouponsOptions filters coupon listings
type ListCouponsOptions struct {
	InstructorID *uuid.UUID
	ActiveOnly   bool
	Page         int
	Limit        int
}

// ListCoupons returns coupons, newest first
func (s *CouponService) ListCoupons(ctx context.Context, opts ListCouponsOptions) ([]model.Coupon, int64, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 || opts.Limit > 100 {
		opts.Limit = 20
	}

	query := s.db.WithContext(ctx).Model(&model.Coupon{})
	if opts.InstructorID != nil {
		query = query.Where("applicable_instructor_id = ?", *opts.InstructorID)
	}
	if opts.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count coupons: %w", err)
	}

	var coupons []model.Coupon
	err := query.Order("created_at desc").
		Offset((opts.Page - 1) * opts.Limit).
		Limit(opts.Limit).
		Find(&coupons).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list coupons: %w", err)
	}

	return coupons, total, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && (errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "duplicate key value"))
}
