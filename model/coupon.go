package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CouponType determines how the discount is computed
type CouponType string

const (
	CouponTypePercentage  CouponType = "percentage"
	CouponTypeFixedAmount CouponType = "fixed_amount"
)

// Coupon is a discount rule. Platform-scoped coupons have no
// ApplicableInstructorID; instructor coupons pre-commit wallet funds
// (HoldAmount) to cover the discounts they promise.
type Coupon struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Code        string `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	Description string `gorm:"type:varchar(500)" json:"description,omitempty"`

	Type CouponType `gorm:"type:varchar(20);not null" json:"type"`
	// Percentage: 0-100. FixedAmount: discount in ledger currency.
	Value float64 `gorm:"type:decimal(18,2);not null" json:"value"`

	MinOrderAmount    *float64 `gorm:"type:decimal(18,2)" json:"min_order_amount"`
	MaxDiscountAmount *float64 `gorm:"type:decimal(18,2)" json:"max_discount_amount"`

	UsageLimit   *int `json:"usage_limit"`
	UsagePerUser *int `json:"usage_per_user"`
	UsedCount    int  `gorm:"default:0" json:"used_count"`

	// Applicability (nil = applies to all)
	ApplicableInstructorID *uuid.UUID `gorm:"type:uuid;index" json:"applicable_instructor_id"`
	ApplicableCourseID     *uuid.UUID `gorm:"type:uuid;index" json:"applicable_course_id"`

	ValidFrom time.Time `gorm:"not null" json:"valid_from"`
	ValidTo   time.Time `gorm:"not null" json:"valid_to"`
	IsActive  bool      `gorm:"default:true;index" json:"is_active"`

	// Funds held from the instructor wallet when the coupon was created.
	// RemainingHoldAmount decreases as the coupon is used and is released
	// back to the wallet on deactivation or exhaustion.
	HoldAmount          float64 `gorm:"type:decimal(18,2);default:0" json:"hold_amount"`
	RemainingHoldAmount float64 `gorm:"type:decimal(18,2);default:0" json:"remaining_hold_amount"`

	// Relationships
	Usages []CouponUsage `gorm:"foreignKey:CouponID" json:"-"`
}

// TableName specifies the table name for Coupon
func (Coupon) TableName() string {
	return "coupons"
}

// BeforeCreate assigns a UUID primary key
func (c *Coupon) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// IsInstructorCoupon reports whether the coupon is funded by an instructor.
func (c *Coupon) IsInstructorCoupon() bool {
	return c.ApplicableInstructorID != nil
}

// CouponUsage records one application of a coupon to an order.
// Rows are immutable once created; used for per-user limit enforcement
// and audit.
type CouponUsage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	CouponID        uuid.UUID `gorm:"type:uuid;not null;index" json:"coupon_id"`
	UserID          uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	OrderID         uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	DiscountApplied float64   `gorm:"type:decimal(18,2);not null" json:"discount_applied"`
	UsedAt          time.Time `gorm:"not null" json:"used_at"`

	// Relationships
	Coupon *Coupon `gorm:"foreignKey:CouponID" json:"coupon,omitempty"`
	Order  *Order  `gorm:"foreignKey:OrderID" json:"order,omitempty"`
}

// TableName specifies the table name for CouponUsage
func (CouponUsage) TableName() string {
	return "coupon_usages"
}

// BeforeCreate assigns a UUID primary key
func (u *CouponUsage) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
