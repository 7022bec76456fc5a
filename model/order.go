package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order represents one checkout transaction
type Order struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UserID      uuid.UUID   `gorm:"type:uuid;not null;index" json:"user_id"`
	OrderNumber string      `gorm:"type:varchar(50);uniqueIndex;not null" json:"order_number"`
	Status      OrderStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	// Pricing snapshot. SubTotal is the subtotal after instructor discounts
	// but before the system discount.
	OriginalSubTotal         float64 `gorm:"type:decimal(18,2);not null" json:"original_sub_total"`
	SubTotal                 float64 `gorm:"type:decimal(18,2);not null" json:"sub_total"`
	InstructorDiscountAmount float64 `gorm:"type:decimal(18,2);default:0" json:"instructor_discount_amount"`
	SystemDiscountAmount     float64 `gorm:"type:decimal(18,2);default:0" json:"system_discount_amount"`
	DiscountAmount           float64 `gorm:"type:decimal(18,2);default:0" json:"discount_amount"`
	TotalAmount              float64 `gorm:"type:decimal(18,2);not null" json:"total_amount"`
	Currency                 string  `gorm:"type:varchar(10);default:'VND'" json:"currency"`

	// Coupon references
	InstructorCouponID *uuid.UUID `gorm:"type:uuid" json:"instructor_coupon_id"`
	SystemCouponID     *uuid.UUID `gorm:"type:uuid" json:"system_coupon_id"`

	PaidAt *time.Time `json:"paid_at"`

	// Audit
	IPAddress      string         `gorm:"type:varchar(45)" json:"ip_address,omitempty"`
	UserAgent      string         `gorm:"type:varchar(500)" json:"-"`
	Notes          string         `gorm:"type:varchar(1000)" json:"notes,omitempty"`
	PaymentDetails datatypes.JSON `gorm:"type:jsonb" json:"payment_details,omitempty"`

	// Relationships
	OrderItems []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"order_items,omitempty"`
	Payments   []Payment   `gorm:"foreignKey:OrderID" json:"payments,omitempty"`
}

// TableName specifies the table name for Order
func (Order) TableName() string {
	return "orders"
}

// BeforeCreate assigns a UUID primary key
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem is a per-course line snapshot captured at order creation.
// InstructorEarnings and PlatformFeeAmount hold placeholder values until
// payment success finalizes the revenue split.
type OrderItem struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	OrderID uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`

	// Course snapshot (from the catalog service)
	CourseID        uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	CourseTitle     string    `gorm:"type:varchar(500);not null" json:"course_title"`
	CourseThumbnail string    `gorm:"type:varchar(1000)" json:"course_thumbnail,omitempty"`
	InstructorID    uuid.UUID `gorm:"type:uuid;not null;index" json:"instructor_id"`
	InstructorName  string    `gorm:"type:varchar(200);not null" json:"instructor_name"`

	// Pricing
	OriginalPrice            float64 `gorm:"type:decimal(18,2);not null" json:"original_price"`
	UnitPrice                float64 `gorm:"type:decimal(18,2);not null" json:"unit_price"`
	DiscountPercent          float64 `gorm:"type:decimal(5,2);default:0" json:"discount_percent"`
	InstructorDiscountAmount float64 `gorm:"type:decimal(18,2);default:0" json:"instructor_discount_amount"`
	Quantity                 int     `gorm:"default:1" json:"quantity"`
	LineTotal                float64 `gorm:"type:decimal(18,2);not null" json:"line_total"`

	// Revenue split: 70% instructor / 30% platform of the final price
	PlatformFeePercent float64 `gorm:"type:decimal(5,2);default:30" json:"platform_fee_percent"`
	PlatformFeeAmount  float64 `gorm:"type:decimal(18,2);default:0" json:"platform_fee_amount"`
	InstructorEarnings float64 `gorm:"type:decimal(18,2);default:0" json:"instructor_earnings"`
}

// TableName specifies the table name for OrderItem
func (OrderItem) TableName() string {
	return "order_items"
}

// BeforeCreate assigns a UUID primary key
func (oi *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if oi.ID == uuid.Nil {
		oi.ID = uuid.New()
	}
	return nil
}
