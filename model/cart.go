package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cart is the server-side shopping cart, one per user.
type Cart struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`

	// Relationships
	Items []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

// TableName specifies the table name for Cart
func (Cart) TableName() string {
	return "carts"
}

// BeforeCreate assigns a UUID primary key
func (c *Cart) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// CartItem is a course snapshot captured when the user added it to the cart.
type CartItem struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	CartID uuid.UUID `gorm:"type:uuid;not null;index" json:"cart_id"`

	CourseID        uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	CourseTitle     string    `gorm:"type:varchar(300);not null" json:"course_title"`
	CourseThumbnail string    `gorm:"type:varchar(1000)" json:"course_thumbnail,omitempty"`
	InstructorID    uuid.UUID `gorm:"type:uuid;not null" json:"instructor_id"`
	InstructorName  string    `gorm:"type:varchar(200);not null" json:"instructor_name"`
	OriginalPrice   float64   `gorm:"type:decimal(18,2);not null" json:"original_price"`
}

// TableName specifies the table name for CartItem
func (CartItem) TableName() string {
	return "cart_items"
}

// BeforeCreate assigns a UUID primary key
func (ci *CartItem) BeforeCreate(tx *gorm.DB) error {
	if ci.ID == uuid.Nil {
		ci.ID = uuid.New()
	}
	return nil
}
