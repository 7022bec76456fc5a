package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/model"
	"github.com/learnforge/marketplace-api/services/catalog"
	"gorm.io/gorm"
)

var (
	ErrCourseAlreadyInCart = errors.New("course is already in the cart")
	ErrCourseAlreadyOwned  = errors.New("course has already been purchased")
	ErrCannotBuyOwnCourse  = errors.New("instructors cannot buy their own course")
	ErrCartItemNotFound    = errors.New("course not found in cart")
)

// CartService manages the server-side shopping cart
type CartService struct {
	db      *gorm.DB
	catalog catalog.Service
	orders  *OrderService
}

// NewCartService creates a new cart service
func NewCartService(db *gorm.DB, catalogSvc catalog.Service, orders *OrderService) *CartService {
	return &CartService{db: db, catalog: catalogSvc, orders: orders}
}

// GetCart returns the user's cart with items, creating an empty cart on
// first use
func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	var cart model.Cart
	err := s.db.WithContext(ctx).Preload("Items").Where("user_id = ?", userID).First(&cart).Error
	if err == nil {
		return &cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	cart = model.Cart{UserID: userID}
	if err := s.db.WithContext(ctx).Create(&cart).Error; err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return &cart, nil
}

// AddItem snapshots the course from the catalog and adds it to the cart.
// Rejects duplicates, already-owned courses and the instructor's own
// courses.
func (s *CartService) AddItem(ctx context.Context, userID, courseID uuid.UUID) (*model.Cart, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, item := range cart.Items {
		if item.CourseID == courseID {
			return nil, ErrCourseAlreadyInCart
		}
	}

	owned, err := s.orders.HasPurchasedCourse(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if owned {
		return nil, ErrCourseAlreadyOwned
	}

	course, err := s.catalog.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.InstructorID == userID {
		return nil, ErrCannotBuyOwnCourse
	}

	item := model.CartItem{
		CartID:          cart.ID,
		CourseID:        course.ID,
		CourseTitle:     course.Title,
		CourseThumbnail: course.Thumbnail,
		InstructorID:    course.InstructorID,
		InstructorName:  course.InstructorName,
		OriginalPrice:   course.FinalPrice,
	}
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}

	cart.Items = append(cart.Items, item)
	return cart, nil
}

// RemoveItem removes a course from the user's cart
func (s *CartService) RemoveItem(ctx context.Context, userID, courseID uuid.UUID) error {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return err
	}

	result := s.db.WithContext(ctx).
		Where("cart_id = ? AND course_id = ?", cart.ID, courseID).
		Delete(&model.CartItem{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove cart item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

// Clear removes all items from the user's cart
func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Where("cart_id = ?", cart.ID).Delete(&model.CartItem{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

// RemovePurchased drops the given courses from the user's cart after a
// successful purchase. Missing items are ignored.
func (s *CartService) RemovePurchased(ctx context.Context, userID uuid.UUID, courseIDs []uuid.UUID) error {
	if len(courseIDs) == 0 {
		return nil
	}

	var cart model.Cart
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load cart: %w", err)
	}

	err = s.db.WithContext(ctx).
		Where("cart_id = ? AND course_id IN ?", cart.ID, courseIDs).
		Delete(&model.CartItem{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove purchased items: %w", err)
	}
	return nil
}
