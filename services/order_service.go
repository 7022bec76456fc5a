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
	"github.com/learnforge/marketplace-api/services/catalog"
	"github.com/learnforge/marketplace-api/services/events"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrEmptyOrder          = errors.New("order must contain at least one course")
	ErrOrderNotCancellable = errors.New("only pending orders can be cancelled")
	ErrPendingOrderExists  = errors.New("a pending order with an active payment already exists for these courses")
	ErrNotInstructorCoupon = errors.New("coupon is not an instructor coupon")
	ErrNotSystemCoupon     = errors.New("coupon is not a system coupon")
	ErrCourseUnavailable   = errors.New("course is not available for purchase")
)

// OrderService creates and manages orders. Prices always come from the
// catalog; client-submitted prices are never trusted.
type OrderService struct {
	db         *gorm.DB
	catalog    catalog.Service
	coupons    *CouponService
	usages     *CouponUsageService
	settlement *SettlementService
	events     events.Publisher
}

// NewOrderService creates a new order service
func NewOrderService(db *gorm.DB, catalogSvc catalog.Service, coupons *CouponService, usages *CouponUsageService, settlement *SettlementService, publisher events.Publisher) *OrderService {
	return &OrderService{
		db:         db,
		catalog:    catalogSvc,
		coupons:    coupons,
		usages:     usages,
		settlement: settlement,
		events:     publisher,
	}
}

// CreateOrderRequest describes a checkout
type CreateOrderRequest struct {
	UserID               uuid.UUID
	CourseIDs            []uuid.UUID
	InstructorCouponCode string
	SystemCouponCode     string
	IPAddress            string
	UserAgent            string
	Notes                string
}

// pricedOrder is the result of the two-phase pricing pass
type pricedOrder struct {
	order            model.Order
	items            []model.OrderItem
	instructorCoupon *model.Coupon
	systemCoupon     *model.Coupon
}

// priceOrder runs both pricing phases: authoritative catalog prices with the
// instructor coupon applied per item first, then the system coupon on the
// remaining subtotal.
func (s *OrderService) priceOrder(ctx context.Context, req CreateOrderRequest) (*pricedOrder, error) {
	courseIDs := dedupeIDs(req.CourseIDs)
	if len(courseIDs) == 0 {
		return nil, ErrEmptyOrder
	}

	items := make([]model.OrderItem, 0, len(courseIDs))
	couponItems := make([]CouponOrderItem, 0, len(courseIDs))
	var originalSubTotal float64

	for _, courseID := range courseIDs {
		owned, err := s.HasPurchasedCourse(ctx, req.UserID, courseID)
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
		if !course.IsPublished {
			return nil, ErrCourseUnavailable
		}
		if course.InstructorID == req.UserID {
			return nil, ErrCannotBuyOwnCourse
		}

		items = append(items, model.OrderItem{
			CourseID:        course.ID,
			CourseTitle:     course.Title,
			CourseThumbnail: course.Thumbnail,
			InstructorID:    course.InstructorID,
			InstructorName:  course.InstructorName,
			OriginalPrice:   course.OriginalPrice,
			UnitPrice:       course.FinalPrice,
			DiscountPercent: course.DiscountPercent,
			Quantity:        1,
			LineTotal:       course.FinalPrice,
		})
		couponItems = append(couponItems, CouponOrderItem{
			CourseID:     course.ID,
			InstructorID: course.InstructorID,
		})
		originalSubTotal += course.FinalPrice
	}

	priced := &pricedOrder{
		order: model.Order{
			UserID:           req.UserID,
			Status:           model.OrderStatusPending,
			OriginalSubTotal: RoundMoney(originalSubTotal),
			Currency:         "VND",
			IPAddress:        req.IPAddress,
			UserAgent:        req.UserAgent,
			Notes:            req.Notes,
		},
	}

	// Phase 1: instructor coupon on its applicable items
	var instructorDiscount float64
	if req.InstructorCouponCode != "" {
		coupon, err := s.coupons.ValidateCoupon(ctx, req.InstructorCouponCode, req.UserID, couponItems, originalSubTotal)
		if err != nil {
			return nil, err
		}
		if !coupon.IsInstructorCoupon() {
			return nil, ErrNotInstructorCoupon
		}

		var applicableSubTotal float64
		applicable := make([]bool, len(items))
		for i := range items {
			if couponAppliesToItem(coupon, couponItems[i]) {
				applicable[i] = true
				applicableSubTotal += items[i].UnitPrice
			}
		}

		instructorDiscount = CalculateDiscount(coupon, applicableSubTotal)
		for i := range items {
			if !applicable[i] || applicableSubTotal <= 0 {
				continue
			}
			share := instructorDiscount * (items[i].UnitPrice / applicableSubTotal)
			items[i].InstructorDiscountAmount = RoundMoney(share)
			items[i].LineTotal = RoundMoney(items[i].UnitPrice - share)
		}

		priced.instructorCoupon = coupon
		priced.order.InstructorCouponID = &coupon.ID
	}

	subTotal := RoundMoney(originalSubTotal - instructorDiscount)

	// Phase 2: system coupon on the post-instructor-discount subtotal
	var systemDiscount float64
	if req.SystemCouponCode != "" {
		coupon, err := s.coupons.ValidateCoupon(ctx, req.SystemCouponCode, req.UserID, couponItems, subTotal)
		if err != nil {
			return nil, err
		}
		if coupon.IsInstructorCoupon() {
			return nil, ErrNotSystemCoupon
		}

		systemDiscount = CalculateDiscount(coupon, subTotal)
		priced.systemCoupon = coupon
		priced.order.SystemCouponID = &coupon.ID
	}

	priced.order.SubTotal = subTotal
	priced.order.InstructorDiscountAmount = instructorDiscount
	priced.order.SystemDiscountAmount = systemDiscount
	priced.order.DiscountAmount = RoundMoney(instructorDiscount + systemDiscount)
	priced.order.TotalAmount = RoundMoney(math.Max(0, subTotal-systemDiscount))
	priced.items = items

	return priced, nil
}

func couponAppliesToItem(coupon *model.Coupon, item CouponOrderItem) bool {
	if coupon.ApplicableCourseID != nil {
		return item.CourseID == *coupon.ApplicableCourseID
	}
	if coupon.ApplicableInstructorID != nil {
		return item.InstructorID == *coupon.ApplicableInstructorID
	}
	return true
}

// OrderPreview is the computed pricing shown before checkout
type OrderPreview struct {
	Items                    []model.OrderItem `json:"items"`
	OriginalSubTotal         float64           `json:"original_sub_total"`
	SubTotal                 float64           `json:"sub_total"`
	InstructorDiscountAmount float64           `json:"instructor_discount_amount"`
	SystemDiscountAmount     float64           `json:"system_discount_amount"`
	TotalAmount              float64           `json:"total_amount"`
}

// PreviewOrder prices the order without persisting anything
func (s *OrderService) PreviewOrder(ctx context.Context, req CreateOrderRequest) (*OrderPreview, error) {
	priced, err := s.priceOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	return &OrderPreview{
		Items:                    priced.items,
		OriginalSubTotal:         priced.order.OriginalSubTotal,
		SubTotal:                 priced.order.SubTotal,
		InstructorDiscountAmount: priced.order.InstructorDiscountAmount,
		SystemDiscountAmount:     priced.order.SystemDiscountAmount,
		TotalAmount:              priced.order.TotalAmount,
	}, nil
}

// CreateOrder prices and persists an order. A zero-total order (fully
// discounted) is settled and marked Paid immediately; routine orders stay
// Pending until the gateway confirms payment.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*model.Order, error) {
	if existing, err := s.findPendingOrderWithPayment(ctx, req.UserID, req.CourseIDs); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, ErrPendingOrderExists
	}

	priced, err := s.priceOrder(ctx, req)
	if err != nil {
		return nil, err
	}

	order := priced.order
	order.OrderNumber = GenerateOrderNumber(time.Now())

	free := order.TotalAmount == 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if free {
			now := time.Now()
			order.Status = model.OrderStatusPaid
			order.PaidAt = &now
		}

		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		for i := range priced.items {
			priced.items[i].OrderID = order.ID
		}
		if err := tx.Create(&priced.items).Error; err != nil {
			return fmt.Errorf("failed to create order items: %w", err)
		}

		// The system coupon's usage slot is reserved at creation and
		// reverted on cancel; the instructor coupon's is recorded at
		// settlement.
		if priced.systemCoupon != nil {
			err := s.usages.RecordUsageTx(tx, priced.systemCoupon.ID, order.UserID, order.ID, order.SystemDiscountAmount)
			if err != nil {
				return err
			}
		}

		if free {
			return s.settlement.SettleOrderTx(tx, &order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	order.OrderItems = priced.items
	log.Printf("[ORDER] Created order %s for user %s, total %.2f", order.OrderNumber, order.UserID, order.TotalAmount)

	if free {
		s.publishCompletion(ctx, &order)
	}
	return &order, nil
}

// BuyNow is single-course checkout; it delegates to CreateOrder
func (s *OrderService) BuyNow(ctx context.Context, userID, courseID uuid.UUID, instructorCouponCode, systemCouponCode, ip, userAgent string) (*model.Order, error) {
	return s.CreateOrder(ctx, CreateOrderRequest{
		UserID:               userID,
		CourseIDs:            []uuid.UUID{courseID},
		InstructorCouponCode: instructorCouponCode,
		SystemCouponCode:     systemCouponCode,
		IPAddress:            ip,
		UserAgent:            userAgent,
	})
}

// publishCompletion emits the order completion events and drops the bought
// courses from the user's cart. Failures here are logged, not returned; the
// money has already moved.
func (s *OrderService) publishCompletion(ctx context.Context, order *model.Order) {
	courseIDs := make([]uuid.UUID, 0, len(order.OrderItems))
	for _, item := range order.OrderItems {
		courseIDs = append(courseIDs, item.CourseID)
	}

	if err := s.removeFromCart(ctx, order.UserID, courseIDs); err != nil {
		log.Printf("[ORDER] Failed to clear cart for order %s: %v", order.OrderNumber, err)
	}

	completedAt := time.Now()
	if order.PaidAt != nil {
		completedAt = *order.PaidAt
	}
	err := s.events.PublishOrderCompleted(ctx, events.OrderCompletedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		CourseIDs:   courseIDs,
		TotalAmount: order.TotalAmount,
		CompletedAt: completedAt,
	})
	if err != nil {
		log.Printf("[ORDER] Failed to publish completion event for %s: %v", order.OrderNumber, err)
	}

	key := fmt.Sprintf("excluded_courses:%s", order.UserID)
	if err := s.events.PublishCacheInvalidate(ctx, key); err != nil {
		log.Printf("[ORDER] Failed to publish cache invalidation for %s: %v", order.OrderNumber, err)
	}
}

func (s *OrderService) removeFromCart(ctx context.Context, userID uuid.UUID, courseIDs []uuid.UUID) error {
	if len(courseIDs) == 0 {
		return nil
	}
	var cart model.Cart
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Where("cart_id = ? AND course_id IN ?", cart.ID, courseIDs).
		Delete(&model.CartItem{}).Error
}

// findPendingOrderWithPayment looks for a pending order of the user covering
// any of the requested courses that still has an active payment attempt
func (s *OrderService) findPendingOrderWithPayment(ctx context.Context, userID uuid.UUID, courseIDs []uuid.UUID) (*model.Order, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}

	var order model.Order
	err := s.db.WithContext(ctx).
		Preload("OrderItems").
		Preload("Payments", "status IN ?", []model.PaymentStatus{model.PaymentStatusPending, model.PaymentStatusProcessing}).
		Joins("JOIN order_items ON order_items.order_id = orders.id").
		Joins("JOIN payments ON payments.order_id = orders.id").
		Where("orders.user_id = ? AND orders.status = ?", userID, model.OrderStatusPending).
		Where("order_items.course_id IN ?", courseIDs).
		Where("payments.status IN ?", []model.PaymentStatus{model.PaymentStatusPending, model.PaymentStatusProcessing}).
		Where("payments.expired_at > ?", time.Now()).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check pending orders: %w", err)
	}
	return &order, nil
}

// CancelOrder cancels a pending order, reverting the system coupon's usage
// slot and cancelling any open payment attempt
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ? AND user_id = ?", orderID, userID).First(&order).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load order: %w", err)
		}
		if order.Status != model.OrderStatusPending {
			return ErrOrderNotCancellable
		}

		if err := tx.Model(&order).Update("status", model.OrderStatusCancelled).Error; err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}

		if order.SystemCouponID != nil {
			if err := s.usages.RevertUsageTx(tx, *order.SystemCouponID, order.ID); err != nil {
				return err
			}
		}

		err = tx.Model(&model.Payment{}).
			Where("order_id = ? AND status IN ?", order.ID,
				[]model.PaymentStatus{model.PaymentStatusPending, model.PaymentStatusProcessing}).
			Update("status", model.PaymentStatusCancelled).Error
		if err != nil {
			return fmt.Errorf("failed to cancel open payments: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[ORDER] Cancelled order %s", order.OrderNumber)
	order.Status = model.OrderStatusCancelled
	return &order, nil
}

// GetOrder returns an order with items and payments
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).
		Preload("OrderItems").
		Preload("Payments").
		First(&order, "id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}

// GetOrdersByUser returns the user's orders, newest first
func (s *OrderService) GetOrdersByUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := s.db.WithContext(ctx).Model(&model.Order{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	var orders []model.Order
	err := query.Preload("OrderItems").
		Order("created_at desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

// GetPurchasedCourseIDs returns the ids of all courses the user has paid for
func (s *OrderService) GetPurchasedCourseIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var courseIDs []uuid.UUID
	err := s.db.WithContext(ctx).Model(&model.OrderItem{}).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.user_id = ? AND orders.status = ?", userID, model.OrderStatusPaid).
		Distinct().
		Pluck("order_items.course_id", &courseIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load purchased courses: %w", err)
	}
	return courseIDs, nil
}

// HasPurchasedCourse reports whether the user already owns the course
func (s *OrderService) HasPurchasedCourse(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.OrderItem{}).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.user_id = ? AND orders.status = ? AND order_items.course_id = ?",
			userID, model.OrderStatusPaid, courseID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check purchase: %w", err)
	}
	return count > 0, nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
