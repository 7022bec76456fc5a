package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/model"
	"github.com/learnforge/marketplace-api/services/catalog"
	"github.com/learnforge/marketplace-api/services/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// stubCatalog serves a fixed set of courses without the catalog service
type stubCatalog struct {
	courses map[uuid.UUID]*catalog.Course
}

func (s *stubCatalog) GetCourse(ctx context.Context, id uuid.UUID) (*catalog.Course, error) {
	course, ok := s.courses[id]
	if !ok {
		return nil, catalog.ErrCourseNotFound
	}
	return course, nil
}

func (s *stubCatalog) GetCourses(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*catalog.Course, error) {
	out := make(map[uuid.UUID]*catalog.Course, len(ids))
	for _, id := range ids {
		if course, ok := s.courses[id]; ok {
			out[id] = course
		}
	}
	return out, nil
}

func newCheckoutServices(db *gorm.DB, catalogSvc catalog.Service) (*OrderService, *WalletService, *PlatformWalletService) {
	wallets := NewWalletService(db)
	platform := NewPlatformWalletService(db)
	usages := NewCouponUsageService(db)
	settlement := NewSettlementService(wallets, platform, usages)
	coupons := NewCouponService(db, wallets, catalogSvc)
	orders := NewOrderService(db, catalogSvc, coupons, usages, settlement, events.NewNopPublisher())
	return orders, wallets, platform
}

func TestCheckoutAndSettlementIntegration(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()

	instructorID := uuid.New()
	courseID := uuid.New()
	stub := &stubCatalog{courses: map[uuid.UUID]*catalog.Course{
		courseID: {
			ID:             courseID,
			Title:          "Distributed Systems in Go",
			InstructorID:   instructorID,
			InstructorName: "Test Instructor",
			OriginalPrice:  500000,
			FinalPrice:     500000,
			IsPublished:    true,
		},
	}}

	orders, wallets, platform := newCheckoutServices(db, stub)
	userID := uuid.New()

	order, err := orders.CreateOrder(ctx, CreateOrderRequest{
		UserID:    userID,
		CourseIDs: []uuid.UUID{courseID},
		IPAddress: "127.0.0.1",
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.InDelta(t, 500000, order.TotalAmount, 0.001)
	require.Len(t, order.OrderItems, 1)

	// Settle the order the way a confirmed payment does
	platformBefore, err := platform.GetWallet(ctx)
	require.NoError(t, err)

	wallets2 := NewWalletService(db)
	platform2 := NewPlatformWalletService(db)
	settlement := NewSettlementService(wallets2, platform2, NewCouponUsageService(db))
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Order{}).Where("id = ?", order.ID).
			Update("status", model.OrderStatusPaid).Error; err != nil {
			return err
		}
		return settlement.SettleOrderTx(tx, order)
	})
	require.NoError(t, err)

	// 70/30 split
	wallet, err := wallets.GetWallet(ctx, instructorID)
	require.NoError(t, err)
	assert.InDelta(t, 350000, wallet.AvailableBalance, 0.01)

	platformAfter, err := platform.GetWallet(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 150000, platformAfter.AvailableBalance-platformBefore.AvailableBalance, 0.01)

	// The buyer now owns the course and cannot buy it again
	owned, err := orders.HasPurchasedCourse(ctx, userID, courseID)
	require.NoError(t, err)
	assert.True(t, owned)

	_, err = orders.CreateOrder(ctx, CreateOrderRequest{
		UserID:    userID,
		CourseIDs: []uuid.UUID{courseID},
	})
	assert.ErrorIs(t, err, ErrCourseAlreadyOwned)
}

func TestCreateOrderGuardsIntegration(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()

	instructorID := uuid.New()
	courseID := uuid.New()
	unpublishedID := uuid.New()
	stub := &stubCatalog{courses: map[uuid.UUID]*catalog.Course{
		courseID: {
			ID:           courseID,
			Title:        "Published",
			InstructorID: instructorID,
			FinalPrice:   100000,
			IsPublished:  true,
		},
		unpublishedID: {
			ID:           unpublishedID,
			Title:        "Draft",
			InstructorID: instructorID,
			FinalPrice:   100000,
			IsPublished:  false,
		},
	}}

	orders, _, _ := newCheckoutServices(db, stub)

	_, err := orders.CreateOrder(ctx, CreateOrderRequest{UserID: uuid.New()})
	assert.ErrorIs(t, err, ErrEmptyOrder)

	_, err = orders.CreateOrder(ctx, CreateOrderRequest{
		UserID:    uuid.New(),
		CourseIDs: []uuid.UUID{unpublishedID},
	})
	assert.ErrorIs(t, err, ErrCourseUnavailable)

	// Instructors cannot buy their own course
	_, err = orders.CreateOrder(ctx, CreateOrderRequest{
		UserID:    instructorID,
		CourseIDs: []uuid.UUID{courseID},
	})
	assert.ErrorIs(t, err, ErrCannotBuyOwnCourse)

	_, err = orders.CreateOrder(ctx, CreateOrderRequest{
		UserID:    uuid.New(),
		CourseIDs: []uuid.UUID{uuid.New()},
	})
	assert.ErrorIs(t, err, catalog.ErrCourseNotFound)
}
