package services

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeSplitSingleItemNoDiscount(t *testing.T) {
	instructorID := uuid.New()
	order := &model.Order{}
	items := []model.OrderItem{
		{ID: uuid.New(), InstructorID: instructorID, UnitPrice: 500000},
	}

	splits := ComputeSplit(order, items)
	require.Len(t, splits, 1)

	assert.Equal(t, instructorID, splits[0].InstructorID)
	assert.InDelta(t, 500000, splits[0].FinalPrice, 0.001)
	assert.InDelta(t, 350000, splits[0].InstructorEarnings, 0.001)
	assert.InDelta(t, 150000, splits[0].PlatformFee, 0.001)
}

func TestComputeSplitSharesAddUpExactly(t *testing.T) {
	// The platform fee is derived by subtraction, so earnings + fee
	// reproduce the final price with no rounding drift.
	order := &model.Order{
		InstructorDiscountAmount: 33333.33,
		SystemDiscountAmount:     12345.67,
	}
	items := []model.OrderItem{
		{ID: uuid.New(), InstructorID: uuid.New(), UnitPrice: 199000},
		{ID: uuid.New(), InstructorID: uuid.New(), UnitPrice: 299000},
		{ID: uuid.New(), InstructorID: uuid.New(), UnitPrice: 99000},
	}

	splits := ComputeSplit(order, items)
	require.Len(t, splits, 3)

	for _, split := range splits {
		assert.InDelta(t, split.FinalPrice, split.InstructorEarnings+split.PlatformFee, 1e-9)
	}
}

func TestComputeSplitProportionalAttribution(t *testing.T) {
	// Two items at 300k and 100k with a 40k instructor discount: the
	// discount spreads 30k/10k by unit price share.
	order := &model.Order{InstructorDiscountAmount: 40000}
	items := []model.OrderItem{
		{ID: uuid.New(), InstructorID: uuid.New(), UnitPrice: 300000},
		{ID: uuid.New(), InstructorID: uuid.New(), UnitPrice: 100000},
	}

	splits := ComputeSplit(order, items)
	require.Len(t, splits, 2)

	assert.InDelta(t, 30000, splits[0].InstructorDiscount, 0.001)
	assert.InDelta(t, 10000, splits[1].InstructorDiscount, 0.001)
	assert.InDelta(t, 270000, splits[0].FinalPrice, 0.001)
	assert.InDelta(t, 90000, splits[1].FinalPrice, 0.001)
}

func TestComputeSplitStackedDiscounts(t *testing.T) {
	// The system discount is spread over the subtotal remaining after the
	// instructor discount, not the raw unit prices.
	order := &model.Order{
		InstructorDiscountAmount: 100000,
		SystemDiscountAmount:     60000,
	}
	items := []model.OrderItem{
		{ID: uuid.New(), InstructorID: uuid.New(), UnitPrice: 400000},
		{ID: uuid.New(), InstructorID: uuid.New(), UnitPrice: 100000},
	}

	splits := ComputeSplit(order, items)
	require.Len(t, splits, 2)

	// Instructor discount: 80k / 20k. After: 320k / 80k.
	// System discount spreads 48k / 12k over that remainder.
	assert.InDelta(t, 80000, splits[0].InstructorDiscount, 0.001)
	assert.InDelta(t, 20000, splits[1].InstructorDiscount, 0.001)
	assert.InDelta(t, 48000, splits[0].SystemDiscount, 0.001)
	assert.InDelta(t, 12000, splits[1].SystemDiscount, 0.001)
	assert.InDelta(t, 272000, splits[0].FinalPrice, 0.001)
	assert.InDelta(t, 68000, splits[1].FinalPrice, 0.001)
}

func TestComputeSplitConservation(t *testing.T) {
	// Sum of final prices equals subtotal minus both discounts.
	order := &model.Order{
		InstructorDiscountAmount: 57123.45,
		SystemDiscountAmount:     31987.65,
	}
	items := []model.OrderItem{
		{ID: uuid.New(), InstructorID: uuid.New(), UnitPrice: 123456.78},
		{ID: uuid.New(), InstructorID: uuid.New(), UnitPrice: 87654.32},
		{ID: uuid.New(), InstructorID: uuid.New(), UnitPrice: 246800},
		{ID: uuid.New(), InstructorID: uuid.New(), UnitPrice: 99999.99},
	}

	var subtotal float64
	for _, item := range items {
		subtotal += item.UnitPrice
	}

	splits := ComputeSplit(order, items)

	var totalFinal, totalInstDisc, totalSysDisc float64
	for _, split := range splits {
		totalFinal += split.FinalPrice
		totalInstDisc += split.InstructorDiscount
		totalSysDisc += split.SystemDiscount
	}

	assert.InDelta(t, order.InstructorDiscountAmount, totalInstDisc, 0.01)
	assert.InDelta(t, order.SystemDiscountAmount, totalSysDisc, 0.01)
	assert.InDelta(t, subtotal-order.InstructorDiscountAmount-order.SystemDiscountAmount, totalFinal, 0.01)
}

func TestComputeSplitFinalPriceNeverNegative(t *testing.T) {
	order := &model.Order{
		InstructorDiscountAmount: 90000,
		SystemDiscountAmount:     90000,
	}
	items := []model.OrderItem{
		{ID: uuid.New(), InstructorID: uuid.New(), UnitPrice: 100000},
	}

	splits := ComputeSplit(order, items)
	require.Len(t, splits, 1)
	assert.GreaterOrEqual(t, splits[0].FinalPrice, 0.0)
	assert.GreaterOrEqual(t, splits[0].InstructorEarnings, 0.0)
	assert.GreaterOrEqual(t, splits[0].PlatformFee, 0.0)
}

func TestComputeSplitZeroSubtotal(t *testing.T) {
	order := &model.Order{InstructorDiscountAmount: 1000}
	items := []model.OrderItem{
		{ID: uuid.New(), InstructorID: uuid.New(), UnitPrice: 0},
	}

	splits := ComputeSplit(order, items)
	require.Len(t, splits, 1)
	assert.Zero(t, splits[0].InstructorDiscount)
	assert.Zero(t, splits[0].FinalPrice)
	assert.False(t, math.IsNaN(splits[0].InstructorEarnings))
}
