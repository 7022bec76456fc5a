package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}

func TestCalculateDiscount(t *testing.T) {
	tests := []struct {
		name     string
		coupon   model.Coupon
		subtotal float64
		want     float64
	}{
		{
			name:     "percentage",
			coupon:   model.Coupon{Type: model.CouponTypePercentage, Value: 10},
			subtotal: 500000,
			want:     50000,
		},
		{
			name: "percentage capped by max discount",
			coupon: model.Coupon{
				Type:              model.CouponTypePercentage,
				Value:             50,
				MaxDiscountAmount: floatPtr(100000),
			},
			subtotal: 500000,
			want:     100000,
		},
		{
			name:     "fixed amount",
			coupon:   model.Coupon{Type: model.CouponTypeFixedAmount, Value: 75000},
			subtotal: 500000,
			want:     75000,
		},
		{
			name:     "fixed amount clamped to subtotal",
			coupon:   model.Coupon{Type: model.CouponTypeFixedAmount, Value: 75000},
			subtotal: 40000,
			want:     40000,
		},
		{
			name:     "hundred percent",
			coupon:   model.Coupon{Type: model.CouponTypePercentage, Value: 100},
			subtotal: 250000,
			want:     250000,
		},
		{
			name:     "zero subtotal",
			coupon:   model.Coupon{Type: model.CouponTypePercentage, Value: 10},
			subtotal: 0,
			want:     0,
		},
		{
			name:     "rounded to cents",
			coupon:   model.Coupon{Type: model.CouponTypePercentage, Value: 15},
			subtotal: 333.33,
			want:     50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateDiscount(&tt.coupon, tt.subtotal)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestCouponApplies(t *testing.T) {
	courseID := uuid.New()
	instructorID := uuid.New()
	items := []CouponOrderItem{
		{CourseID: courseID, InstructorID: instructorID},
		{CourseID: uuid.New(), InstructorID: uuid.New()},
	}

	unrestricted := &model.Coupon{}
	assert.True(t, couponApplies(unrestricted, items))

	byCourse := &model.Coupon{ApplicableCourseID: &courseID}
	assert.True(t, couponApplies(byCourse, items))

	otherCourse := uuid.New()
	byOtherCourse := &model.Coupon{ApplicableCourseID: &otherCourse}
	assert.False(t, couponApplies(byOtherCourse, items))

	byInstructor := &model.Coupon{ApplicableInstructorID: &instructorID}
	assert.True(t, couponApplies(byInstructor, items))

	otherInstructor := uuid.New()
	byOtherInstructor := &model.Coupon{ApplicableInstructorID: &otherInstructor}
	assert.False(t, couponApplies(byOtherInstructor, items))

	// Course restriction wins over instructor restriction when both are set
	both := &model.Coupon{ApplicableCourseID: &otherCourse, ApplicableInstructorID: &instructorID}
	assert.False(t, couponApplies(both, items))
}

func TestValidateRequestNormalizesCode(t *testing.T) {
	s := &CouponService{}
	req := CreateCouponRequest{
		Code:      "  summer25 ",
		Type:      model.CouponTypePercentage,
		Value:     25,
		ValidFrom: mustTime(t, "2026-06-01T00:00:00Z"),
		ValidTo:   mustTime(t, "2026-09-01T00:00:00Z"),
	}
	assert.NoError(t, s.validateRequest(&req))
	assert.Equal(t, "SUMMER25", req.Code)
}

func TestValidateRequestRejections(t *testing.T) {
	s := &CouponService{}
	from := mustTime(t, "2026-06-01T00:00:00Z")
	to := mustTime(t, "2026-09-01T00:00:00Z")

	tests := []struct {
		name string
		req  CreateCouponRequest
	}{
		{"empty code", CreateCouponRequest{Type: model.CouponTypePercentage, Value: 10, ValidFrom: from, ValidTo: to}},
		{"percent over 100", CreateCouponRequest{Code: "X", Type: model.CouponTypePercentage, Value: 150, ValidFrom: from, ValidTo: to}},
		{"zero percent", CreateCouponRequest{Code: "X", Type: model.CouponTypePercentage, Value: 0, ValidFrom: from, ValidTo: to}},
		{"negative fixed", CreateCouponRequest{Code: "X", Type: model.CouponTypeFixedAmount, Value: -5, ValidFrom: from, ValidTo: to}},
		{"unknown type", CreateCouponRequest{Code: "X", Type: "bogus", Value: 10, ValidFrom: from, ValidTo: to}},
		{"window inverted", CreateCouponRequest{Code: "X", Type: model.CouponTypePercentage, Value: 10, ValidFrom: to, ValidTo: from}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, s.validateRequest(&tt.req))
		})
	}
}
