package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/model"
	"github.com/stretchr/testify/assert"
)

func TestDedupeIDs(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	assert.Equal(t, []uuid.UUID{a, b, c}, dedupeIDs([]uuid.UUID{a, b, a, c, b}))
	assert.Empty(t, dedupeIDs(nil))
	assert.Equal(t, []uuid.UUID{a}, dedupeIDs([]uuid.UUID{a, a, a}))
}

func TestCouponAppliesToItem(t *testing.T) {
	courseID := uuid.New()
	instructorID := uuid.New()
	item := CouponOrderItem{CourseID: courseID, InstructorID: instructorID}

	assert.True(t, couponAppliesToItem(&model.Coupon{}, item))

	assert.True(t, couponAppliesToItem(&model.Coupon{ApplicableCourseID: &courseID}, item))
	other := uuid.New()
	assert.False(t, couponAppliesToItem(&model.Coupon{ApplicableCourseID: &other}, item))

	assert.True(t, couponAppliesToItem(&model.Coupon{ApplicableInstructorID: &instructorID}, item))
	assert.False(t, couponAppliesToItem(&model.Coupon{ApplicableInstructorID: &other}, item))

	// A course restriction is checked before the instructor restriction
	assert.False(t, couponAppliesToItem(&model.Coupon{
		ApplicableCourseID:     &other,
		ApplicableInstructorID: &instructorID,
	}, item))
}
