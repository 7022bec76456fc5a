package coupon

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/model"
	"github.com/learnforge/marketplace-api/services"
	"github.com/learnforge/marketplace-api/services/catalog"
	"github.com/learnforge/marketplace-api/utils/middleware"
	"github.com/learnforge/marketplace-api/utils/response"
	"github.com/learnforge/marketplace-api/utils/validation"
)

// CouponHandler handles coupon management and validation requests
type CouponHandler struct {
	coupons   *services.CouponService
	catalog   catalog.Service
	validator *validation.Validator
}

// NewCouponHandler creates a new coupon handler
func NewCouponHandler(coupons *services.CouponService, catalogSvc catalog.Service) *CouponHandler {
	return &CouponHandler{
		coupons:   coupons,
		catalog:   catalogSvc,
		validator: validation.NewValidator(),
	}
}

// CreateCouponRequest represents the request body for creating a coupon
type CreateCouponRequest struct {
	Code               string   `json:"code" validate:"required,min=3,max=50"`
	Description        string   `json:"description" validate:"max=500"`
	Type               string   `json:"type" validate:"required,oneof=percentage fixed_amount"`
	Value              float64  `json:"value" validate:"required,gt=0"`
	MinOrderAmount     *float64 `json:"min_order_amount" validate:"omitempty,gt=0"`
	MaxDiscountAmount  *float64 `json:"max_discount_amount" validate:"omitempty,gt=0"`
	UsageLimit         *int     `json:"usage_limit" validate:"omitempty,gt=0"`
	UsagePerUser       *int     `json:"usage_per_user" validate:"omitempty,gt=0"`
	ApplicableCourseID *string  `json:"applicable_course_id" validate:"omitempty,uuid"`
	ValidFrom          string   `json:"valid_from" validate:"required"`
	ValidTo            string   `json:"valid_to" validate:"required"`
}

// ValidateCouponRequest represents the request body for checking a coupon
// against a prospective order
type ValidateCouponRequest struct {
	Code      string   `json:"code" validate:"required"`
	CourseIDs []string `json:"course_ids" validate:"required,min=1,dive,uuid"`
}

func (r *CreateCouponRequest) toServiceRequest() (services.CreateCouponRequest, error) {
	validFrom, err := time.Parse(time.RFC3339, r.ValidFrom)
	if err != nil {
		return services.CreateCouponRequest{}, errors.New("valid_from must be an RFC3339 timestamp")
	}
	validTo, err := time.Parse(time.RFC3339, r.ValidTo)
	if err != nil {
		return services.CreateCouponRequest{}, errors.New("valid_to must be an RFC3339 timestamp")
	}

	req := services.CreateCouponRequest{
		Code:              r.Code,
		Description:       r.Description,
		Type:              model.CouponType(r.Type),
		Value:             r.Value,
		MinOrderAmount:    r.MinOrderAmount,
		MaxDiscountAmount: r.MaxDiscountAmount,
		UsageLimit:        r.UsageLimit,
		UsagePerUser:      r.UsagePerUser,
		ValidFrom:         validFrom,
		ValidTo:           validTo,
	}
	if r.ApplicableCourseID != nil {
		courseID, err := uuid.Parse(*r.ApplicableCourseID)
		if err != nil {
			return services.CreateCouponRequest{}, errors.New("invalid applicable_course_id")
		}
		req.ApplicableCourseID = &courseID
	}
	return req, nil
}

// CreateAdminCoupon handles POST /api/v1/coupons/admin
func (h *CouponHandler) CreateAdminCoupon(c *fiber.Ctx) error {
	var req CreateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	svcReq, err := req.toServiceRequest()
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	coupon, err := h.coupons.CreateAdminCoupon(c.Context(), svcReq)
	if err != nil {
		return h.couponError(c, err, "Failed to create coupon")
	}
	return response.Created(c, coupon)
}

// CreateInstructorCoupon handles POST /api/v1/coupons/instructor
func (h *CouponHandler) CreateInstructorCoupon(c *fiber.Ctx) error {
	instructorID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	var req CreateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	svcReq, err := req.toServiceRequest()
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	coupon, err := h.coupons.CreateInstructorCoupon(c.Context(), instructorID, svcReq)
	if err != nil {
		return h.couponError(c, err, "Failed to create coupon")
	}
	return response.Created(c, coupon)
}

// ValidateCoupon handles POST /api/v1/coupons/validate. It prices the
// requested courses through the catalog and reports the discount the
// coupon would grant, without reserving anything.
func (h *CouponHandler) ValidateCoupon(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	var req ValidateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	courseIDs := make([]uuid.UUID, 0, len(req.CourseIDs))
	for _, raw := range req.CourseIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return response.BadRequest(c, "Invalid course id")
		}
		courseIDs = append(courseIDs, id)
	}

	courses, err := h.catalog.GetCourses(c.Context(), courseIDs)
	if err != nil {
		return response.ServiceUnavailable(c, "Course catalog is unavailable")
	}

	var subtotal float64
	items := make([]services.CouponOrderItem, 0, len(courseIDs))
	for _, id := range courseIDs {
		course, found := courses[id]
		if !found {
			return response.NotFound(c, "Course not found")
		}
		items = append(items, services.CouponOrderItem{
			CourseID:     course.ID,
			InstructorID: course.InstructorID,
		})
		subtotal += course.FinalPrice
	}

	coupon, err := h.coupons.ValidateCoupon(c.Context(), req.Code, userID, items, subtotal)
	if err != nil {
		return h.couponError(c, err, "Failed to validate coupon")
	}

	discount := services.CalculateDiscount(coupon, subtotal)
	return response.Success(c, fiber.Map{
		"coupon":   coupon,
		"subtotal": subtotal,
		"discount": discount,
	})
}

// GetCoupon handles GET /api/v1/coupons/:id
func (h *CouponHandler) GetCoupon(c *fiber.Ctx) error {
	couponID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid coupon id")
	}

	coupon, err := h.coupons.GetByID(c.Context(), couponID)
	if err != nil {
		return h.couponError(c, err, "Failed to fetch coupon")
	}
	if !h.canManage(c, coupon) {
		return response.NotFound(c, "Coupon not found")
	}
	return response.Success(c, coupon)
}

// ListCoupons handles GET /api/v1/coupons. Admins see everything;
// instructors see only their own coupons.
func (h *CouponHandler) ListCoupons(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	opts := services.ListCouponsOptions{
		ActiveOnly: c.Query("active") == "true",
		Page:       page,
		Limit:      limit,
	}
	if middleware.UserRole(c) != "admin" {
		instructorID, ok := middleware.UserID(c)
		if !ok {
			return response.Unauthorized(c, "Authentication required")
		}
		opts.InstructorID = &instructorID
	}

	coupons, total, err := h.coupons.ListCoupons(c.Context(), opts)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch coupons")
	}
	return response.Paginated(c, coupons, response.CalculatePagination(page, limit, total))
}

// DeactivateCoupon handles POST /api/v1/coupons/:id/deactivate
func (h *CouponHandler) DeactivateCoupon(c *fiber.Ctx) error {
	couponID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid coupon id")
	}

	existing, err := h.coupons.GetByID(c.Context(), couponID)
	if err != nil {
		return h.couponError(c, err, "Failed to fetch coupon")
	}
	if !h.canManage(c, existing) {
		return response.NotFound(c, "Coupon not found")
	}

	coupon, err := h.coupons.Deactivate(c.Context(), couponID)
	if err != nil {
		return h.couponError(c, err, "Failed to deactivate coupon")
	}
	return response.SuccessWithMessage(c, "Coupon deactivated", coupon)
}

// DeleteCoupon handles DELETE /api/v1/coupons/:id
func (h *CouponHandler) DeleteCoupon(c *fiber.Ctx) error {
	couponID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid coupon id")
	}

	existing, err := h.coupons.GetByID(c.Context(), couponID)
	if err != nil {
		return h.couponError(c, err, "Failed to fetch coupon")
	}
	if !h.canManage(c, existing) {
		return response.NotFound(c, "Coupon not found")
	}

	if err := h.coupons.Delete(c.Context(), couponID); err != nil {
		return h.couponError(c, err, "Failed to delete coupon")
	}
	return response.NoContent(c)
}

// canManage reports whether the caller may view or mutate the coupon.
// Admins manage every coupon, instructors only the ones funded by their
// wallet.
func (h *CouponHandler) canManage(c *fiber.Ctx, coupon *model.Coupon) bool {
	if middleware.UserRole(c) == "admin" {
		return true
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		return false
	}
	return coupon.ApplicableInstructorID != nil && *coupon.ApplicableInstructorID == userID
}

func (h *CouponHandler) couponError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, services.ErrCouponNotFound):
		return response.NotFound(c, "Coupon not found")
	case errors.Is(err, services.ErrCouponCodeTaken):
		return response.Conflict(c, err.Error())
	case errors.Is(err, services.ErrCouponInactive),
		errors.Is(err, services.ErrCouponNotYetValid),
		errors.Is(err, services.ErrCouponExpired),
		errors.Is(err, services.ErrCouponUsageLimitReached),
		errors.Is(err, services.ErrCouponUserLimitReached),
		errors.Is(err, services.ErrCouponMinOrderNotMet),
		errors.Is(err, services.ErrCouponNotApplicable),
		errors.Is(err, services.ErrCouponUsageLimitNeeded),
		errors.Is(err, services.ErrCouponCourseNeeded):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrInsufficientBalance):
		return response.BadRequest(c, "Insufficient wallet balance to fund this coupon")
	case errors.Is(err, catalog.ErrCourseNotFound):
		return response.NotFound(c, "Course not found")
	default:
		return response.InternalServerError(c, fallback)
	}
}
