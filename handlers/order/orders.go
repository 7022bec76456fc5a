package order

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/services"
	"github.com/learnforge/marketplace-api/utils/middleware"
	"github.com/learnforge/marketplace-api/utils/response"
	"github.com/learnforge/marketplace-api/utils/validation"
)

// OrderHandler handles order-related requests
type OrderHandler struct {
	orders    *services.OrderService
	validator *validation.Validator
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orders *services.OrderService) *OrderHandler {
	return &OrderHandler{
		orders:    orders,
		validator: validation.NewValidator(),
	}
}

// CreateOrderRequest represents the request body for checkout
type CreateOrderRequest struct {
	CourseIDs            []string `json:"course_ids" validate:"required,min=1,dive,uuid"`
	InstructorCouponCode string   `json:"instructor_coupon_code" validate:"omitempty,max=50"`
	SystemCouponCode     string   `json:"system_coupon_code" validate:"omitempty,max=50"`
	Notes                string   `json:"notes" validate:"omitempty,max=1000"`
}

// BuyNowRequest represents the request body for single-course checkout
type BuyNowRequest struct {
	CourseID             string `json:"course_id" validate:"required,uuid"`
	InstructorCouponCode string `json:"instructor_coupon_code" validate:"omitempty,max=50"`
	SystemCouponCode     string `json:"system_coupon_code" validate:"omitempty,max=50"`
}

func (r *CreateOrderRequest) toServiceRequest(c *fiber.Ctx, userID uuid.UUID) (services.CreateOrderRequest, error) {
	courseIDs := make([]uuid.UUID, 0, len(r.CourseIDs))
	for _, raw := range r.CourseIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return services.CreateOrderRequest{}, err
		}
		courseIDs = append(courseIDs, id)
	}
	return services.CreateOrderRequest{
		UserID:               userID,
		CourseIDs:            courseIDs,
		InstructorCouponCode: r.InstructorCouponCode,
		SystemCouponCode:     r.SystemCouponCode,
		IPAddress:            c.IP(),
		UserAgent:            c.Get("User-Agent"),
		Notes:                r.Notes,
	}, nil
}

// PreviewOrder handles POST /api/v1/orders/preview
func (h *OrderHandler) PreviewOrder(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	var req CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	svcReq, err := req.toServiceRequest(c, userID)
	if err != nil {
		return response.BadRequest(c, "Invalid course id")
	}

	preview, err := h.orders.PreviewOrder(c.Context(), svcReq)
	if err != nil {
		return orderError(c, err)
	}
	return response.Success(c, preview)
}

// CreateOrder handles POST /api/v1/orders
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	var req CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	svcReq, err := req.toServiceRequest(c, userID)
	if err != nil {
		return response.BadRequest(c, "Invalid course id")
	}

	order, err := h.orders.CreateOrder(c.Context(), svcReq)
	if errors.Is(err, services.ErrPendingOrderExists) {
		return c.Status(fiber.StatusConflict).JSON(response.Response{
			Success: true,
			Message: "An order for these courses is already awaiting payment",
			Data:    order,
		})
	}
	if err != nil {
		return orderError(c, err)
	}
	return response.Created(c, order)
}

// BuyNow handles POST /api/v1/orders/buy-now
func (h *OrderHandler) BuyNow(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	var req BuyNowRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	courseID, err := uuid.Parse(req.CourseID)
	if err != nil {
		return response.BadRequest(c, "Invalid course id")
	}

	order, err := h.orders.BuyNow(c.Context(), userID, courseID,
		req.InstructorCouponCode, req.SystemCouponCode, c.IP(), c.Get("User-Agent"))
	if errors.Is(err, services.ErrPendingOrderExists) {
		return c.Status(fiber.StatusConflict).JSON(response.Response{
			Success: true,
			Message: "An order for this course is already awaiting payment",
			Data:    order,
		})
	}
	if err != nil {
		return orderError(c, err)
	}
	return response.Created(c, order)
}

// GetOrder handles GET /api/v1/orders/:id
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid order id")
	}

	order, err := h.orders.GetOrder(c.Context(), orderID)
	if err != nil {
		return orderError(c, err)
	}
	if order.UserID != userID && middleware.UserRole(c) != "admin" {
		return response.NotFound(c, "Order not found")
	}
	return response.Success(c, order)
}

// ListMyOrders handles GET /api/v1/orders/my
func (h *OrderHandler) ListMyOrders(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	orders, total, err := h.orders.GetOrdersByUser(c.Context(), userID, page, limit)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch orders")
	}
	return response.Paginated(c, orders, response.CalculatePagination(page, limit, total))
}

// GetPurchasedCourses handles GET /api/v1/orders/purchased-courses
func (h *OrderHandler) GetPurchasedCourses(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	courseIDs, err := h.orders.GetPurchasedCourseIDs(c.Context(), userID)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch purchased courses")
	}
	return response.Success(c, fiber.Map{"course_ids": courseIDs})
}

// CancelOrder handles DELETE /api/v1/orders/:id
func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid order id")
	}

	order, err := h.orders.CancelOrder(c.Context(), userID, orderID)
	if err != nil {
		return orderError(c, err)
	}
	return response.SuccessWithMessage(c, "Order cancelled", order)
}

// orderError maps order service failures onto HTTP responses
func orderError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		return response.NotFound(c, "Order not found")
	case errors.Is(err, services.ErrEmptyOrder),
		errors.Is(err, services.ErrCourseUnavailable),
		errors.Is(err, services.ErrNotInstructorCoupon),
		errors.Is(err, services.ErrNotSystemCoupon):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrCourseAlreadyOwned),
		errors.Is(err, services.ErrCannotBuyOwnCourse),
		errors.Is(err, services.ErrOrderNotCancellable):
		return response.Conflict(c, err.Error())
	case errors.Is(err, services.ErrCouponNotFound),
		errors.Is(err, services.ErrCouponInactive),
		errors.Is(err, services.ErrCouponNotYetValid),
		errors.Is(err, services.ErrCouponExpired),
		errors.Is(err, services.ErrCouponUsageLimitReached),
		errors.Is(err, services.ErrCouponUserLimitReached),
		errors.Is(err, services.ErrCouponMinOrderNotMet),
		errors.Is(err, services.ErrCouponNotApplicable):
		return response.BadRequest(c, err.Error())
	default:
		return response.InternalServerError(c, "Failed to process order")
	}
}
