package payment

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/services"
	"github.com/learnforge/marketplace-api/utils/middleware"
	"github.com/learnforge/marketplace-api/utils/response"
	"github.com/learnforge/marketplace-api/utils/validation"
)

// PaymentHandler handles payment-related requests
type PaymentHandler struct {
	payments          *services.PaymentService
	validator         *validation.Validator
	frontendReturnURL string
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments *services.PaymentService, frontendReturnURL string) *PaymentHandler {
	return &PaymentHandler{
		payments:          payments,
		validator:         validation.NewValidator(),
		frontendReturnURL: frontendReturnURL,
	}
}

// ProcessPaymentRequest represents the request body for starting a payment
type ProcessPaymentRequest struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
}

// TopUpRequest represents the request body for a wallet top-up
type TopUpRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

// ProcessPayment handles POST /api/v1/payments/process
func (h *PaymentHandler) ProcessPayment(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	var req ProcessPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return response.BadRequest(c, "Invalid order id")
	}

	payment, err := h.payments.ProcessPayment(c.Context(), userID, orderID, c.IP())
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		return response.NotFound(c, "Order not found")
	case errors.Is(err, services.ErrOrderAlreadyPaid),
		errors.Is(err, services.ErrOrderNotPayable):
		return response.Conflict(c, err.Error())
	case err != nil:
		return response.InternalServerError(c, "Failed to start payment")
	}

	return response.SuccessWithMessage(c, "Redirect the user to the payment URL", payment)
}

// ProcessTopUp handles POST /api/v1/payments/topup
func (h *PaymentHandler) ProcessTopUp(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	var req TopUpRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	payment, err := h.payments.ProcessTopUp(c.Context(), userID, req.Amount, c.IP())
	if errors.Is(err, services.ErrInvalidTopUpAmount) {
		return response.BadRequest(c, err.Error())
	}
	if err != nil {
		return response.InternalServerError(c, "Failed to start top-up")
	}

	return response.SuccessWithMessage(c, "Redirect the user to the payment URL", payment)
}

// VNPayCallback handles GET /api/v1/payments/vnpay/callback. The gateway
// redirects the user's browser here after the payment attempt; the raw
// query string carries the signed result. The user is forwarded to the
// frontend with a payment_status flag appended.
func (h *PaymentHandler) VNPayCallback(c *fiber.Ctx) error {
	rawQuery := string(c.Request().URI().QueryString())

	outcome, err := h.payments.HandleVNPayCallback(c.Context(), rawQuery)
	status := "failed"
	if err == nil && outcome.Success {
		status = "success"
	}

	if h.frontendReturnURL != "" {
		target := fmt.Sprintf("%s?%s&payment_status=%s", h.frontendReturnURL, rawQuery, status)
		return c.Redirect(target, fiber.StatusFound)
	}

	if err != nil {
		return response.BadRequest(c, "Invalid payment callback")
	}
	return response.Success(c, fiber.Map{
		"payment_status": status,
		"reason":         outcome.Reason,
	})
}

// CheckPaymentStatus handles GET /api/v1/payments/:id/status
func (h *PaymentHandler) CheckPaymentStatus(c *fiber.Ctx) error {
	paymentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid payment id")
	}

	payment, err := h.payments.CheckPaymentStatus(c.Context(), paymentID)
	if errors.Is(err, services.ErrPaymentNotFound) {
		return response.NotFound(c, "Payment not found")
	}
	if err != nil {
		return response.InternalServerError(c, "Failed to check payment status")
	}
	return response.Success(c, payment)
}

// ListByOrder handles GET /api/v1/payments/order/:orderId
func (h *PaymentHandler) ListByOrder(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("orderId"))
	if err != nil {
		return response.BadRequest(c, "Invalid order id")
	}

	payments, err := h.payments.GetPaymentsByOrder(c.Context(), orderID)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch payments")
	}
	return response.Success(c, payments)
}

// ListMyPayments handles GET /api/v1/payments/my
func (h *PaymentHandler) ListMyPayments(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	payments, total, err := h.payments.GetPaymentsByUser(c.Context(), userID, page, limit)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch payments")
	}
	return response.Paginated(c, payments, response.CalculatePagination(page, limit, total))
}
