package payout

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/model"
	"github.com/learnforge/marketplace-api/services"
	"github.com/learnforge/marketplace-api/utils/middleware"
	"github.com/learnforge/marketplace-api/utils/response"
	"github.com/learnforge/marketplace-api/utils/validation"
)

// PayoutHandler handles payout request lifecycle endpoints
type PayoutHandler struct {
	payouts   *services.PayoutService
	validator *validation.Validator
}

// NewPayoutHandler creates a new payout handler
func NewPayoutHandler(payouts *services.PayoutService) *PayoutHandler {
	return &PayoutHandler{
		payouts:   payouts,
		validator: validation.NewValidator(),
	}
}

// CreatePayoutRequest represents the request body for filing a withdrawal
type CreatePayoutRequest struct {
	Amount            float64 `json:"amount" validate:"required,gt=0"`
	BankName          string  `json:"bank_name" validate:"required,max=200"`
	BankAccountNumber string  `json:"bank_account_number" validate:"required,max=50"`
	BankAccountName   string  `json:"bank_account_name" validate:"required,max=200"`
}

// RejectPayoutRequest represents the request body for rejecting a payout
type RejectPayoutRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// CreatePayout handles POST /api/v1/payouts
func (h *PayoutHandler) CreatePayout(c *fiber.Ctx) error {
	instructorID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	var req CreatePayoutRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	payout, err := h.payouts.CreatePayoutRequest(c.Context(), services.CreatePayoutRequestInput{
		InstructorID:      instructorID,
		Amount:            req.Amount,
		BankName:          req.BankName,
		BankAccountNumber: req.BankAccountNumber,
		BankAccountName:   req.BankAccountName,
	})
	if err != nil {
		return h.payoutError(c, err, "Failed to create payout request")
	}
	return response.Created(c, payout)
}

// ListMyPayouts handles GET /api/v1/payouts/my
func (h *PayoutHandler) ListMyPayouts(c *fiber.Ctx) error {
	instructorID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	opts := services.ListPayoutsOptions{
		InstructorID: &instructorID,
		Page:         page,
		Limit:        limit,
	}
	if raw := c.Query("status"); raw != "" {
		status := model.PayoutStatus(raw)
		opts.Status = &status
	}

	payouts, total, err := h.payouts.ListPayouts(c.Context(), opts)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch payout requests")
	}
	return response.Paginated(c, payouts, response.CalculatePagination(page, limit, total))
}

// ListPayouts handles GET /api/v1/payouts (admin)
func (h *PayoutHandler) ListPayouts(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	opts := services.ListPayoutsOptions{Page: page, Limit: limit}
	if raw := c.Query("instructor_id"); raw != "" {
		instructorID, err := uuid.Parse(raw)
		if err != nil {
			return response.BadRequest(c, "Invalid instructor id")
		}
		opts.InstructorID = &instructorID
	}
	if raw := c.Query("status"); raw != "" {
		status := model.PayoutStatus(raw)
		opts.Status = &status
	}

	payouts, total, err := h.payouts.ListPayouts(c.Context(), opts)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch payout requests")
	}
	return response.Paginated(c, payouts, response.CalculatePagination(page, limit, total))
}

// GetPayout handles GET /api/v1/payouts/:id
func (h *PayoutHandler) GetPayout(c *fiber.Ctx) error {
	payoutID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid payout id")
	}

	payout, err := h.payouts.GetByID(c.Context(), payoutID)
	if err != nil {
		return h.payoutError(c, err, "Failed to fetch payout request")
	}

	if middleware.UserRole(c) != "admin" {
		userID, ok := middleware.UserID(c)
		if !ok || payout.InstructorID != userID {
			return response.NotFound(c, "Payout request not found")
		}
	}
	return response.Success(c, payout)
}

// ApprovePayout handles POST /api/v1/payouts/:id/approve (admin)
func (h *PayoutHandler) ApprovePayout(c *fiber.Ctx) error {
	adminID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	payoutID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid payout id")
	}

	payout, err := h.payouts.Approve(c.Context(), payoutID, adminID)
	if err != nil {
		return h.payoutError(c, err, "Failed to approve payout request")
	}
	return response.SuccessWithMessage(c, "Payout approved", payout)
}

// RejectPayout handles POST /api/v1/payouts/:id/reject (admin)
func (h *PayoutHandler) RejectPayout(c *fiber.Ctx) error {
	adminID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	payoutID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid payout id")
	}

	var req RejectPayoutRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	payout, err := h.payouts.Reject(c.Context(), payoutID, adminID, req.Reason)
	if err != nil {
		return h.payoutError(c, err, "Failed to reject payout request")
	}
	return response.SuccessWithMessage(c, "Payout rejected", payout)
}

func (h *PayoutHandler) payoutError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, services.ErrPayoutNotFound):
		return response.NotFound(c, "Payout request not found")
	case errors.Is(err, services.ErrPayoutInFlight),
		errors.Is(err, services.ErrPayoutNotReviewable):
		return response.Conflict(c, err.Error())
	case errors.Is(err, services.ErrInsufficientBalance),
		errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrPayoutReasonRequired),
		errors.Is(err, services.ErrMissingBankDetails):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrWalletNotFound):
		return response.NotFound(c, "Wallet not found")
	default:
		return response.InternalServerError(c, fallback)
	}
}
