package wallet

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/model"
	"github.com/learnforge/marketplace-api/services"
	"github.com/learnforge/marketplace-api/utils/middleware"
	"github.com/learnforge/marketplace-api/utils/response"
	"github.com/learnforge/marketplace-api/utils/validation"
)

// WalletHandler handles instructor and platform wallet requests
type WalletHandler struct {
	wallets        *services.WalletService
	platformWallet *services.PlatformWalletService
	transactions   *services.TransactionService
	validator      *validation.Validator
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(wallets *services.WalletService, platformWallet *services.PlatformWalletService, transactions *services.TransactionService) *WalletHandler {
	return &WalletHandler{
		wallets:        wallets,
		platformWallet: platformWallet,
		transactions:   transactions,
		validator:      validation.NewValidator(),
	}
}

// UpdateBankAccountRequest represents the request body for saving payout
// bank details
type UpdateBankAccountRequest struct {
	BankName      string `json:"bank_name" validate:"required,max=200"`
	AccountNumber string `json:"account_number" validate:"required,max=50"`
	AccountHolder string `json:"account_holder" validate:"required,max=200"`
	BranchName    string `json:"branch_name" validate:"max=200"`
}

// GetMyWallet handles GET /api/v1/wallets/me
func (h *WalletHandler) GetMyWallet(c *fiber.Ctx) error {
	instructorID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	wallet, err := h.wallets.GetOrCreateWallet(c.Context(), instructorID)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch wallet")
	}
	return response.Success(c, wallet)
}

// ListMyTransactions handles GET /api/v1/wallets/me/transactions
func (h *WalletHandler) ListMyTransactions(c *fiber.Ctx) error {
	instructorID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	wallet, err := h.wallets.GetOrCreateWallet(c.Context(), instructorID)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch wallet")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	opts := services.ListByWalletOptions{
		WalletID: wallet.ID,
		Page:     page,
		Limit:    limit,
	}
	if raw := c.Query("type"); raw != "" {
		entryType := model.TransactionType(raw)
		opts.Type = &entryType
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return response.BadRequest(c, "from must be an RFC3339 timestamp")
		}
		opts.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return response.BadRequest(c, "to must be an RFC3339 timestamp")
		}
		opts.To = &to
	}

	entries, total, err := h.transactions.ListByWallet(c.Context(), opts)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch transactions")
	}
	return response.Paginated(c, entries, response.CalculatePagination(page, limit, total))
}

// UpdateBankAccount handles PUT /api/v1/wallets/me/bank-account
func (h *WalletHandler) UpdateBankAccount(c *fiber.Ctx) error {
	instructorID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	var req UpdateBankAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	// Stored as jsonb; persist the validated fields only.
	info, err := json.Marshal(req)
	if err != nil {
		return response.InternalServerError(c, "Failed to update bank account")
	}

	wallet, err := h.wallets.UpdateBankAccount(c.Context(), instructorID, info)
	if err != nil {
		return response.InternalServerError(c, "Failed to update bank account")
	}
	return response.SuccessWithMessage(c, "Bank account updated", wallet)
}

// ReconcileMyWallet handles GET /api/v1/wallets/me/reconcile
func (h *WalletHandler) ReconcileMyWallet(c *fiber.Ctx) error {
	instructorID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	wallet, err := h.wallets.GetWallet(c.Context(), instructorID)
	if errors.Is(err, services.ErrWalletNotFound) {
		return response.NotFound(c, "Wallet not found")
	}
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch wallet")
	}

	result, err := h.transactions.ReconcileWallet(c.Context(), wallet.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to reconcile wallet")
	}
	return response.Success(c, result)
}

// GetPlatformWallet handles GET /api/v1/wallets/platform (admin)
func (h *WalletHandler) GetPlatformWallet(c *fiber.Ctx) error {
	wallet, err := h.platformWallet.GetWallet(c.Context())
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch platform wallet")
	}
	return response.Success(c, wallet)
}

// ListPlatformTransactions handles GET /api/v1/wallets/platform/transactions (admin)
func (h *WalletHandler) ListPlatformTransactions(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	entries, total, err := h.platformWallet.ListTransactions(c.Context(), page, limit)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch platform transactions")
	}
	return response.Paginated(c, entries, response.CalculatePagination(page, limit, total))
}

// PlatformRevenue handles GET /api/v1/wallets/platform/revenue (admin)
func (h *WalletHandler) PlatformRevenue(c *fiber.Ctx) error {
	now := time.Now().UTC()
	from := now.AddDate(0, -1, 0)
	to := now

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return response.BadRequest(c, "from must be an RFC3339 timestamp")
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return response.BadRequest(c, "to must be an RFC3339 timestamp")
		}
		to = parsed
	}

	total, err := h.transactions.PlatformRevenue(c.Context(), from, to)
	if err != nil {
		return response.InternalServerError(c, "Failed to compute revenue")
	}
	return response.Success(c, fiber.Map{
		"from":    from,
		"to":      to,
		"revenue": total,
	})
}

// GetInstructorWallet handles GET /api/v1/wallets/instructor/:instructorId (admin)
func (h *WalletHandler) GetInstructorWallet(c *fiber.Ctx) error {
	instructorID, err := uuid.Parse(c.Params("instructorId"))
	if err != nil {
		return response.BadRequest(c, "Invalid instructor id")
	}

	wallet, err := h.wallets.GetWallet(c.Context(), instructorID)
	if errors.Is(err, services.ErrWalletNotFound) {
		return response.NotFound(c, "Wallet not found")
	}
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch wallet")
	}
	return response.Success(c, wallet)
}
