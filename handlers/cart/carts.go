package cart

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/services"
	"github.com/learnforge/marketplace-api/services/catalog"
	"github.com/learnforge/marketplace-api/utils/middleware"
	"github.com/learnforge/marketplace-api/utils/response"
	"github.com/learnforge/marketplace-api/utils/validation"
)

// CartHandler handles shopping cart requests
type CartHandler struct {
	carts     *services.CartService
	validator *validation.Validator
}

// NewCartHandler creates a new cart handler
func NewCartHandler(carts *services.CartService) *CartHandler {
	return &CartHandler{
		carts:     carts,
		validator: validation.NewValidator(),
	}
}

// AddItemRequest represents the request body for adding a course to the cart
type AddItemRequest struct {
	CourseID string `json:"course_id" validate:"required,uuid"`
}

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	cart, err := h.carts.GetCart(c.Context(), userID)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch cart")
	}
	return response.Success(c, cart)
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	var req AddItemRequest
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

	cart, err := h.carts.AddItem(c.Context(), userID, courseID)
	switch {
	case errors.Is(err, catalog.ErrCourseNotFound):
		return response.NotFound(c, "Course not found")
	case errors.Is(err, catalog.ErrCatalogUnavailable):
		return response.ServiceUnavailable(c, "Course catalog is unavailable")
	case errors.Is(err, services.ErrCourseAlreadyInCart),
		errors.Is(err, services.ErrCourseAlreadyOwned),
		errors.Is(err, services.ErrCannotBuyOwnCourse):
		return response.Conflict(c, err.Error())
	case err != nil:
		return response.InternalServerError(c, "Failed to add course to cart")
	}
	return response.SuccessWithMessage(c, "Course added to cart", cart)
}

// RemoveItem handles DELETE /api/v1/cart/items/:courseId
func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	courseID, err := uuid.Parse(c.Params("courseId"))
	if err != nil {
		return response.BadRequest(c, "Invalid course id")
	}

	err = h.carts.RemoveItem(c.Context(), userID, courseID)
	if errors.Is(err, services.ErrCartItemNotFound) {
		return response.NotFound(c, "Course not found in cart")
	}
	if err != nil {
		return response.InternalServerError(c, "Failed to remove course from cart")
	}
	return response.NoContent(c)
}

// Clear handles DELETE /api/v1/cart
func (h *CartHandler) Clear(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	if err := h.carts.Clear(c.Context(), userID); err != nil {
		return response.InternalServerError(c, "Failed to clear cart")
	}
	return response.NoContent(c)
}
