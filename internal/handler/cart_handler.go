package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/nhb-competitie-api/internal/dto"
	"github.com/noah-isme/nhb-competitie-api/internal/middleware"
	"github.com/noah-isme/nhb-competitie-api/internal/models"
	appErrors "github.com/noah-isme/nhb-competitie-api/pkg/errors"
	"github.com/noah-isme/nhb-competitie-api/pkg/response"
)

type cartEnqueuer interface {
	AddRegistration(ctx context.Context, req dto.AddRegistrationRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error)
	RemoveItem(ctx context.Context, itemID int64, req dto.SnelRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error)
	SetDiscountCode(ctx context.Context, req dto.DiscountCodeRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error)
	Checkout(ctx context.Context, req dto.SnelRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error)
	CancelRegistration(ctx context.Context, registrationID int64, req dto.SnelRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error)
}

type cartReader interface {
	EachRegistration(ctx context.Context, accountID int64, fn func(*models.CartItem) error) error
}

type cartCounter interface {
	Count(ctx context.Context, accountID int64) (int, bool, error)
}

// CartHandler exposes the mandje of the signed-in account.
type CartHandler struct {
	mutations cartEnqueuer
	carts     cartReader
	counts    cartCounter
}

// NewCartHandler constructs the handler.
func NewCartHandler(mutations cartEnqueuer, carts cartReader, counts cartCounter) *CartHandler {
	return &CartHandler{mutations: mutations, carts: carts, counts: counts}
}

// AddRegistration godoc
// @Summary Register for an event and put it in the cart
// @Tags Cart
// @Accept json
// @Produce json
// @Param payload body dto.AddRegistrationRequest true "Event and sporterboog"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /api/v1/cart/registrations [post]
func (h *CartHandler) AddRegistration(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.AddRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid registration payload"))
		return
	}
	resp, err := h.mutations.AddRegistration(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, resp)
}

// RemoveItem godoc
// @Summary Remove an item from the cart
// @Tags Cart
// @Produce json
// @Param id path int true "Cart item ID"
// @Success 202 {object} response.Envelope
// @Router /api/v1/cart/items/{id} [delete]
func (h *CartHandler) RemoveItem(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	req := dto.SnelRequest{Snel: c.Query("snel") == "true"}
	resp, err := h.mutations.RemoveItem(c.Request.Context(), id, req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, resp)
}

// SetDiscountCode godoc
// @Summary Enter a discount code
// @Tags Cart
// @Accept json
// @Produce json
// @Param payload body dto.DiscountCodeRequest true "Code"
// @Success 202 {object} response.Envelope
// @Router /api/v1/cart/discount-code [post]
func (h *CartHandler) SetDiscountCode(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DiscountCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid discount code payload"))
		return
	}
	resp, err := h.mutations.SetDiscountCode(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, resp)
}

// Checkout godoc
// @Summary Turn the cart into orders
// @Tags Cart
// @Produce json
// @Param payload body dto.SnelRequest false "Fire and forget"
// @Success 202 {object} response.Envelope
// @Router /api/v1/cart/checkout [post]
func (h *CartHandler) Checkout(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SnelRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	resp, err := h.mutations.Checkout(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, resp)
}

// CancelRegistration godoc
// @Summary Cancel an ordered registration
// @Tags Cart
// @Produce json
// @Param id path int true "Registration ID"
// @Success 202 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /api/v1/registrations/{id}/cancel [post]
func (h *CartHandler) CancelRegistration(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.SnelRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	resp, err := h.mutations.CancelRegistration(c.Request.Context(), id, req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, resp)
}

// Contents godoc
// @Summary List the cart
// @Tags Cart
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /api/v1/cart [get]
func (h *CartHandler) Contents(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	view := dto.CartView{Items: []models.CartItem{}, Subtotal: decimal.Zero, Discount: decimal.Zero, Total: decimal.Zero}
	err := h.carts.EachRegistration(c.Request.Context(), claims.AccountID, func(item *models.CartItem) error {
		view.Items = append(view.Items, *item)
		view.Subtotal = view.Subtotal.Add(item.Price)
		view.Discount = view.Discount.Add(item.Discount)
		return nil
	})
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cart"))
		return
	}
	view.Total = view.Subtotal.Sub(view.Discount)
	response.JSON(c, http.StatusOK, view, middleware.ExtractMeta(c))
}

// Count godoc
// @Summary Number of items in the cart
// @Tags Cart
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /api/v1/cart/count [get]
func (h *CartHandler) Count(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	count, hit, err := h.counts.Count(c.Request.Context(), claims.AccountID)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count cart"))
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, dto.CartCount{Count: count}, middleware.ExtractMeta(c))
}
