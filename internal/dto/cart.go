package dto

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
)

// AddRegistrationRequest registers a sporterboog for an event and puts it in the cart.
type AddRegistrationRequest struct {
	EventID       int64  `json:"eventId" validate:"required,gt=0"`
	SessionID     *int64 `json:"sessionId" validate:"omitempty,gt=0"`
	SporterBoogID int64  `json:"sporterboogId" validate:"required,gt=0"`
	Snel          bool   `json:"snel"`
}

// DiscountCodeRequest enters a discount code on the cart. An empty code clears it.
type DiscountCodeRequest struct {
	Code string `json:"code" validate:"max=20"`
	Snel bool   `json:"snel"`
}

// CartView lists the contents of a cart.
type CartView struct {
	Items    []models.CartItem `json:"items"`
	Subtotal decimal.Decimal   `json:"subtotal"`
	Discount decimal.Decimal   `json:"discount"`
	Total    decimal.Decimal   `json:"total"`
}

// CartCount is the cached number of cart items.
type CartCount struct {
	Count int `json:"count"`
}
