package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RegistrationStatus tracks an event registration from cart to payment.
type RegistrationStatus string

const (
	RegistrationStatusCart       RegistrationStatus = "CART"
	RegistrationStatusOrdered    RegistrationStatus = "ORDERED"
	RegistrationStatusDefinitive RegistrationStatus = "DEFINITIVE"
	RegistrationStatusCancelled  RegistrationStatus = "CANCELLED"
)

// OrderStatus tracks an order.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusAwaitingPayment OrderStatus = "AWAITING_PAYMENT"
	OrderStatusCompleted       OrderStatus = "COMPLETED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
)

// YouthAgeLimit is the wedstrijdleeftijd below which the youth price applies.
const YouthAgeLimit = 18

// FreeOrderThreshold is the order total below which an order needs no payment.
var FreeOrderThreshold = decimal.RequireFromString("0.001")

// Cart is the single per-account basket (mandje).
type Cart struct {
	ID           int64           `db:"id" json:"id"`
	AccountID    int64           `db:"account_id" json:"accountId"`
	Total        decimal.Decimal `db:"total" json:"total"`
	DiscountCode *string         `db:"discount_code" json:"discountCode,omitempty"`
}

// CartItem is a line item, linked to a cart until ordered and to an order afterwards.
type CartItem struct {
	ID             int64           `db:"id" json:"id"`
	CartID         *int64          `db:"cart_id" json:"-"`
	OrderID        *int64          `db:"order_id" json:"orderId,omitempty"`
	RegistrationID int64           `db:"registration_id" json:"registrationId"`
	Description    string          `db:"description" json:"description"`
	Price          decimal.Decimal `db:"price" json:"price"`
	Discount       decimal.Decimal `db:"discount" json:"discount"`
	DiscountCodeID *int64          `db:"discount_code_id" json:"discountCodeId,omitempty"`

	EventID         int64  `db:"event_id" json:"eventId"`
	SporterID       int64  `db:"sporter_id" json:"sporterId"`
	SporterClubID   *int64 `db:"sporter_club_id" json:"-"`
	OrganizerClubID int64  `db:"organizer_club_id" json:"-"`

	// FromCart marks items read by the cart engine itself; discounts are only applied to these.
	FromCart bool `db:"-" json:"-"`
}

// Net is the price after discount.
func (i *CartItem) Net() decimal.Decimal {
	return i.Price.Sub(i.Discount)
}

// Event is a wedstrijd that can be registered for.
type Event struct {
	ID              int64           `db:"id" json:"id"`
	OrganizerClubID int64           `db:"organizer_club_id" json:"organizerClubId"`
	Title           string          `db:"title" json:"title"`
	Date            time.Time       `db:"date" json:"date"`
	Price           decimal.Decimal `db:"price" json:"price"`
	YouthPrice      decimal.Decimal `db:"youth_price" json:"youthPrice"`
}

// Registration is an event registration (inschrijving).
type Registration struct {
	ID            int64              `db:"id" json:"id"`
	CreatedAt     time.Time          `db:"created_at" json:"createdAt"`
	EventID       int64              `db:"event_id" json:"eventId"`
	SessionID     *int64             `db:"session_id" json:"sessionId,omitempty"`
	SporterBoogID int64              `db:"sporterboog_id" json:"sporterboogId"`
	SporterID     int64              `db:"sporter_id" json:"sporterId"`
	AccountID     int64              `db:"account_id" json:"accountId"`
	Status        RegistrationStatus `db:"status" json:"status"`
	Received      decimal.Decimal    `db:"received" json:"received"`
	Log           string             `db:"log" json:"-"`
}

// RegistrationDetail joins a registration with what pricing a new line item needs.
type RegistrationDetail struct {
	Registration
	EventTitle      string          `db:"event_title"`
	EventDate       time.Time       `db:"event_date"`
	EventPrice      decimal.Decimal `db:"event_price"`
	YouthPrice      decimal.Decimal `db:"youth_price"`
	OrganizerClubID int64           `db:"organizer_club_id"`
	SporterBirth    time.Time       `db:"sporter_birth"`
}

// IsYouth reports whether the wedstrijdleeftijd (the age reached during the event year) is below YouthAgeLimit.
func (d *RegistrationDetail) IsYouth() bool {
	return d.EventDate.Year()-d.SporterBirth.Year() < YouthAgeLimit
}

// Price returns the line item price for this registration.
func (d *RegistrationDetail) Price() decimal.Decimal {
	if d.IsYouth() && d.YouthPrice.IsPositive() {
		return d.YouthPrice
	}
	return d.EventPrice
}

// Order groups line items paid to one receiving club.
type Order struct {
	ID        int64           `db:"id" json:"id"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
	Number    int64           `db:"number" json:"number"`
	AccountID int64           `db:"account_id" json:"accountId"`
	ClubID    int64           `db:"club_id" json:"clubId"`
	Total     decimal.Decimal `db:"total" json:"total"`
	Status    OrderStatus     `db:"status" json:"status"`
	Log       string          `db:"log" json:"-"`
}

// PaymentSettings tells which club receives payments for events organised by a club.
type PaymentSettings struct {
	ClubID        int64 `db:"club_id"`
	ViaFederation bool  `db:"via_federation"`
}
