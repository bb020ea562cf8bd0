package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountKind is the scope of a discount code.
type DiscountKind string

const (
	DiscountKindSporter DiscountKind = "SPORTER"
	DiscountKindClub    DiscountKind = "CLUB"
	DiscountKindCombo   DiscountKind = "COMBO"
)

// DiscountCode is a kortingscode.
type DiscountCode struct {
	ID           int64        `db:"id" json:"id"`
	Code         string       `db:"code" json:"code"`
	Kind         DiscountKind `db:"kind" json:"kind"`
	Percentage   int          `db:"percentage" json:"percentage"`
	ValidThrough time.Time    `db:"valid_through" json:"validThrough"`
	IssuerClubID int64        `db:"issuer_club_id" json:"issuerClubId"`
	ForSporterID *int64       `db:"for_sporter_id" json:"forSporterId,omitempty"`
	ForClubID    *int64       `db:"for_club_id" json:"forClubId,omitempty"`
	BaseEventID  *int64       `db:"base_event_id" json:"baseEventId,omitempty"`
	Automatic    bool         `db:"automatic" json:"automatic"`
	EventIDs     []int64      `db:"-" json:"eventIds"`
}

// ValidOn reports whether the code may still be used on day. The valid-through date is inclusive.
func (d *DiscountCode) ValidOn(day time.Time) bool {
	y, m, dd := d.ValidThrough.Date()
	end := time.Date(y, m, dd, 0, 0, 0, 0, day.Location()).AddDate(0, 0, 1)
	return day.Before(end)
}

// CoversEvent reports whether eventID is in the code's event list.
func (d *DiscountCode) CoversEvent(eventID int64) bool {
	for _, id := range d.EventIDs {
		if id == eventID {
			return true
		}
	}
	return false
}

var hundred = decimal.NewFromInt(100)

// ApplyPercentage returns min(price * percent / 100, price) rounded to cents.
// A negative percentage yields no discount.
func ApplyPercentage(price decimal.Decimal, percent int) decimal.Decimal {
	if percent <= 0 || !price.IsPositive() {
		return decimal.Zero
	}
	discount := price.Mul(decimal.NewFromInt(int64(percent))).Div(hundred).RoundBank(2)
	if discount.GreaterThan(price) {
		return price
	}
	return discount
}
