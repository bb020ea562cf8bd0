package service

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
)

// maxComboRounds bounds the greedy combo selection.
const maxComboRounds = 10

// HeldEvents lists, per sporter, the events held through registrations outside the
// evaluated items that are not cancelled.
type HeldEvents map[int64][]int64

func (h HeldEvents) holds(sporterID, eventID int64) bool {
	for _, id := range h[sporterID] {
		if id == eventID {
			return true
		}
	}
	return false
}

// EvaluateDiscounts recomputes the discount of every cart line from scratch. Codes
// not valid on day are ignored. Only lines marked FromCart receive a discount.
//
// Sporter and club codes are applied first and replace each other only on a strictly
// higher percentage. Combo codes follow, chosen greedily by euro amount, and replace
// a line's discount only when they give more.
func EvaluateDiscounts(items []models.CartItem, codes []models.DiscountCode, held HeldEvents, day time.Time) {
	for i := range items {
		items[i].Discount = decimal.Zero
		items[i].DiscountCodeID = nil
	}

	valid := make([]models.DiscountCode, 0, len(codes))
	for _, c := range codes {
		if c.ValidOn(day) {
			valid = append(valid, c)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].ID < valid[j].ID })

	applySimpleCodes(items, valid)
	applyComboCodes(items, valid, held)
}

func simpleCodeMatches(code *models.DiscountCode, item *models.CartItem) bool {
	if !code.CoversEvent(item.EventID) {
		return false
	}
	switch code.Kind {
	case models.DiscountKindSporter:
		return code.ForSporterID != nil && *code.ForSporterID == item.SporterID
	case models.DiscountKindClub:
		return code.ForClubID != nil && item.SporterClubID != nil && *code.ForClubID == *item.SporterClubID
	default:
		return false
	}
}

func applySimpleCodes(items []models.CartItem, codes []models.DiscountCode) {
	percent := make([]int, len(items))
	for i := range items {
		item := &items[i]
		if !item.FromCart {
			continue
		}
		for c := range codes {
			code := &codes[c]
			if !simpleCodeMatches(code, item) || code.Percentage <= percent[i] {
				continue
			}
			percent[i] = code.Percentage
			id := code.ID
			item.Discount = models.ApplyPercentage(item.Price, code.Percentage)
			item.DiscountCodeID = &id
		}
	}
}

type comboCandidate struct {
	code    *models.DiscountCode
	sporter int64
	line    int
	amount  decimal.Decimal
}

func applyComboCodes(items []models.CartItem, codes []models.DiscountCode, held HeldEvents) {
	var combos []*models.DiscountCode
	for c := range codes {
		if codes[c].Kind == models.DiscountKindCombo && len(codes[c].EventIDs) > 0 {
			combos = append(combos, &codes[c])
		}
	}
	if len(combos) == 0 {
		return
	}

	var sporters []int64
	seen := make(map[int64]bool)
	for _, item := range items {
		if !seen[item.SporterID] {
			seen[item.SporterID] = true
			sporters = append(sporters, item.SporterID)
		}
	}

	type key struct{ code, sporter int64 }
	used := make(map[key]bool)

	for round := 0; round < maxComboRounds; round++ {
		var best *comboCandidate
		for _, code := range combos {
			for _, sporter := range sporters {
				if used[key{code.ID, sporter}] {
					continue
				}
				cand, ok := comboFor(items, code, sporter, held)
				if !ok || !cand.amount.GreaterThan(items[cand.line].Discount) {
					continue
				}
				if best == nil || cand.amount.GreaterThan(best.amount) ||
					(cand.amount.Equal(best.amount) && cand.code.ID > best.code.ID) {
					c := cand
					best = &c
				}
			}
		}
		if best == nil {
			return
		}
		used[key{best.code.ID, best.sporter}] = true
		id := best.code.ID
		items[best.line].Discount = best.amount
		items[best.line].DiscountCodeID = &id
	}
}

// comboFor checks whether sporter holds every event of the combo and works out the
// line and amount it would land on.
func comboFor(items []models.CartItem, code *models.DiscountCode, sporter int64, held HeldEvents) (comboCandidate, bool) {
	setSum := decimal.Zero
	first := -1
	for _, eventID := range code.EventIDs {
		line := -1
		for i := range items {
			if items[i].SporterID == sporter && items[i].EventID == eventID {
				line = i
				break
			}
		}
		if line < 0 {
			if !held.holds(sporter, eventID) {
				return comboCandidate{}, false
			}
			continue
		}
		setSum = setSum.Add(items[line].Price)
		if first < 0 || items[line].ID < items[first].ID {
			first = line
		}
	}

	if code.BaseEventID != nil {
		for i := range items {
			if items[i].SporterID == sporter && items[i].EventID == *code.BaseEventID && items[i].FromCart {
				return comboCandidate{code: code, sporter: sporter, line: i,
					amount: models.ApplyPercentage(items[i].Price, code.Percentage)}, true
			}
		}
		return comboCandidate{}, false
	}

	if first < 0 || !items[first].FromCart {
		return comboCandidate{}, false
	}
	amount := models.ApplyPercentage(setSum, code.Percentage)
	if amount.GreaterThan(items[first].Price) {
		amount = items[first].Price
	}
	return comboCandidate{code: code, sporter: sporter, line: first, amount: amount}, true
}
