package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
	appErrors "github.com/noah-isme/nhb-competitie-api/pkg/errors"
)

// cartCountInvalidator drops the cached item count of an account.
type cartCountInvalidator interface {
	Invalidate(ctx context.Context, accountID int64)
}

// CartService is the cart engine behind the cart mutation queue. Every write runs in
// one transaction that starts by locking the account's cart row.
type CartService struct {
	tx               TxFunc
	counts           cartCountInvalidator
	federationClubID int64
	logger           *zap.Logger
	clock            clock
}

// NewCartService constructs the service. counts may be nil.
func NewCartService(tx TxFunc, counts cartCountInvalidator, federationClubID int64, logger *zap.Logger) *CartService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartService{tx: tx, counts: counts, federationClubID: federationClubID, logger: logger}
}

func cartAccount(m *models.CartMutation) (int64, error) {
	if m.AccountID == nil {
		return 0, missingRef("account")
	}
	return *m.AccountID, nil
}

// locked runs fn inside a transaction holding the cart lock, then re-evaluates the
// discounts and recomputes the total when evaluate is set.
func (s *CartService) locked(ctx context.Context, accountID int64, evaluate bool, fn func(Stores, *models.Cart) error) error {
	err := s.tx(ctx, func(st Stores) error {
		cart, err := st.Carts.Lock(ctx, accountID)
		if err != nil {
			return err
		}
		if err := fn(st, cart); err != nil {
			return err
		}
		if evaluate {
			if err := s.evaluate(ctx, st, cart); err != nil {
				return err
			}
		}
		total, err := st.Carts.RecomputeTotal(ctx, cart.ID)
		if err != nil {
			return err
		}
		s.logger.Debug("cart total recomputed", zap.Int64("account_id", accountID), zap.String("total", total.StringFixed(2)))
		return nil
	})
	if err == nil && s.counts != nil {
		s.counts.Invalidate(ctx, accountID)
	}
	return err
}

// AddRegistration puts a registration in the account's cart at the event or youth price.
func (s *CartService) AddRegistration(ctx context.Context, m *models.CartMutation) error {
	accountID, err := cartAccount(m)
	if err != nil {
		return err
	}
	if m.RegistrationID == nil {
		return missingRef("registration")
	}
	regID := *m.RegistrationID

	return s.locked(ctx, accountID, true, func(st Stores, cart *models.Cart) error {
		exists, err := st.Carts.HasRegistration(ctx, regID)
		if err != nil {
			return err
		}
		if exists {
			s.logger.Info("registration already has a line item", zap.Int64("registration_id", regID))
			return nil
		}
		detail, err := st.Registrations.GetDetail(ctx, regID)
		if err != nil {
			return notFound("registration", err)
		}
		if detail.Status != models.RegistrationStatusCart {
			s.logger.Warn("registration not in cart state", zap.Int64("registration_id", regID),
				zap.String("status", string(detail.Status)))
			return nil
		}

		cartID := cart.ID
		item := &models.CartItem{
			CartID:         &cartID,
			RegistrationID: regID,
			Description:    fmt.Sprintf("Inschrijving %s op %s", detail.EventTitle, detail.EventDate.Format("02-01-2006")),
			Price:          detail.Price(),
			Discount:       decimal.Zero,
		}
		if err := st.Carts.AddItem(ctx, item); err != nil {
			return err
		}
		s.logger.Info("cart item added", zap.Int64("account_id", accountID), zap.Int64("item_id", item.ID),
			zap.String("price", item.Price.StringFixed(2)))
		return nil
	})
}

// RemoveItem takes a line item out of the cart and cancels its registration. An
// item that is not in the cart is ignored; the total is recomputed either way.
func (s *CartService) RemoveItem(ctx context.Context, m *models.CartMutation) error {
	accountID, err := cartAccount(m)
	if err != nil {
		return err
	}
	if m.CartItemID == nil {
		return missingRef("cart item")
	}
	itemID := *m.CartItemID

	return s.locked(ctx, accountID, true, func(st Stores, cart *models.Cart) error {
		item, err := st.Carts.GetItem(ctx, cart.ID, itemID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := st.Carts.DeleteItem(ctx, item.ID); err != nil {
			return err
		}
		reg, err := st.Registrations.Get(ctx, item.RegistrationID)
		if err != nil {
			return notFound("registration", err)
		}
		line := fmt.Sprintf("[%s] Verwijderd uit het mandje door %s", logStamp(s.clock.now()), m.Actor)
		if err := st.Registrations.SetStatus(ctx, reg.ID, models.RegistrationStatusCancelled, line); err != nil {
			return err
		}
		return st.Registrations.ReleaseSeat(ctx, reg.SessionID)
	})
}

// SetDiscountCode stores the code entered on the cart. An empty code clears it.
func (s *CartService) SetDiscountCode(ctx context.Context, m *models.CartMutation) error {
	accountID, err := cartAccount(m)
	if err != nil {
		return err
	}
	var code *string
	if m.DiscountCode != nil {
		if trimmed := strings.TrimSpace(*m.DiscountCode); trimmed != "" {
			code = &trimmed
		}
	}

	return s.locked(ctx, accountID, true, func(st Stores, cart *models.Cart) error {
		if code != nil {
			dc, err := st.Discounts.ByCode(ctx, *code)
			if err != nil {
				return notFound("discount code", err)
			}
			if !dc.ValidOn(s.clock.now()) {
				return appErrors.Clone(appErrors.ErrDiscountExpired, fmt.Sprintf("discount code %s expired", dc.Code))
			}
		}
		cart.DiscountCode = code
		return st.Carts.SetDiscountCode(ctx, cart.ID, code)
	})
}

// Recompute re-evaluates the discounts and recomputes the total of a cart.
func (s *CartService) Recompute(ctx context.Context, m *models.CartMutation) error {
	accountID, err := cartAccount(m)
	if err != nil {
		return err
	}
	return s.locked(ctx, accountID, true, func(Stores, *models.Cart) error { return nil })
}

// RecomputeTotal sets the total of an account's cart to the sum of its net line prices.
func (s *CartService) RecomputeTotal(ctx context.Context, accountID int64) error {
	return s.locked(ctx, accountID, false, func(Stores, *models.Cart) error { return nil })
}

// EachRegistration streams the line items of an account's cart to fn. Every call
// reads afresh; an account without a cart yields nothing.
func (s *CartService) EachRegistration(ctx context.Context, accountID int64, fn func(*models.CartItem) error) error {
	return s.tx(ctx, func(st Stores) error {
		cart, err := st.Carts.Find(ctx, accountID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		return st.Carts.EachItem(ctx, cart.ID, fn)
	})
}

// ApplyDiscount gives a line item percent discount, never more than its price. The
// caller recomputes the cart total afterwards.
func ApplyDiscount(item *models.CartItem, percent int) error {
	if !item.FromCart {
		return appErrors.Clone(appErrors.ErrValidation, "discount can only be applied to items read from the cart")
	}
	item.Discount = models.ApplyPercentage(item.Price, percent)
	return nil
}

// evaluate runs the discount evaluator over the cart and saves the lines that changed.
func (s *CartService) evaluate(ctx context.Context, st Stores, cart *models.Cart) error {
	items, err := st.Carts.Items(ctx, cart.ID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	var clubIDs []int64
	clubSeen := make(map[int64]bool)
	for _, item := range items {
		if !clubSeen[item.OrganizerClubID] {
			clubSeen[item.OrganizerClubID] = true
			clubIDs = append(clubIDs, item.OrganizerClubID)
		}
	}
	var entered []string
	if cart.DiscountCode != nil {
		entered = append(entered, *cart.DiscountCode)
	}
	codes, err := st.Discounts.Candidates(ctx, clubIDs, entered)
	if err != nil {
		return err
	}

	held, err := s.heldEvents(ctx, st, items, codes)
	if err != nil {
		return err
	}

	before := make([]models.CartItem, len(items))
	copy(before, items)
	EvaluateDiscounts(items, codes, held, s.clock.now())

	for i := range items {
		if items[i].Discount.Equal(before[i].Discount) && sameCode(items[i].DiscountCodeID, before[i].DiscountCodeID) {
			continue
		}
		if err := st.Carts.SaveDiscount(ctx, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

// heldEvents looks up, for each sporter in the cart, which combo events they hold
// outside the cart.
func (s *CartService) heldEvents(ctx context.Context, st Stores, items []models.CartItem, codes []models.DiscountCode) (HeldEvents, error) {
	var comboEvents []int64
	eventSeen := make(map[int64]bool)
	for _, c := range codes {
		if c.Kind != models.DiscountKindCombo {
			continue
		}
		for _, id := range c.EventIDs {
			if !eventSeen[id] {
				eventSeen[id] = true
				comboEvents = append(comboEvents, id)
			}
		}
	}
	held := make(HeldEvents)
	if len(comboEvents) == 0 {
		return held, nil
	}
	for _, item := range items {
		if _, done := held[item.SporterID]; done {
			continue
		}
		ids, err := st.Registrations.HeldEventIDs(ctx, item.SporterID, comboEvents)
		if err != nil {
			return nil, err
		}
		held[item.SporterID] = ids
	}
	return held, nil
}

func sameCode(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// PlaceOrders turns the cart into one order per receiving club. Lines of clubs
// without payment settings stay in the cart.
func (s *CartService) PlaceOrders(ctx context.Context, m *models.CartMutation) error {
	accountID, err := cartAccount(m)
	if err != nil {
		return err
	}

	return s.locked(ctx, accountID, false, func(st Stores, cart *models.Cart) error {
		if err := s.evaluate(ctx, st, cart); err != nil {
			return err
		}
		items, err := st.Carts.Items(ctx, cart.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}

		var organizers []int64
		seen := make(map[int64]bool)
		for _, item := range items {
			if !seen[item.OrganizerClubID] {
				seen[item.OrganizerClubID] = true
				organizers = append(organizers, item.OrganizerClubID)
			}
		}
		settings, err := st.Orders.PaymentSettings(ctx, organizers)
		if err != nil {
			return err
		}

		groups := make(map[int64][]models.CartItem)
		for _, item := range items {
			ps, ok := settings[item.OrganizerClubID]
			if !ok {
				s.logger.Warn("organizer has no payment settings", zap.Int64("club_id", item.OrganizerClubID),
					zap.Int64("item_id", item.ID))
				continue
			}
			receiver := item.OrganizerClubID
			if ps.ViaFederation {
				receiver = s.federationClubID
			}
			groups[receiver] = append(groups[receiver], item)
		}
		receivers := make([]int64, 0, len(groups))
		for club := range groups {
			receivers = append(receivers, club)
		}
		sort.Slice(receivers, func(i, j int) bool { return receivers[i] < receivers[j] })

		for _, club := range receivers {
			if err := s.placeOrder(ctx, st, accountID, club, groups[club], m.Actor); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *CartService) placeOrder(ctx context.Context, st Stores, accountID, clubID int64, items []models.CartItem, actor string) error {
	number, err := st.Orders.NextNumber(ctx)
	if err != nil {
		return err
	}
	total := decimal.Zero
	ids := make([]int64, len(items))
	for i, item := range items {
		total = total.Add(item.Net())
		ids[i] = item.ID
	}

	stamp := logStamp(s.clock.now())
	free := total.LessThan(models.FreeOrderThreshold)
	order := &models.Order{
		Number:    number,
		AccountID: accountID,
		ClubID:    clubID,
		Total:     total,
		Status:    models.OrderStatusAwaitingPayment,
		Log:       fmt.Sprintf("[%s] Bestelling aangemaakt door %s\n", stamp, actor),
	}
	regStatus := models.RegistrationStatusOrdered
	if free {
		order.Status = models.OrderStatusCompleted
		order.Log += fmt.Sprintf("[%s] Niets te betalen; bestelling voltooid\n", stamp)
		regStatus = models.RegistrationStatusDefinitive
	}
	if err := st.Orders.Create(ctx, order); err != nil {
		return err
	}
	if err := st.Orders.MoveItems(ctx, order.ID, ids); err != nil {
		return err
	}

	for _, item := range items {
		line := fmt.Sprintf("[%s] Besteld met bestelnummer %d", stamp, number)
		if err := st.Registrations.SetStatus(ctx, item.RegistrationID, regStatus, line); err != nil {
			return err
		}
		if free {
			if err := st.Registrations.SetReceived(ctx, item.RegistrationID, item.Net()); err != nil {
				return err
			}
		}
	}
	s.logger.Info("order placed", zap.Int64("account_id", accountID), zap.Int64("number", number),
		zap.Int64("club_id", clubID), zap.String("total", total.StringFixed(2)), zap.String("status", string(order.Status)))
	return nil
}

// CancelRegistration cancels an ordered or definitive registration and frees its
// seat. Registrations still in a cart are handled by RemoveItem.
func (s *CartService) CancelRegistration(ctx context.Context, m *models.CartMutation) error {
	if m.RegistrationID == nil {
		return missingRef("registration")
	}
	var accountID int64
	err := s.tx(ctx, func(st Stores) error {
		reg, err := st.Registrations.Get(ctx, *m.RegistrationID)
		if err != nil {
			return notFound("registration", err)
		}
		switch reg.Status {
		case models.RegistrationStatusOrdered, models.RegistrationStatusDefinitive:
		default:
			s.logger.Info("registration not cancellable", zap.Int64("registration_id", reg.ID),
				zap.String("status", string(reg.Status)))
			return nil
		}
		line := fmt.Sprintf("[%s] Afgemeld door %s", logStamp(s.clock.now()), m.Actor)
		if err := st.Registrations.SetStatus(ctx, reg.ID, models.RegistrationStatusCancelled, line); err != nil {
			return err
		}
		accountID = reg.AccountID
		return st.Registrations.ReleaseSeat(ctx, reg.SessionID)
	})
	if err == nil && accountID != 0 && s.counts != nil {
		s.counts.Invalidate(ctx, accountID)
	}
	return err
}
