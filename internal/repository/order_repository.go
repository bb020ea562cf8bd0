package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
)

// OrderRepository persists orders (bestellingen).
type OrderRepository struct {
	db sqlx.ExtContext
}

// NewOrderRepository constructs the repository on a DB or a transaction.
func NewOrderRepository(db sqlx.ExtContext) *OrderRepository {
	return &OrderRepository{db: db}
}

// NextNumber hands out the next order number. The counter row stays locked until the transaction ends.
func (r *OrderRepository) NextNumber(ctx context.Context) (int64, error) {
	var current int64
	if err := sqlx.GetContext(ctx, r.db, &current, `SELECT last_number FROM order_counter WHERE id = 1 FOR UPDATE`); err != nil {
		return 0, fmt.Errorf("lock order counter: %w", err)
	}
	next := current + 1
	if _, err := r.db.ExecContext(ctx, `UPDATE order_counter SET last_number = $1 WHERE id = 1`, next); err != nil {
		return 0, fmt.Errorf("advance order counter: %w", err)
	}
	return next, nil
}

// Create inserts an order and fills in id and created_at.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	const query = `INSERT INTO orders (number, account_id, club_id, total, status, log, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, NOW())
	RETURNING id, created_at`
	if err := r.db.QueryRowxContext(ctx, query, order.Number, order.AccountID, order.ClubID, order.Total,
		order.Status, order.Log).Scan(&order.ID, &order.CreatedAt); err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// MoveItems detaches line items from their cart and attaches them to an order.
func (r *OrderRepository) MoveItems(ctx context.Context, orderID int64, itemIDs []int64) error {
	const query = `UPDATE cart_items SET cart_id = NULL, order_id = $1 WHERE id = ANY($2)`
	if _, err := r.db.ExecContext(ctx, query, orderID, pq.Array(itemIDs)); err != nil {
		return fmt.Errorf("move items to order: %w", err)
	}
	return nil
}

// PaymentSettings returns the payment settings of the given clubs keyed by club id.
// Clubs without settings are absent from the map.
func (r *OrderRepository) PaymentSettings(ctx context.Context, clubIDs []int64) (map[int64]models.PaymentSettings, error) {
	result := make(map[int64]models.PaymentSettings, len(clubIDs))
	if len(clubIDs) == 0 {
		return result, nil
	}
	const query = `SELECT club_id, via_federation FROM payment_settings WHERE club_id = ANY($1)`
	var settings []models.PaymentSettings
	if err := sqlx.SelectContext(ctx, r.db, &settings, query, pq.Array(clubIDs)); err != nil {
		return nil, fmt.Errorf("list payment settings: %w", err)
	}
	for _, s := range settings {
		result[s.ClubID] = s
	}
	return result, nil
}
