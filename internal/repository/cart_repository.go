package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
)

// CartRepository persists carts and their line items. Writers call Lock first,
// inside the transaction that holds the repository.
type CartRepository struct {
	db sqlx.ExtContext
}

// NewCartRepository constructs the repository on a DB or a transaction.
func NewCartRepository(db sqlx.ExtContext) *CartRepository {
	return &CartRepository{db: db}
}

// Lock returns the cart of an account, creating it when missing, and holds its row
// lock until the transaction ends.
func (r *CartRepository) Lock(ctx context.Context, accountID int64) (*models.Cart, error) {
	const insertQuery = `INSERT INTO carts (account_id, total) VALUES ($1, 0) ON CONFLICT (account_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insertQuery, accountID); err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	const selectQuery = `SELECT id, account_id, total, discount_code FROM carts WHERE account_id = $1 FOR UPDATE`
	var cart models.Cart
	if err := sqlx.GetContext(ctx, r.db, &cart, selectQuery, accountID); err != nil {
		return nil, fmt.Errorf("lock cart: %w", err)
	}
	return &cart, nil
}

// Find returns the cart of an account without locking it.
func (r *CartRepository) Find(ctx context.Context, accountID int64) (*models.Cart, error) {
	const query = `SELECT id, account_id, total, discount_code FROM carts WHERE account_id = $1`
	var cart models.Cart
	if err := sqlx.GetContext(ctx, r.db, &cart, query, accountID); err != nil {
		return nil, err
	}
	return &cart, nil
}

const cartItemQuery = `SELECT i.id, i.cart_id, i.order_id, i.registration_id, i.description, i.price, i.discount,
	i.discount_code_id, r.event_id, sb.sporter_id, sp.club_id AS sporter_club_id, ev.organizer_club_id
	FROM cart_items i
	JOIN registrations r ON r.id = i.registration_id
	JOIN events ev ON ev.id = r.event_id
	JOIN sporterbogen sb ON sb.id = r.sporterboog_id
	JOIN sporters sp ON sp.id = sb.sporter_id`

// EachItem streams the line items of a cart to fn in id order. Every call runs a
// fresh query; items are marked FromCart. Iteration stops at the first error of fn.
func (r *CartRepository) EachItem(ctx context.Context, cartID int64, fn func(*models.CartItem) error) error {
	rows, err := r.db.QueryxContext(ctx, cartItemQuery+` WHERE i.cart_id = $1 ORDER BY i.id`, cartID)
	if err != nil {
		return fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.CartItem
		if err := rows.StructScan(&item); err != nil {
			return fmt.Errorf("scan cart item: %w", err)
		}
		item.FromCart = true
		if err := fn(&item); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate cart items: %w", err)
	}
	return nil
}

// Items collects the line items of a cart.
func (r *CartRepository) Items(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.EachItem(ctx, cartID, func(item *models.CartItem) error {
		items = append(items, *item)
		return nil
	})
	return items, err
}

// GetItem fetches a line item that is still in the given cart.
func (r *CartRepository) GetItem(ctx context.Context, cartID, itemID int64) (*models.CartItem, error) {
	var item models.CartItem
	if err := sqlx.GetContext(ctx, r.db, &item, cartItemQuery+` WHERE i.cart_id = $1 AND i.id = $2`, cartID, itemID); err != nil {
		return nil, err
	}
	item.FromCart = true
	return &item, nil
}

// HasRegistration reports whether a registration already has a line item.
func (r *CartRepository) HasRegistration(ctx context.Context, registrationID int64) (bool, error) {
	var id int64
	err := sqlx.GetContext(ctx, r.db, &id, `SELECT id FROM cart_items WHERE registration_id = $1 LIMIT 1`, registrationID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find cart item: %w", err)
	}
	return true, nil
}

// AddItem inserts a line item and fills in its id.
func (r *CartRepository) AddItem(ctx context.Context, item *models.CartItem) error {
	const query = `INSERT INTO cart_items (cart_id, registration_id, description, price, discount, discount_code_id)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query, item.CartID, item.RegistrationID, item.Description,
		item.Price, item.Discount, item.DiscountCodeID).Scan(&item.ID); err != nil {
		return fmt.Errorf("add cart item: %w", err)
	}
	return nil
}

// DeleteItem removes a line item.
func (r *CartRepository) DeleteItem(ctx context.Context, itemID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID); err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

// SaveDiscount writes the discount and discount code of a line item.
func (r *CartRepository) SaveDiscount(ctx context.Context, item *models.CartItem) error {
	const query = `UPDATE cart_items SET discount = $2, discount_code_id = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, item.ID, item.Discount, item.DiscountCodeID); err != nil {
		return fmt.Errorf("save item discount: %w", err)
	}
	return nil
}

// RecomputeTotal sets the cart total to the sum of price minus discount of its items.
func (r *CartRepository) RecomputeTotal(ctx context.Context, cartID int64) (decimal.Decimal, error) {
	const query = `UPDATE carts SET total = COALESCE((SELECT SUM(price - discount) FROM cart_items WHERE cart_id = $1), 0)
	WHERE id = $1
	RETURNING total`
	var total decimal.Decimal
	if err := r.db.QueryRowxContext(ctx, query, cartID).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("recompute cart total: %w", err)
	}
	return total, nil
}

// SetDiscountCode stores the code entered on a cart, or clears it with nil.
func (r *CartRepository) SetDiscountCode(ctx context.Context, cartID int64, code *string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE carts SET discount_code = $2 WHERE id = $1`, cartID, code); err != nil {
		return fmt.Errorf("set cart discount code: %w", err)
	}
	return nil
}

// CountItems counts the line items in the cart of an account.
func (r *CartRepository) CountItems(ctx context.Context, accountID int64) (int, error) {
	const query = `SELECT COUNT(i.id) FROM carts c JOIN cart_items i ON i.cart_id = c.id WHERE c.account_id = $1`
	var count int
	if err := sqlx.GetContext(ctx, r.db, &count, query, accountID); err != nil {
		return 0, fmt.Errorf("count cart items: %w", err)
	}
	return count, nil
}
