package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
)

// CartMutationRepository persists the cart mutation queue.
type CartMutationRepository struct {
	mutationQueue
}

// NewCartMutationRepository constructs the repository on a DB or a transaction.
func NewCartMutationRepository(db sqlx.ExtContext) *CartMutationRepository {
	return &CartMutationRepository{mutationQueue{db: db, table: "cart_mutations"}}
}

const cartMutationColumns = `id, created_at, code, is_processed, processed_at, actor, last_error,
	account_id, registration_id, cart_item_id, order_id, discount_code`

// cartMutationSameRefs matches a queued row with the same code and references that is
// still the newest unprocessed mutation of its account. Reusing an older row would
// reorder it behind the account's later requests.
const cartMutationSameRefs = `p.is_processed = false AND p.code = $1
	AND p.account_id IS NOT DISTINCT FROM $2 AND p.registration_id IS NOT DISTINCT FROM $3
	AND p.cart_item_id IS NOT DISTINCT FROM $4 AND p.order_id IS NOT DISTINCT FROM $5
	AND p.discount_code IS NOT DISTINCT FROM $6
	AND NOT EXISTS (SELECT 1 FROM cart_mutations later
		WHERE later.is_processed = false AND later.id > p.id
		AND later.account_id IS NOT DISTINCT FROM p.account_id)`

// CreatePending inserts m unless the account's newest unprocessed mutation already
// carries the same code and references. In that case m is filled from the queued row
// and created is false.
func (r *CartMutationRepository) CreatePending(ctx context.Context, m *models.CartMutation) (bool, error) {
	m.Actor = models.TruncateActor(m.Actor)
	refs := []interface{}{m.Code, m.AccountID, m.RegistrationID, m.CartItemID, m.OrderID, m.DiscountCode}

	insert := `INSERT INTO cart_mutations
	(code, is_processed, actor, account_id, registration_id, cart_item_id, order_id, discount_code)
	SELECT $1, false, $7, $2, $3, $4, $5, $6
	WHERE NOT EXISTS (SELECT 1 FROM cart_mutations p WHERE ` + cartMutationSameRefs + `)
	RETURNING id, created_at`
	err := r.db.QueryRowxContext(ctx, insert, append(refs, m.Actor)...).Scan(&m.ID, &m.CreatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("create cart mutation: %w", err)
	}

	existing := `SELECT ` + cartMutationColumns + ` FROM cart_mutations p
	WHERE ` + cartMutationSameRefs + ` LIMIT 1`
	err = sqlx.GetContext(ctx, r.db, m, existing, refs...)
	if errors.Is(err, sql.ErrNoRows) {
		// a later mutation of the account arrived in between
		plain := `INSERT INTO cart_mutations
		(code, is_processed, actor, account_id, registration_id, cart_item_id, order_id, discount_code)
		VALUES ($1, false, $7, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
		if err := r.db.QueryRowxContext(ctx, plain, append(refs, m.Actor)...).Scan(&m.ID, &m.CreatedAt); err != nil {
			return false, fmt.Errorf("create cart mutation: %w", err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("find pending cart mutation: %w", err)
	}
	return false, nil
}

// Get reads one mutation by primary key.
func (r *CartMutationRepository) Get(ctx context.Context, id int64) (*models.CartMutation, error) {
	query := `SELECT ` + cartMutationColumns + ` FROM cart_mutations WHERE id = $1`
	var m models.CartMutation
	if err := sqlx.GetContext(ctx, r.db, &m, query, id); err != nil {
		return nil, err
	}
	return &m, nil
}
