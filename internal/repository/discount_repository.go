package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
)

// DiscountRepository loads discount codes with their event lists.
type DiscountRepository struct {
	db sqlx.ExtContext
}

// NewDiscountRepository constructs the repository on a DB or a transaction.
func NewDiscountRepository(db sqlx.ExtContext) *DiscountRepository {
	return &DiscountRepository{db: db}
}

const discountColumns = `d.id, d.code, d.kind, d.percentage, d.valid_through, d.issuer_club_id,
	d.for_sporter_id, d.for_club_id, d.base_event_id, d.automatic`

// Candidates returns the automatic codes issued by any of clubIDs together with the
// codes named in codes, ordered by id.
func (r *DiscountRepository) Candidates(ctx context.Context, clubIDs []int64, codes []string) ([]models.DiscountCode, error) {
	query := `SELECT ` + discountColumns + ` FROM discount_codes d
	WHERE (d.automatic = true AND d.issuer_club_id = ANY($1)) OR d.code = ANY($2)
	ORDER BY d.id`
	var result []models.DiscountCode
	if err := sqlx.SelectContext(ctx, r.db, &result, query, pq.Array(clubIDs), pq.Array(codes)); err != nil {
		return nil, fmt.Errorf("list discount candidates: %w", err)
	}
	if err := r.loadEvents(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// ByCode fetches a code by its text.
func (r *DiscountRepository) ByCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	query := `SELECT ` + discountColumns + ` FROM discount_codes d WHERE d.code = $1`
	var result models.DiscountCode
	if err := sqlx.GetContext(ctx, r.db, &result, query, code); err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *DiscountRepository) loadEvents(ctx context.Context, codes []models.DiscountCode) error {
	if len(codes) == 0 {
		return nil
	}
	ids := make([]int64, len(codes))
	index := make(map[int64]int, len(codes))
	for i, c := range codes {
		ids[i] = c.ID
		index[c.ID] = i
	}
	const query = `SELECT code_id, event_id FROM discount_code_events WHERE code_id = ANY($1) ORDER BY code_id, event_id`
	var rows []struct {
		CodeID  int64 `db:"code_id"`
		EventID int64 `db:"event_id"`
	}
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("list discount events: %w", err)
	}
	for _, row := range rows {
		i := index[row.CodeID]
		codes[i].EventIDs = append(codes[i].EventIDs, row.EventID)
	}
	return nil
}
