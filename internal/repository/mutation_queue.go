package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// mutationQueue holds the queries shared by both mutation tables.
type mutationQueue struct {
	db    sqlx.ExtContext
	table string
}

// Count returns the number of rows ever enqueued. The processor compares it between polls.
func (q mutationQueue) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := sqlx.GetContext(ctx, q.db, &count, `SELECT COUNT(*) FROM `+q.table); err != nil {
		return 0, fmt.Errorf("count %s: %w", q.table, err)
	}
	return count, nil
}

// LatestID returns the highest primary key, or 0 for an empty table.
func (q mutationQueue) LatestID(ctx context.Context) (int64, error) {
	var id int64
	if err := sqlx.GetContext(ctx, q.db, &id, `SELECT COALESCE(MAX(id), 0) FROM `+q.table); err != nil {
		return 0, fmt.Errorf("latest %s: %w", q.table, err)
	}
	return id, nil
}

// PendingIDs lists unprocessed rows after afterID in insertion order.
func (q mutationQueue) PendingIDs(ctx context.Context, afterID int64) ([]int64, error) {
	query := `SELECT id FROM ` + q.table + ` WHERE id > $1 AND is_processed = false ORDER BY id ASC`
	var ids []int64
	if err := sqlx.SelectContext(ctx, q.db, &ids, query, afterID); err != nil {
		return nil, fmt.Errorf("pending %s: %w", q.table, err)
	}
	return ids, nil
}

// MarkProcessed flips is_processed. Rows that are already processed keep their state.
func (q mutationQueue) MarkProcessed(ctx context.Context, id int64, lastError *string) error {
	query := `UPDATE ` + q.table + ` SET is_processed = true, processed_at = NOW(), last_error = $2
	WHERE id = $1 AND is_processed = false`
	if _, err := q.db.ExecContext(ctx, query, id, lastError); err != nil {
		return fmt.Errorf("mark %s processed: %w", q.table, err)
	}
	return nil
}
