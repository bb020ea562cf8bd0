package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
)

func newMutationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() { _ = sqlxDB.Close() }
}

func int64Ptr(v int64) *int64 { return &v }

func TestCompetitionMutationRepositoryCreateTruncatesActor(t *testing.T) {
	db, mock, cleanup := newMutationRepoMock(t)
	defer cleanup()
	repo := NewCompetitionMutationRepository(db)

	actor := strings.Repeat("a", 70)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO competition_mutations")).
		WithArgs(int64(models.CompetitionMutationCloseRegioToRK), strings.Repeat("a", 64), int64(7),
			nil, nil, nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(12), created))

	m := &models.CompetitionMutation{
		Code:          models.CompetitionMutationCloseRegioToRK,
		Actor:         actor,
		CompetitionID: int64Ptr(7),
	}
	require.NoError(t, repo.Create(context.Background(), m))
	assert.Equal(t, int64(12), m.ID)
	assert.Equal(t, created, m.CreatedAt)
	assert.Len(t, m.Actor, 64)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMutationQueueQueries(t *testing.T) {
	db, mock, cleanup := newMutationRepoMock(t)
	defer cleanup()
	repo := NewCompetitionMutationRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM competition_mutations")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(9)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(id), 0) FROM competition_mutations")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(9)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM competition_mutations WHERE id > $1 AND is_processed = false ORDER BY id ASC")).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(6)).AddRow(int64(8)))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), count)

	latest, err := repo.LatestID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), latest)

	ids, err := repo.PendingIDs(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, []int64{6, 8}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMutationQueueMarkProcessed(t *testing.T) {
	db, mock, cleanup := newMutationRepoMock(t)
	defer cleanup()
	repo := NewCartMutationRepository(db)

	lastError := "unknown mutation code 99"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE cart_mutations SET is_processed = true, processed_at = NOW(), last_error = $2")).
		WithArgs(int64(3), lastError).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE cart_mutations SET is_processed = true")).
		WithArgs(int64(4), nil).
		WillReturnError(errors.New("connection reset"))

	require.NoError(t, repo.MarkProcessed(context.Background(), 3, &lastError))
	err := repo.MarkProcessed(context.Background(), 4, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark cart_mutations processed")
	require.NoError(t, mock.ExpectationsWereMet())
}

var cartMutationCols = []string{"id", "created_at", "code", "is_processed", "processed_at", "actor", "last_error",
	"account_id", "registration_id", "cart_item_id", "order_id", "discount_code"}

func TestCartMutationRepositoryCreatePending(t *testing.T) {
	db, mock, cleanup := newMutationRepoMock(t)
	defer cleanup()
	repo := NewCartMutationRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO cart_mutations")).
		WithArgs(int64(models.CartMutationPlaceOrders), int64(5), nil, nil, nil, nil, "sporter-5").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(20), now))

	m := &models.CartMutation{Code: models.CartMutationPlaceOrders, Actor: "sporter-5", AccountID: int64Ptr(5)}
	created, err := repo.CreatePending(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(20), m.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCartMutationRepositoryCreatePendingReturnsQueuedDuplicate(t *testing.T) {
	db, mock, cleanup := newMutationRepoMock(t)
	defer cleanup()
	repo := NewCartMutationRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO cart_mutations")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, created_at, code, is_processed")).
		WithArgs(int64(models.CartMutationPlaceOrders), int64(5), nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows(cartMutationCols).
			AddRow(int64(18), now, int64(4), false, nil, "sporter-5", nil, int64(5), nil, nil, nil, nil))

	m := &models.CartMutation{Code: models.CartMutationPlaceOrders, Actor: "sporter-5", AccountID: int64Ptr(5)}
	created, err := repo.CreatePending(context.Background(), m)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(18), m.ID)
	assert.False(t, m.IsProcessed)
	require.NoError(t, mock.ExpectationsWereMet())
}

// Re-entering code A after B must queue a new row: folding it into the first A
// would apply B last.
func TestCartMutationRepositoryCreatePendingKeepsAccountOrder(t *testing.T) {
	db, mock, cleanup := newMutationRepoMock(t)
	defer cleanup()
	repo := NewCartMutationRepository(db)

	now := time.Now().UTC()
	insert := `(?s)INSERT INTO cart_mutations.*later\.id > p\.id.*later\.account_id IS NOT DISTINCT FROM p\.account_id`
	for i, code := range []string{"A", "B", "A"} {
		mock.ExpectQuery(insert).
			WithArgs(int64(models.CartMutationDiscountCode), int64(5), nil, nil, nil, code, "sporter-5").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(i+1), now))
	}

	var ids []int64
	for _, code := range []string{"A", "B", "A"} {
		code := code
		m := &models.CartMutation{Code: models.CartMutationDiscountCode, Actor: "sporter-5", AccountID: int64Ptr(5), DiscountCode: &code}
		created, err := repo.CreatePending(context.Background(), m)
		require.NoError(t, err)
		assert.True(t, created, code)
		ids = append(ids, m.ID)
	}

	assert.Equal(t, []int64{1, 2, 3}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCartMutationRepositoryCreatePendingInsertsWhenDuplicateWasOvertaken(t *testing.T) {
	db, mock, cleanup := newMutationRepoMock(t)
	defer cleanup()
	repo := NewCartMutationRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO cart_mutations")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, created_at, code, is_processed")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("VALUES ($1, false, $7, $2, $3, $4, $5, $6)")).
		WithArgs(int64(models.CartMutationRemove), int64(5), nil, int64(9), nil, nil, "sporter-5").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(31), now))

	m := &models.CartMutation{Code: models.CartMutationRemove, Actor: "sporter-5", AccountID: int64Ptr(5), CartItemID: int64Ptr(9)}
	created, err := repo.CreatePending(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(31), m.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompetitionMutationRepositoryGetNotFound(t *testing.T) {
	db, mock, cleanup := newMutationRepoMock(t)
	defer cleanup()
	repo := NewCompetitionMutationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM competition_mutations WHERE id = $1")).
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), 404)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
