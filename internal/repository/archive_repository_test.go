package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
)

func newArchiveRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestArchiveRepositoryArchiveRegio(t *testing.T) {
	db, mock, cleanup := newArchiveRepoMock(t)
	defer cleanup()

	repo := NewArchiveRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM hist_regio_indiv WHERE competition_id = $1")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO hist_regio_indiv")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 120))

	rows, err := repo.ArchiveRegio(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, int64(120), rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveRepositoryArchiveIndivReplacesRound(t *testing.T) {
	db, mock, cleanup := newArchiveRepoMock(t)
	defer cleanup()

	repo := NewArchiveRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM hist_kamp_indiv WHERE competition_id = $1 AND round = $2")).
		WithArgs(int64(3), models.RoundRK).
		WillReturnResult(sqlmock.NewResult(0, 40))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO hist_kamp_indiv")).
		WithArgs(int64(3), models.RoundRK).
		WillReturnResult(sqlmock.NewResult(0, 40))

	rows, err := repo.ArchiveIndiv(context.Background(), 3, models.RoundRK)
	require.NoError(t, err)
	require.Equal(t, int64(40), rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveRepositoryArchiveTeamsError(t *testing.T) {
	db, mock, cleanup := newArchiveRepoMock(t)
	defer cleanup()

	repo := NewArchiveRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM hist_kamp_teams")).
		WithArgs(int64(3), models.RoundBK).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO hist_kamp_teams")).
		WithArgs(int64(3), models.RoundBK).
		WillReturnError(errors.New("disk full"))

	_, err := repo.ArchiveTeams(context.Background(), 3, models.RoundBK)
	require.Error(t, err)
	require.Contains(t, err.Error(), "archive BK team results")
	require.NoError(t, mock.ExpectationsWereMet())
}
