package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
)

var entrantCols = []string{"id", "kampioenschap_id", "sporterboog_id", "indiv_class_id", "club_id", "regio_entrant_id",
	"average", "scores", "volgorde", "rank", "deelname", "result_rank", "score1", "score2", "champion_label", "log"}

func TestRosterRepositoryInsertFillsIDs(t *testing.T) {
	db, mock, cleanup := newMutationRepoMock(t)
	defer cleanup()
	repo := NewRosterRepository(db)

	entrants := []models.KampEntrant{
		{KampioenschapID: 1, SporterBoogID: 10, IndivClassID: 3, ClubID: 1001, Average: 9.5, Scores: "290", Volgorde: 1, Rank: 1, Deelname: models.DeelnameOnbekend, ChampionLabel: "Kampioen regio 101"},
		{KampioenschapID: 1, SporterBoogID: 11, IndivClassID: 3, ClubID: 1002, Average: 9.1, Scores: "280", Volgorde: 2, Rank: 2, Deelname: models.DeelnameOnbekend},
	}
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO kamp_entrants")).
		WithArgs(int64(1), int64(10), int64(3), int64(1001), nil, 9.5, "290", 1, 1, "ONBEKEND", "Kampioen regio 101", "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(501)))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO kamp_entrants")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(502)))

	require.NoError(t, repo.Insert(context.Background(), entrants))
	assert.Equal(t, int64(501), entrants[0].ID)
	assert.Equal(t, int64(502), entrants[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRosterRepositoryClassEntrants(t *testing.T) {
	db, mock, cleanup := newMutationRepoMock(t)
	defer cleanup()
	repo := NewRosterRepository(db)

	rows := sqlmock.NewRows(entrantCols).
		AddRow(int64(1), int64(7), int64(10), int64(3), int64(1001), nil, 9.5, "290", 1, 1, "JA", 0, 0, 0, "", "").
		AddRow(int64(2), int64(7), int64(11), int64(3), int64(1002), nil, 9.1, "280", 2, 0, "NEE", 0, 0, 0, "", "afgemeld\n")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.kampioenschap_id = $1 AND e.indiv_class_id = $2")).
		WithArgs(int64(7), int64(3)).
		WillReturnRows(rows)

	entrants, err := repo.ClassEntrants(context.Background(), 7, 3)
	require.NoError(t, err)
	require.Len(t, entrants, 2)
	assert.Equal(t, models.DeelnameNee, entrants[1].Deelname)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRosterRepositoryLimitFallsBackToDefault(t *testing.T) {
	db, mock, cleanup := newMutationRepoMock(t)
	defer cleanup()
	repo := NewRosterRepository(db)

	query := regexp.QuoteMeta("SELECT limit_value FROM kamp_class_limits WHERE kampioenschap_id = $1 AND indiv_class_id = $2")
	mock.ExpectQuery(query).WithArgs(int64(7), int64(3)).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(query).WithArgs(int64(7), int64(4)).WillReturnRows(sqlmock.NewRows([]string{"limit_value"}).AddRow(16))

	limit, err := repo.IndivLimit(context.Background(), 7, 3, models.DefaultIndivLimit)
	require.NoError(t, err)
	assert.Equal(t, 24, limit)

	limit, err = repo.IndivLimit(context.Background(), 7, 4, models.DefaultIndivLimit)
	require.NoError(t, err)
	assert.Equal(t, 16, limit)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRosterRepositoryDeleteBeyondCap(t *testing.T) {
	db, mock, cleanup := newMutationRepoMock(t)
	defer cleanup()
	repo := NewRosterRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM kamp_entrants WHERE kampioenschap_id = $1 AND volgorde > $2")).
		WithArgs(int64(7), models.RosterCap).
		WillReturnResult(sqlmock.NewResult(0, 3))

	removed, err := repo.DeleteBeyond(context.Background(), 7, models.RosterCap)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeamRepositoryMembersGroupsByTeam(t *testing.T) {
	db, mock, cleanup := newMutationRepoMock(t)
	defer cleanup()
	repo := NewTeamRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT team_id, entrant_id FROM kamp_team_members WHERE team_id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"team_id", "entrant_id"}).
			AddRow(int64(1), int64(10)).AddRow(int64(1), int64(11)).AddRow(int64(2), int64(20)))

	members, err := repo.Members(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, members[1])
	assert.Equal(t, []int64{20}, members[2])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeamRepositoryInsertLinksMembers(t *testing.T) {
	db, mock, cleanup := newMutationRepoMock(t)
	defer cleanup()
	repo := NewTeamRepository(db)

	classID := int64(5)
	team := &models.KampTeam{KampioenschapID: 9, TeamClassID: &classID, ClubID: 1001, Name: "Club A-1",
		Deelname: models.DeelnameJa, Average: 9.2, Members: []int64{10, 11}}
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO kamp_teams")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(77)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kamp_team_members")).WithArgs(int64(77), int64(10)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kamp_team_members")).WithArgs(int64(77), int64(11)).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Insert(context.Background(), team))
	assert.Equal(t, int64(77), team.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
