package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
)

// ArchiveRepository copies closed round results into the historical tables.
// Every copy first clears the rows it is about to write so a rerun replaces them.
type ArchiveRepository struct {
	db sqlx.ExtContext
}

// NewArchiveRepository constructs the repository on a DB or a transaction.
func NewArchiveRepository(db sqlx.ExtContext) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// ArchiveRegio stores the individual regio results of a competition.
func (r *ArchiveRepository) ArchiveRegio(ctx context.Context, competitionID int64) (int64, error) {
	if err := r.clear(ctx, "hist_regio_indiv", competitionID, ""); err != nil {
		return 0, err
	}
	const query = `INSERT INTO hist_regio_indiv
	(competition_id, start_year, distance, sporterboog_id, indiv_class, regio_nr, scores_count, average,
	 score1, score2, score3, score4, score5, score6, score7)
	SELECT c.id, c.start_year, c.distance, re.sporterboog_id, ic.description, sc.regio_nr, re.scores_count, re.average,
	       re.score1, re.score2, re.score3, re.score4, re.score5, re.score6, re.score7
	FROM regio_entrants re
	JOIN competitions c ON c.id = re.competition_id
	JOIN indiv_classes ic ON ic.id = re.indiv_class_id
	JOIN clubs sc ON sc.id = re.signup_club_id
	WHERE re.competition_id = $1 AND re.scores_count > 0`
	return r.exec(ctx, "archive regio results", query, competitionID)
}

// ArchiveIndiv stores the individual results of one championship round.
func (r *ArchiveRepository) ArchiveIndiv(ctx context.Context, competitionID int64, round models.Round) (int64, error) {
	if err := r.clear(ctx, "hist_kamp_indiv", competitionID, round); err != nil {
		return 0, err
	}
	const query = `INSERT INTO hist_kamp_indiv
	(competition_id, start_year, distance, round, rayon_nr, sporterboog_id, indiv_class, club_id,
	 result_rank, score1, score2, champion_label)
	SELECT c.id, c.start_year, c.distance, k.round, k.rayon_nr, e.sporterboog_id, ic.description, e.club_id,
	       e.result_rank, e.score1, e.score2, e.champion_label
	FROM kamp_entrants e
	JOIN kampioenschappen k ON k.id = e.kampioenschap_id
	JOIN competitions c ON c.id = k.competition_id
	JOIN indiv_classes ic ON ic.id = e.indiv_class_id
	WHERE k.competition_id = $1 AND k.round = $2 AND e.result_rank > 0`
	return r.exec(ctx, fmt.Sprintf("archive %s indiv results", round), query, competitionID, round)
}

// ArchiveTeams stores the team results of one championship round.
func (r *ArchiveRepository) ArchiveTeams(ctx context.Context, competitionID int64, round models.Round) (int64, error) {
	if err := r.clear(ctx, "hist_kamp_teams", competitionID, round); err != nil {
		return 0, err
	}
	const query = `INSERT INTO hist_kamp_teams
	(competition_id, start_year, distance, round, rayon_nr, team_class, club_id, name, result_rank, result_score)
	SELECT c.id, c.start_year, c.distance, k.round, k.rayon_nr, tc.description, t.club_id, t.name,
	       t.result_rank, t.result_score
	FROM kamp_teams t
	JOIN kampioenschappen k ON k.id = t.kampioenschap_id
	JOIN competitions c ON c.id = k.competition_id
	JOIN team_classes tc ON tc.id = t.team_class_id
	WHERE k.competition_id = $1 AND k.round = $2 AND t.result_rank > 0`
	return r.exec(ctx, fmt.Sprintf("archive %s team results", round), query, competitionID, round)
}

func (r *ArchiveRepository) clear(ctx context.Context, table string, competitionID int64, round models.Round) error {
	var err error
	if round == "" {
		_, err = r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE competition_id = $1`, competitionID)
	} else {
		_, err = r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE competition_id = $1 AND round = $2`, competitionID, round)
	}
	if err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	return nil
}

func (r *ArchiveRepository) exec(ctx context.Context, what, query string, args ...interface{}) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", what, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check %s rows: %w", what, err)
	}
	return affected, nil
}
