package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
)

// CompetitionRepository persists competitions, their classes and championships.
type CompetitionRepository struct {
	db sqlx.ExtContext
}

// NewCompetitionRepository constructs the repository on a DB or a transaction.
func NewCompetitionRepository(db sqlx.ExtContext) *CompetitionRepository {
	return &CompetitionRepository{db: db}
}

const competitionColumns = `id, start_year, distance, name, min_scores_rk, class_boundaries_fixed,
	regio_closed, rk_indiv_closed, rk_teams_closed, bk_indiv_closed, bk_teams_closed`

// Get fetches a competition by id.
func (r *CompetitionRepository) Get(ctx context.Context, id int64) (*models.Competition, error) {
	query := `SELECT ` + competitionColumns + ` FROM competitions WHERE id = $1`
	var comp models.Competition
	if err := sqlx.GetContext(ctx, r.db, &comp, query, id); err != nil {
		return nil, err
	}
	return &comp, nil
}

// ExistsForYear reports whether a season starting in year was already opened.
func (r *CompetitionRepository) ExistsForYear(ctx context.Context, year int) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM competitions WHERE start_year = $1)`
	if err := sqlx.GetContext(ctx, r.db, &exists, query, year); err != nil {
		return false, fmt.Errorf("check competition year: %w", err)
	}
	return exists, nil
}

// CreateSeason opens the 18m and 25m competitions for year, each with its classes,
// one RK per rayon and one BK.
func (r *CompetitionRepository) CreateSeason(ctx context.Context, year int) ([]models.Competition, error) {
	created := make([]models.Competition, 0, 2)
	for _, distance := range []int{models.Distance18, models.Distance25} {
		comp := models.Competition{
			StartYear:      year,
			Distance:       distance,
			Name:           fmt.Sprintf("%dm competitie %d/%d", distance, year, year+1),
			MinScoresForRK: models.DefaultMinScoresForRK,
		}
		const insertComp = `INSERT INTO competitions (start_year, distance, name, min_scores_rk)
		VALUES ($1, $2, $3, $4) RETURNING id`
		if err := r.db.QueryRowxContext(ctx, insertComp, comp.StartYear, comp.Distance, comp.Name, comp.MinScoresForRK).Scan(&comp.ID); err != nil {
			return nil, fmt.Errorf("create competition: %w", err)
		}

		const insertIndiv = `INSERT INTO indiv_classes (competition_id, volgorde, description, is_for_rk_bk)
		SELECT $1, volgorde, description, is_for_rk_bk FROM class_templates WHERE kind = 'INDIV' ORDER BY volgorde`
		if _, err := r.db.ExecContext(ctx, insertIndiv, comp.ID); err != nil {
			return nil, fmt.Errorf("create indiv classes: %w", err)
		}
		const insertTeam = `INSERT INTO team_classes (competition_id, volgorde, description, is_for_rk_bk)
		SELECT $1, volgorde, description, is_for_rk_bk FROM class_templates WHERE kind = 'TEAM' ORDER BY volgorde`
		if _, err := r.db.ExecContext(ctx, insertTeam, comp.ID); err != nil {
			return nil, fmt.Errorf("create team classes: %w", err)
		}
		for _, table := range []string{"indiv_classes", "team_classes"} {
			query := `UPDATE ` + table + ` SET next_round_class_id = id WHERE competition_id = $1 AND is_for_rk_bk = true`
			if _, err := r.db.ExecContext(ctx, query, comp.ID); err != nil {
				return nil, fmt.Errorf("link next round %s: %w", table, err)
			}
		}

		const insertKamps = `INSERT INTO kampioenschappen (competition_id, round, rayon_nr, has_roster)
		SELECT $1, 'RK', nr, false FROM rayons
		UNION ALL SELECT $1, 'BK', 0, false`
		if _, err := r.db.ExecContext(ctx, insertKamps, comp.ID); err != nil {
			return nil, fmt.Errorf("create kampioenschappen: %w", err)
		}
		created = append(created, comp)
	}
	return created, nil
}

// SetFlag sets a phase flag using compare-and-set. It returns false when the flag was already set.
func (r *CompetitionRepository) SetFlag(ctx context.Context, id int64, flag models.PhaseFlag) (bool, error) {
	if !flag.Valid() {
		return false, fmt.Errorf("set competition flag: unknown flag %q", flag)
	}
	column := string(flag)
	query := `UPDATE competitions SET ` + column + ` = true WHERE id = $1 AND ` + column + ` = false`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("set competition flag %s: %w", column, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check competition flag rows: %w", err)
	}
	return rows == 1, nil
}

// RecomputeSeedAverages replaces the automatic seed averages of one distance with
// the averages of the latest archived regio season. It returns the number of rows written.
func (r *CompetitionRepository) RecomputeSeedAverages(ctx context.Context, distance int) (int64, error) {
	const deleteQuery = `DELETE FROM seed_averages WHERE distance = $1 AND source = 'HIST'`
	if _, err := r.db.ExecContext(ctx, deleteQuery, distance); err != nil {
		return 0, fmt.Errorf("delete seed averages: %w", err)
	}

	const insertQuery = `INSERT INTO seed_averages (sporterboog_id, distance, value, source, created_at)
	SELECT h.sporterboog_id, h.distance, h.average, 'HIST', NOW()
	FROM hist_regio_indiv h
	WHERE h.distance = $1
	  AND h.start_year = (SELECT MAX(start_year) FROM hist_regio_indiv WHERE distance = $1)
	  AND h.average > 0
	  AND NOT EXISTS (SELECT 1 FROM seed_averages s WHERE s.sporterboog_id = h.sporterboog_id AND s.distance = h.distance)`
	result, err := r.db.ExecContext(ctx, insertQuery, distance)
	if err != nil {
		return 0, fmt.Errorf("insert seed averages: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check seed average rows: %w", err)
	}
	return rows, nil
}

// Kampioenschappen lists the championships of one round of a competition, RK ordered by rayon.
func (r *CompetitionRepository) Kampioenschappen(ctx context.Context, competitionID int64, round models.Round) ([]models.Kampioenschap, error) {
	const query = `SELECT k.id, k.competition_id, k.round, k.rayon_nr, COALESCE(ry.name, '') AS rayon_name, k.has_roster
	FROM kampioenschappen k
	LEFT JOIN rayons ry ON ry.nr = k.rayon_nr
	WHERE k.competition_id = $1 AND k.round = $2
	ORDER BY k.rayon_nr`
	var kamps []models.Kampioenschap
	if err := sqlx.SelectContext(ctx, r.db, &kamps, query, competitionID, round); err != nil {
		return nil, fmt.Errorf("list kampioenschappen: %w", err)
	}
	return kamps, nil
}

// GetKampioenschap fetches one championship.
func (r *CompetitionRepository) GetKampioenschap(ctx context.Context, id int64) (*models.Kampioenschap, error) {
	const query = `SELECT k.id, k.competition_id, k.round, k.rayon_nr, COALESCE(ry.name, '') AS rayon_name, k.has_roster
	FROM kampioenschappen k
	LEFT JOIN rayons ry ON ry.nr = k.rayon_nr
	WHERE k.id = $1`
	var kamp models.Kampioenschap
	if err := sqlx.GetContext(ctx, r.db, &kamp, query, id); err != nil {
		return nil, err
	}
	return &kamp, nil
}

// SetHasRoster marks a championship's roster as built.
func (r *CompetitionRepository) SetHasRoster(ctx context.Context, kampioenschapID int64) error {
	const query = `UPDATE kampioenschappen SET has_roster = true WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, kampioenschapID); err != nil {
		return fmt.Errorf("set has roster: %w", err)
	}
	return nil
}

// IndivClasses lists the individual classes of a competition in class order.
func (r *CompetitionRepository) IndivClasses(ctx context.Context, competitionID int64) ([]models.IndivClass, error) {
	const query = `SELECT id, competition_id, volgorde, description, is_for_rk_bk, next_round_class_id
	FROM indiv_classes WHERE competition_id = $1 ORDER BY volgorde`
	var classes []models.IndivClass
	if err := sqlx.SelectContext(ctx, r.db, &classes, query, competitionID); err != nil {
		return nil, fmt.Errorf("list indiv classes: %w", err)
	}
	return classes, nil
}

// TeamClasses lists the team classes of a competition in class order.
func (r *CompetitionRepository) TeamClasses(ctx context.Context, competitionID int64) ([]models.TeamClass, error) {
	const query = `SELECT id, competition_id, volgorde, description, is_for_rk_bk, next_round_class_id
	FROM team_classes WHERE competition_id = $1 ORDER BY volgorde`
	var classes []models.TeamClass
	if err := sqlx.SelectContext(ctx, r.db, &classes, query, competitionID); err != nil {
		return nil, fmt.Errorf("list team classes: %w", err)
	}
	return classes, nil
}

// GetTeamClass fetches one team class.
func (r *CompetitionRepository) GetTeamClass(ctx context.Context, id int64) (*models.TeamClass, error) {
	const query = `SELECT id, competition_id, volgorde, description, is_for_rk_bk, next_round_class_id
	FROM team_classes WHERE id = $1`
	var class models.TeamClass
	if err := sqlx.GetContext(ctx, r.db, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}
