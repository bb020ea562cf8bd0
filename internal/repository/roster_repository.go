package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
)

// RosterRepository persists championship entrants (deelnemerslijsten) and class limits.
type RosterRepository struct {
	db sqlx.ExtContext
}

// NewRosterRepository constructs the repository on a DB or a transaction.
func NewRosterRepository(db sqlx.ExtContext) *RosterRepository {
	return &RosterRepository{db: db}
}

const entrantColumns = `e.id, e.kampioenschap_id, e.sporterboog_id, e.indiv_class_id, e.club_id, e.regio_entrant_id,
	e.average, e.scores, e.volgorde, e.rank, e.deelname, e.result_rank, e.score1, e.score2, e.champion_label, e.log`

// RegioEntrants lists the regio participants of a competition together with their
// live club and rayon. Class eligibility and score count are filtered by the roster builder.
func (r *RosterRepository) RegioEntrants(ctx context.Context, competitionID int64) ([]models.RegioEntrant, error) {
	const query = `SELECT re.id, re.sporterboog_id, re.indiv_class_id, c.volgorde AS class_volgorde, c.is_for_rk_bk,
	       sc.regio_nr, re.scores_count, re.average,
	       re.score1, re.score2, re.score3, re.score4, re.score5, re.score6, re.score7,
	       sp.club_id AS current_club_id, cc.rayon_nr AS current_rayon_nr,
	       COALESCE(vk.wants_rk_bk, true) AS wants_rk_bk
	FROM regio_entrants re
	JOIN indiv_classes c ON c.id = re.indiv_class_id
	JOIN clubs sc ON sc.id = re.signup_club_id
	JOIN sporterbogen sb ON sb.id = re.sporterboog_id
	JOIN sporters sp ON sp.id = sb.sporter_id
	LEFT JOIN clubs cc ON cc.id = sp.club_id
	LEFT JOIN sporter_preferences vk ON vk.sporter_id = sp.id
	WHERE re.competition_id = $1
	ORDER BY c.volgorde, re.average DESC, re.id`
	var entrants []models.RegioEntrant
	if err := sqlx.SelectContext(ctx, r.db, &entrants, query, competitionID); err != nil {
		return nil, fmt.Errorf("list regio entrants: %w", err)
	}
	return entrants, nil
}

// DeleteRound removes every entrant of one round of a competition, and with them their team links.
func (r *RosterRepository) DeleteRound(ctx context.Context, competitionID int64, round models.Round) (int64, error) {
	const query = `DELETE FROM kamp_entrants WHERE kampioenschap_id IN
	(SELECT id FROM kampioenschappen WHERE competition_id = $1 AND round = $2)`
	result, err := r.db.ExecContext(ctx, query, competitionID, round)
	if err != nil {
		return 0, fmt.Errorf("delete %s entrants: %w", round, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check deleted entrants: %w", err)
	}
	return rows, nil
}

// Insert stores new entrants and fills in their ids.
func (r *RosterRepository) Insert(ctx context.Context, entrants []models.KampEntrant) error {
	const query = `INSERT INTO kamp_entrants
	(kampioenschap_id, sporterboog_id, indiv_class_id, club_id, regio_entrant_id, average, scores,
	 volgorde, rank, deelname, result_rank, score1, score2, champion_label, log)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, 0, 0, $11, $12)
	RETURNING id`
	for i := range entrants {
		e := &entrants[i]
		err := r.db.QueryRowxContext(ctx, query, e.KampioenschapID, e.SporterBoogID, e.IndivClassID, e.ClubID,
			e.RegioEntrantID, e.Average, e.Scores, e.Volgorde, e.Rank, e.Deelname, e.ChampionLabel, e.Log).Scan(&e.ID)
		if err != nil {
			return fmt.Errorf("insert kamp entrant: %w", err)
		}
	}
	return nil
}

// Get fetches one entrant.
func (r *RosterRepository) Get(ctx context.Context, id int64) (*models.KampEntrant, error) {
	query := `SELECT ` + entrantColumns + ` FROM kamp_entrants e WHERE e.id = $1`
	var entrant models.KampEntrant
	if err := sqlx.GetContext(ctx, r.db, &entrant, query, id); err != nil {
		return nil, err
	}
	return &entrant, nil
}

// ClassEntrants lists the entrants of one class in volgorde order.
func (r *RosterRepository) ClassEntrants(ctx context.Context, kampioenschapID, classID int64) ([]models.KampEntrant, error) {
	query := `SELECT ` + entrantColumns + ` FROM kamp_entrants e
	WHERE e.kampioenschap_id = $1 AND e.indiv_class_id = $2
	ORDER BY e.volgorde, e.id`
	var entrants []models.KampEntrant
	if err := sqlx.SelectContext(ctx, r.db, &entrants, query, kampioenschapID, classID); err != nil {
		return nil, fmt.Errorf("list class entrants: %w", err)
	}
	return entrants, nil
}

// SavePlacement writes back class, volgorde, rank, deelname and log of each entrant.
func (r *RosterRepository) SavePlacement(ctx context.Context, entrants []models.KampEntrant) error {
	const query = `UPDATE kamp_entrants SET indiv_class_id = $2, volgorde = $3, rank = $4, deelname = $5, log = $6
	WHERE id = $1`
	for _, e := range entrants {
		if _, err := r.db.ExecContext(ctx, query, e.ID, e.IndivClassID, e.Volgorde, e.Rank, e.Deelname, e.Log); err != nil {
			return fmt.Errorf("save entrant placement: %w", err)
		}
	}
	return nil
}

// DeleteBeyond removes entrants positioned after maxVolgorde in any class of a championship.
func (r *RosterRepository) DeleteBeyond(ctx context.Context, kampioenschapID int64, maxVolgorde int) (int64, error) {
	const query = `DELETE FROM kamp_entrants WHERE kampioenschap_id = $1 AND volgorde > $2`
	result, err := r.db.ExecContext(ctx, query, kampioenschapID, maxVolgorde)
	if err != nil {
		return 0, fmt.Errorf("apply roster cap: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check roster cap rows: %w", err)
	}
	return rows, nil
}

// RKFinishers lists RK entrants that may go on to the BK: a real result up to the
// blank sentinel and no sign-off.
func (r *RosterRepository) RKFinishers(ctx context.Context, competitionID int64) ([]models.RKFinisher, error) {
	query := `SELECT ` + entrantColumns + `, COALESCE(ry.name, '') AS rayon_name, c.next_round_class_id AS next_class_id
	FROM kamp_entrants e
	JOIN kampioenschappen k ON k.id = e.kampioenschap_id
	JOIN indiv_classes c ON c.id = e.indiv_class_id
	LEFT JOIN rayons ry ON ry.nr = k.rayon_nr
	WHERE k.competition_id = $1 AND k.round = 'RK'
	  AND e.result_rank > 0 AND e.result_rank <= $2
	  AND e.deelname <> 'NEE'
	ORDER BY c.volgorde, e.result_rank, e.id`
	var finishers []models.RKFinisher
	if err := sqlx.SelectContext(ctx, r.db, &finishers, query, competitionID, models.RankBlanco); err != nil {
		return nil, fmt.Errorf("list rk finishers: %w", err)
	}
	return finishers, nil
}

// IndivLimit returns the stored cut of a class, or def when none is stored.
func (r *RosterRepository) IndivLimit(ctx context.Context, kampioenschapID, classID int64, def int) (int, error) {
	const query = `SELECT limit_value FROM kamp_class_limits WHERE kampioenschap_id = $1 AND indiv_class_id = $2`
	return r.limit(ctx, query, kampioenschapID, classID, def)
}

// TeamLimit returns the stored cut of a team class, or def when none is stored.
func (r *RosterRepository) TeamLimit(ctx context.Context, kampioenschapID, classID int64, def int) (int, error) {
	const query = `SELECT limit_value FROM kamp_class_limits WHERE kampioenschap_id = $1 AND team_class_id = $2`
	return r.limit(ctx, query, kampioenschapID, classID, def)
}

func (r *RosterRepository) limit(ctx context.Context, query string, kampioenschapID, classID int64, def int) (int, error) {
	var value int
	if err := sqlx.GetContext(ctx, r.db, &value, query, kampioenschapID, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return def, nil
		}
		return 0, fmt.Errorf("get class limit: %w", err)
	}
	return value, nil
}

// SetIndivLimit stores the cut of a class.
func (r *RosterRepository) SetIndivLimit(ctx context.Context, kampioenschapID, classID int64, limit int) error {
	const query = `INSERT INTO kamp_class_limits (kampioenschap_id, indiv_class_id, limit_value) VALUES ($1, $2, $3)
	ON CONFLICT (kampioenschap_id, indiv_class_id) WHERE indiv_class_id IS NOT NULL DO UPDATE SET limit_value = EXCLUDED.limit_value`
	if _, err := r.db.ExecContext(ctx, query, kampioenschapID, classID, limit); err != nil {
		return fmt.Errorf("set indiv limit: %w", err)
	}
	return nil
}

// DeleteIndivLimit drops the stored cut of a class so the default applies.
func (r *RosterRepository) DeleteIndivLimit(ctx context.Context, kampioenschapID, classID int64) error {
	const query = `DELETE FROM kamp_class_limits WHERE kampioenschap_id = $1 AND indiv_class_id = $2`
	if _, err := r.db.ExecContext(ctx, query, kampioenschapID, classID); err != nil {
		return fmt.Errorf("delete indiv limit: %w", err)
	}
	return nil
}

// SetTeamLimit stores the cut of a team class.
func (r *RosterRepository) SetTeamLimit(ctx context.Context, kampioenschapID, classID int64, limit int) error {
	const query = `INSERT INTO kamp_class_limits (kampioenschap_id, team_class_id, limit_value) VALUES ($1, $2, $3)
	ON CONFLICT (kampioenschap_id, team_class_id) WHERE team_class_id IS NOT NULL DO UPDATE SET limit_value = EXCLUDED.limit_value`
	if _, err := r.db.ExecContext(ctx, query, kampioenschapID, classID, limit); err != nil {
		return fmt.Errorf("set team limit: %w", err)
	}
	return nil
}
