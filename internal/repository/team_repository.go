package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
)

// TeamRepository persists championship teams and their member links.
type TeamRepository struct {
	db sqlx.ExtContext
}

// NewTeamRepository constructs the repository on a DB or a transaction.
func NewTeamRepository(db sqlx.ExtContext) *TeamRepository {
	return &TeamRepository{db: db}
}

const teamColumns = `t.id, t.kampioenschap_id, t.team_class_id, t.club_id, t.name, t.volgorde, t.rank, t.deelname,
	t.average, t.result_rank, t.result_score`

// RoundTeams lists the teams of one round of a competition.
func (r *TeamRepository) RoundTeams(ctx context.Context, competitionID int64, round models.Round) ([]models.KampTeam, error) {
	query := `SELECT ` + teamColumns + ` FROM kamp_teams t
	JOIN kampioenschappen k ON k.id = t.kampioenschap_id
	WHERE k.competition_id = $1 AND k.round = $2
	ORDER BY t.id`
	var teams []models.KampTeam
	if err := sqlx.SelectContext(ctx, r.db, &teams, query, competitionID, round); err != nil {
		return nil, fmt.Errorf("list %s teams: %w", round, err)
	}
	return teams, nil
}

// ProvisionalMembers lists the regio entrants registered for the RK teams of a competition.
func (r *TeamRepository) ProvisionalMembers(ctx context.Context, competitionID int64) ([]models.ProvisionalMember, error) {
	const query = `SELECT p.team_id, t.club_id AS team_club_id, p.regio_entrant_id
	FROM kamp_team_provisional p
	JOIN kamp_teams t ON t.id = p.team_id
	JOIN kampioenschappen k ON k.id = t.kampioenschap_id
	WHERE k.competition_id = $1 AND k.round = 'RK'
	ORDER BY p.team_id, p.regio_entrant_id`
	var members []models.ProvisionalMember
	if err := sqlx.SelectContext(ctx, r.db, &members, query, competitionID); err != nil {
		return nil, fmt.Errorf("list provisional members: %w", err)
	}
	return members, nil
}

// LinkMember links a championship entrant to a team.
func (r *TeamRepository) LinkMember(ctx context.Context, teamID, entrantID int64) error {
	const query = `INSERT INTO kamp_team_members (team_id, entrant_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, teamID, entrantID); err != nil {
		return fmt.Errorf("link team member: %w", err)
	}
	return nil
}

// Members returns the linked entrant ids per team.
func (r *TeamRepository) Members(ctx context.Context, teamIDs []int64) (map[int64][]int64, error) {
	result := make(map[int64][]int64, len(teamIDs))
	if len(teamIDs) == 0 {
		return result, nil
	}
	const query = `SELECT team_id, entrant_id FROM kamp_team_members WHERE team_id = ANY($1) ORDER BY team_id, entrant_id`
	var rows []struct {
		TeamID    int64 `db:"team_id"`
		EntrantID int64 `db:"entrant_id"`
	}
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, pq.Array(teamIDs)); err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	for _, row := range rows {
		result[row.TeamID] = append(result[row.TeamID], row.EntrantID)
	}
	return result, nil
}

// SetAverage stores the team strength.
func (r *TeamRepository) SetAverage(ctx context.Context, teamID int64, average float64) error {
	const query = `UPDATE kamp_teams SET average = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, teamID, average); err != nil {
		return fmt.Errorf("set team average: %w", err)
	}
	return nil
}

// DeleteRound removes the teams of one round of a competition.
func (r *TeamRepository) DeleteRound(ctx context.Context, competitionID int64, round models.Round) error {
	const query = `DELETE FROM kamp_teams WHERE kampioenschap_id IN
	(SELECT id FROM kampioenschappen WHERE competition_id = $1 AND round = $2)`
	if _, err := r.db.ExecContext(ctx, query, competitionID, round); err != nil {
		return fmt.Errorf("delete %s teams: %w", round, err)
	}
	return nil
}

// Insert stores a team, fills in its id and links its members.
func (r *TeamRepository) Insert(ctx context.Context, team *models.KampTeam) error {
	const query = `INSERT INTO kamp_teams
	(kampioenschap_id, team_class_id, club_id, name, volgorde, rank, deelname, average, result_rank, result_score)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, 0)
	RETURNING id`
	err := r.db.QueryRowxContext(ctx, query, team.KampioenschapID, team.TeamClassID, team.ClubID, team.Name,
		team.Volgorde, team.Rank, team.Deelname, team.Average).Scan(&team.ID)
	if err != nil {
		return fmt.Errorf("insert kamp team: %w", err)
	}
	for _, entrantID := range team.Members {
		if err := r.LinkMember(ctx, team.ID, entrantID); err != nil {
			return err
		}
	}
	return nil
}

// BKCandidates lists the RK teams that go on to the BK: result rank 1, 2 or blank,
// in RK/BK-eligible team classes, ordered by class and rank.
func (r *TeamRepository) BKCandidates(ctx context.Context, competitionID int64) ([]models.KampTeam, error) {
	query := `SELECT ` + teamColumns + `, c.next_round_class_id AS next_class_id, COALESCE(ry.name, '') AS rayon_name
	FROM kamp_teams t
	JOIN kampioenschappen k ON k.id = t.kampioenschap_id
	JOIN team_classes c ON c.id = t.team_class_id
	LEFT JOIN rayons ry ON ry.nr = k.rayon_nr
	WHERE k.competition_id = $1 AND k.round = 'RK' AND c.is_for_rk_bk = true
	  AND t.result_rank IN ($2, $3, $4)
	ORDER BY c.volgorde, t.result_rank, t.id`
	var teams []models.KampTeam
	if err := sqlx.SelectContext(ctx, r.db, &teams, query, competitionID, 1, 2, models.RankBlanco); err != nil {
		return nil, fmt.Errorf("list bk team candidates: %w", err)
	}
	return teams, nil
}

// ClassTeams lists the teams of one class of a championship in volgorde order.
func (r *TeamRepository) ClassTeams(ctx context.Context, kampioenschapID, classID int64) ([]models.KampTeam, error) {
	query := `SELECT ` + teamColumns + ` FROM kamp_teams t
	WHERE t.kampioenschap_id = $1 AND t.team_class_id = $2
	ORDER BY t.volgorde, t.id`
	var teams []models.KampTeam
	if err := sqlx.SelectContext(ctx, r.db, &teams, query, kampioenschapID, classID); err != nil {
		return nil, fmt.Errorf("list class teams: %w", err)
	}
	return teams, nil
}

// SavePlacement writes back volgorde and rank of each team.
func (r *TeamRepository) SavePlacement(ctx context.Context, teams []models.KampTeam) error {
	const query = `UPDATE kamp_teams SET volgorde = $2, rank = $3 WHERE id = $1`
	for _, t := range teams {
		if _, err := r.db.ExecContext(ctx, query, t.ID, t.Volgorde, t.Rank); err != nil {
			return fmt.Errorf("save team placement: %w", err)
		}
	}
	return nil
}
