package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
)

// CompetitionMutationRepository persists the competition mutation queue.
type CompetitionMutationRepository struct {
	mutationQueue
}

// NewCompetitionMutationRepository constructs the repository on a DB or a transaction.
func NewCompetitionMutationRepository(db sqlx.ExtContext) *CompetitionMutationRepository {
	return &CompetitionMutationRepository{mutationQueue{db: db, table: "competition_mutations"}}
}

const competitionMutationColumns = `id, created_at, code, is_processed, processed_at, actor, last_error,
	competition_id, kampioenschap_id, indiv_class_id, team_class_id, participant_id, cut_old, cut_new`

// Create appends a new unprocessed mutation and fills in its id and creation time.
func (r *CompetitionMutationRepository) Create(ctx context.Context, m *models.CompetitionMutation) error {
	m.Actor = models.TruncateActor(m.Actor)
	const query = `INSERT INTO competition_mutations
	(code, is_processed, actor, competition_id, kampioenschap_id, indiv_class_id, team_class_id, participant_id, cut_old, cut_new)
	VALUES ($1, false, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING id, created_at`
	row := r.db.QueryRowxContext(ctx, query, m.Code, m.Actor, m.CompetitionID, m.KampioenschapID,
		m.IndivClassID, m.TeamClassID, m.ParticipantID, m.CutOld, m.CutNew)
	if err := row.Scan(&m.ID, &m.CreatedAt); err != nil {
		return fmt.Errorf("create competition mutation: %w", err)
	}
	m.IsProcessed = false
	return nil
}

// Get reads one mutation by primary key.
func (r *CompetitionMutationRepository) Get(ctx context.Context, id int64) (*models.CompetitionMutation, error) {
	query := `SELECT ` + competitionMutationColumns + ` FROM competition_mutations WHERE id = $1`
	var m models.CompetitionMutation
	if err := sqlx.GetContext(ctx, r.db, &m, query, id); err != nil {
		return nil, err
	}
	return &m, nil
}

// FindPending returns the oldest unprocessed mutation with the given code for a competition, if any.
func (r *CompetitionMutationRepository) FindPending(ctx context.Context, code models.CompetitionMutationCode, competitionID *int64) (*models.CompetitionMutation, error) {
	query := `SELECT ` + competitionMutationColumns + ` FROM competition_mutations
	WHERE is_processed = false AND code = $1 AND competition_id IS NOT DISTINCT FROM $2
	ORDER BY id ASC LIMIT 1`
	var m models.CompetitionMutation
	if err := sqlx.GetContext(ctx, r.db, &m, query, code, competitionID); err != nil {
		return nil, err
	}
	return &m, nil
}
