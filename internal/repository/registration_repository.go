package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
)

// RegistrationRepository persists event registrations and session seat counts.
type RegistrationRepository struct {
	db sqlx.ExtContext
}

// NewRegistrationRepository constructs the repository on a DB or a transaction.
func NewRegistrationRepository(db sqlx.ExtContext) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

const registrationColumns = `r.id, r.created_at, r.event_id, r.session_id, r.sporterboog_id, sb.sporter_id,
	r.account_id, r.status, r.received, r.log`

// Create inserts a registration and claims a seat in its session.
func (r *RegistrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	const query = `INSERT INTO registrations (event_id, session_id, sporterboog_id, account_id, status, received, log, created_at)
	VALUES ($1, $2, $3, $4, $5, 0, $6, NOW())
	RETURNING id, created_at`
	if err := r.db.QueryRowxContext(ctx, query, reg.EventID, reg.SessionID, reg.SporterBoogID, reg.AccountID,
		reg.Status, reg.Log).Scan(&reg.ID, &reg.CreatedAt); err != nil {
		return fmt.Errorf("create registration: %w", err)
	}
	if reg.SessionID != nil {
		if _, err := r.db.ExecContext(ctx, `UPDATE event_sessions SET registered = registered + 1 WHERE id = $1`, *reg.SessionID); err != nil {
			return fmt.Errorf("claim session seat: %w", err)
		}
	}
	return nil
}

// Get fetches one registration.
func (r *RegistrationRepository) Get(ctx context.Context, id int64) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations r
	JOIN sporterbogen sb ON sb.id = r.sporterboog_id
	WHERE r.id = $1`
	var reg models.Registration
	if err := sqlx.GetContext(ctx, r.db, &reg, query, id); err != nil {
		return nil, err
	}
	return &reg, nil
}

// GetDetail fetches a registration with the event and sporter data used for pricing.
func (r *RegistrationRepository) GetDetail(ctx context.Context, id int64) (*models.RegistrationDetail, error) {
	query := `SELECT ` + registrationColumns + `, ev.title AS event_title, ev.date AS event_date,
	       ev.price AS event_price, ev.youth_price, ev.organizer_club_id, sp.birth_date AS sporter_birth
	FROM registrations r
	JOIN sporterbogen sb ON sb.id = r.sporterboog_id
	JOIN sporters sp ON sp.id = sb.sporter_id
	JOIN events ev ON ev.id = r.event_id
	WHERE r.id = $1`
	var detail models.RegistrationDetail
	if err := sqlx.GetContext(ctx, r.db, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindActive returns the registration of a sporterboog for an event that is not cancelled.
func (r *RegistrationRepository) FindActive(ctx context.Context, eventID, sporterBoogID int64) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations r
	JOIN sporterbogen sb ON sb.id = r.sporterboog_id
	WHERE r.event_id = $1 AND r.sporterboog_id = $2 AND r.status <> $3
	LIMIT 1`
	var reg models.Registration
	err := sqlx.GetContext(ctx, r.db, &reg, query, eventID, sporterBoogID, models.RegistrationStatusCancelled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active registration: %w", err)
	}
	return &reg, nil
}

// SetStatus changes the status of a registration and appends a line to its log.
func (r *RegistrationRepository) SetStatus(ctx context.Context, id int64, status models.RegistrationStatus, logLine string) error {
	const query = `UPDATE registrations SET status = $2, log = log || $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, logLine+"\n"); err != nil {
		return fmt.Errorf("set registration status: %w", err)
	}
	return nil
}

// SetReceived records the amount received for a registration.
func (r *RegistrationRepository) SetReceived(ctx context.Context, id int64, amount decimal.Decimal) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE registrations SET received = $2 WHERE id = $1`, id, amount); err != nil {
		return fmt.Errorf("set registration received: %w", err)
	}
	return nil
}

// ReleaseSeat gives back the session seat of a registration. The count never drops below zero.
func (r *RegistrationRepository) ReleaseSeat(ctx context.Context, sessionID *int64) error {
	if sessionID == nil {
		return nil
	}
	const query = `UPDATE event_sessions SET registered = GREATEST(registered - 1, 0) WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, *sessionID); err != nil {
		return fmt.Errorf("release session seat: %w", err)
	}
	return nil
}

// HeldEventIDs lists the events, out of eventIDs, a sporter holds a registration for
// that is not cancelled.
func (r *RegistrationRepository) HeldEventIDs(ctx context.Context, sporterID int64, eventIDs []int64) ([]int64, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT DISTINCT r.event_id FROM registrations r
	JOIN sporterbogen sb ON sb.id = r.sporterboog_id
	WHERE sb.sporter_id = $1 AND r.event_id = ANY($2) AND r.status <> $3
	ORDER BY r.event_id`
	var ids []int64
	if err := sqlx.SelectContext(ctx, r.db, &ids, query, sporterID, pq.Array(eventIDs), models.RegistrationStatusCancelled); err != nil {
		return nil, fmt.Errorf("list held events: %w", err)
	}
	return ids, nil
}
