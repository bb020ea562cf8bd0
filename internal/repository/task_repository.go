package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
)

// TaskRepository stores tasks for federation roles and logboek lines.
type TaskRepository struct {
	db sqlx.ExtContext
}

// NewTaskRepository constructs the repository on a DB or a transaction.
func NewTaskRepository(db sqlx.ExtContext) *TaskRepository {
	return &TaskRepository{db: db}
}

// CreateTask inserts a task and fills in id and created_at.
func (r *TaskRepository) CreateTask(ctx context.Context, task *models.Task) error {
	const query = `INSERT INTO tasks (role, rayon_nr, subject, body, deadline, created_at)
	VALUES ($1, $2, $3, $4, $5, NOW())
	RETURNING id, created_at`
	if err := r.db.QueryRowxContext(ctx, query, task.Role, task.RayonNr, task.Subject, task.Body, task.Deadline).
		Scan(&task.ID, &task.CreatedAt); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// Log appends a logboek line.
func (r *TaskRepository) Log(ctx context.Context, entry *models.LogEntry) error {
	const query = `INSERT INTO logboek (actor, topic, message, created_at) VALUES ($1, $2, $3, NOW()) RETURNING id, created_at`
	if err := r.db.QueryRowxContext(ctx, query, models.TruncateActor(entry.Actor), entry.Topic, entry.Message).
		Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return fmt.Errorf("write logboek: %w", err)
	}
	return nil
}
