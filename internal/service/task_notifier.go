package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
)

// taskPublisher is satisfied by broker.Publisher.
type taskPublisher interface {
	Publish(ctx context.Context, payload interface{}) error
}

// TaskCreatedEvent is the message published for every new task.
type TaskCreatedEvent struct {
	Event    string          `json:"event"`
	TaskID   int64           `json:"taskId"`
	Role     models.UserRole `json:"role"`
	RayonNr  *int            `json:"rayonNr,omitempty"`
	Subject  string          `json:"subject"`
	Deadline time.Time       `json:"deadline"`
}

// TaskNotifier announces committed tasks on the message broker. Delivery is best effort.
type TaskNotifier struct {
	publisher taskPublisher
	logger    *zap.Logger
}

// NewTaskNotifier constructs a notifier. A nil publisher disables publishing.
func NewTaskNotifier(publisher taskPublisher, logger *zap.Logger) *TaskNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskNotifier{publisher: publisher, logger: logger}
}

// Notify publishes one task.created message per task. Failures are logged only.
func (n *TaskNotifier) Notify(ctx context.Context, tasks []models.Task) {
	if n == nil || n.publisher == nil {
		return
	}
	for _, task := range tasks {
		event := TaskCreatedEvent{
			Event:    "task.created",
			TaskID:   task.ID,
			Role:     task.Role,
			RayonNr:  task.RayonNr,
			Subject:  task.Subject,
			Deadline: task.Deadline,
		}
		if err := n.publisher.Publish(ctx, event); err != nil {
			n.logger.Warn("publish task notification failed", zap.Int64("task_id", task.ID), zap.Error(err))
		}
	}
}
