package models

import "time"

// Task is a work item addressed to a federation role.
type Task struct {
	ID        int64     `db:"id" json:"id"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	Role      UserRole  `db:"role" json:"role"`
	RayonNr   *int      `db:"rayon_nr" json:"rayonNr,omitempty"`
	Subject   string    `db:"subject" json:"subject"`
	Body      string    `db:"body" json:"body"`
	Deadline  time.Time `db:"deadline" json:"deadline"`
}

// LogEntry is a logboek line recorded next to a state change.
type LogEntry struct {
	ID        int64     `db:"id" json:"id"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	Actor     string    `db:"actor" json:"actor"`
	Topic     string    `db:"topic" json:"topic"`
	Message   string    `db:"message" json:"message"`
}

// Logboek topics.
const (
	LogTopicCompetition = "Competitie"
	LogTopicCart        = "Bestelling"
)
