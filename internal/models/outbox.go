package models

import "time"

// OutboxStatus tracks delivery of an outbox message.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
	OutboxSkipped OutboxStatus = "skipped"
)

// OutboxKindCourseFilled is written when a course takes its last seat.
const OutboxKindCourseFilled = "course_filled"

// OutboxMessage is a side effect recorded in the same transaction as its cause.
type OutboxMessage struct {
	ID          string       `db:"id" json:"id"`
	Kind        string       `db:"kind" json:"kind"`
	CourseID    string       `db:"course_id" json:"course_id"`
	Payload     []byte       `db:"payload" json:"-"`
	Status      OutboxStatus `db:"status" json:"status"`
	Attempts    int          `db:"attempts" json:"attempts"`
	LastError   *string      `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
}

// CourseFilledPayload snapshots a course and its roster at the moment it filled.
type CourseFilledPayload struct {
	CourseID     string        `json:"course_id"`
	CourseName   string        `json:"course_name"`
	Teacher      string        `json:"teacher"`
	TeacherEmail string        `json:"teacher_email"`
	Semester     int           `json:"semester"`
	Capacity     int           `json:"capacity"`
	FilledAt     time.Time     `json:"filled_at"`
	Roster       []RosterEntry `json:"roster"`
}
