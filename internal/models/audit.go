package models

import "time"

// Audit actions.
const (
	AuditActionLogin         = "LOGIN"
	AuditActionCourseSelect  = "COURSE_SELECT"
	AuditActionStudentCreate = "STUDENT_CREATE"
	AuditActionStudentUpdate = "STUDENT_UPDATE"
	AuditActionStudentDelete = "STUDENT_DELETE"
	AuditActionStudentImport = "STUDENT_IMPORT"
	AuditActionCourseCreate  = "COURSE_CREATE"
	AuditActionCourseUpdate  = "COURSE_UPDATE"
	AuditActionCourseDelete  = "COURSE_DELETE"
	AuditActionBatchSemester = "BATCH_SEMESTER"
	AuditActionBatchPromote  = "BATCH_PROMOTE"
	AuditActionReconcile     = "RECONCILE"
)

// AuditLog is an append-only trail entry.
type AuditLog struct {
	ID        string    `db:"id" json:"id"`
	Action    string    `db:"action" json:"action"`
	Actor     string    `db:"actor" json:"actor"`
	Details   string    `db:"details" json:"details"`
	IPAddress string    `db:"ip_address" json:"ip_address"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AuditFilter narrows audit log listings.
type AuditFilter struct {
	Action   string
	Actor    string
	Search   string
	Page     int
	PageSize int
}
