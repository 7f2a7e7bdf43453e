package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Sentinel errors shared by the Postgres and in-memory stores.
var (
	ErrStudentNotFound       = errors.New("student not found")
	ErrCourseNotFound        = errors.New("course not found")
	ErrDuplicateRollNumber   = errors.New("roll number already exists")
	ErrDuplicateUsername     = errors.New("username already exists")
	ErrCourseFull            = errors.New("course is full")
	ErrAlreadySelected       = errors.New("student already selected a course")
	ErrSemesterMismatch      = errors.New("course semester does not match student semester")
	ErrBatchNotFound         = errors.New("batch has no students")
	ErrCapacityBelowEnrolled = errors.New("capacity below current enrollment")
	ErrCourseHasEnrollments  = errors.New("course has enrollments")
)

const (
	uniqueViolation = "23505"

	constraintRollNumber       = "students_roll_number_key"
	constraintEnrollmentUnique = "course_enrollments_student_id_key"
)

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

func batchLockKey(batch string) string {
	return "batch:" + batch
}
