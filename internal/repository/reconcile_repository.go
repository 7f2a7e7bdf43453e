package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/elective-api/internal/models"
)

// ReconcileRepository finds and repairs one-sided enrollment state.
type ReconcileRepository struct {
	db *sqlx.DB
}

// NewReconcileRepository constructs a ReconcileRepository.
func NewReconcileRepository(db *sqlx.DB) *ReconcileRepository {
	return &ReconcileRepository{db: db}
}

// FindDanglingEnrollments returns enrollment rows whose student does not point back at the course.
func (r *ReconcileRepository) FindDanglingEnrollments(ctx context.Context) ([]models.EnrollmentRef, error) {
	const query = `SELECT e.student_id, e.course_id, s.selected_course_id, s.semester AS student_semester, c.semester AS course_semester
        FROM course_enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN courses c ON c.id = e.course_id
        WHERE s.selected_course_id IS DISTINCT FROM e.course_id
        ORDER BY e.seq`
	var refs []models.EnrollmentRef
	if err := r.db.SelectContext(ctx, &refs, query); err != nil {
		return nil, fmt.Errorf("find dangling enrollments: %w", err)
	}
	return refs, nil
}

// FindDanglingReferences returns students whose selection has no enrollment row.
func (r *ReconcileRepository) FindDanglingReferences(ctx context.Context) ([]models.EnrollmentRef, error) {
	const query = `SELECT s.id AS student_id, s.selected_course_id, s.semester AS student_semester
        FROM students s
        LEFT JOIN course_enrollments e ON e.student_id = s.id AND e.course_id = s.selected_course_id
        WHERE s.selected_course_id IS NOT NULL AND e.seq IS NULL
        ORDER BY s.id`
	var refs []models.EnrollmentRef
	if err := r.db.SelectContext(ctx, &refs, query); err != nil {
		return nil, fmt.Errorf("find dangling references: %w", err)
	}
	return refs, nil
}

// FindOverCapacity returns courses holding more enrollments than seats.
func (r *ReconcileRepository) FindOverCapacity(ctx context.Context) ([]models.CourseCount, error) {
	const query = `SELECT c.id AS course_id, c.capacity, COUNT(e.seq) AS enrolled_count
        FROM courses c JOIN course_enrollments e ON e.course_id = c.id
        GROUP BY c.id, c.capacity
        HAVING COUNT(e.seq) > c.capacity
        ORDER BY c.id`
	var counts []models.CourseCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("find over capacity: %w", err)
	}
	return counts, nil
}

// AttachReference points the student at the course when it has no selection.
func (r *ReconcileRepository) AttachReference(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `UPDATE students SET selected_course_id = $2, updated_at = $3 WHERE id = $1 AND selected_course_id IS NULL`
	res, err := r.db.ExecContext(ctx, query, studentID, courseID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("attach reference: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// RemoveEnrollment deletes a specific enrollment row.
func (r *ReconcileRepository) RemoveEnrollment(ctx context.Context, studentID, courseID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM course_enrollments WHERE student_id = $1 AND course_id = $2`, studentID, courseID); err != nil {
		return fmt.Errorf("remove enrollment: %w", err)
	}
	return nil
}

// ClearReference clears a selection that still points at courseID.
func (r *ReconcileRepository) ClearReference(ctx context.Context, studentID, courseID string) error {
	const query = `UPDATE students SET selected_course_id = NULL, updated_at = $3 WHERE id = $1 AND selected_course_id = $2`
	if _, err := r.db.ExecContext(ctx, query, studentID, courseID, time.Now().UTC()); err != nil {
		return fmt.Errorf("clear reference: %w", err)
	}
	return nil
}
