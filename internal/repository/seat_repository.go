package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/elective-api/internal/models"
)

// SeatRepository performs the atomic seat claim.
type SeatRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSeatRepository constructs a SeatRepository.
func NewSeatRepository(db *sqlx.DB) *SeatRepository {
	return &SeatRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// ClaimSeat enrolls the student in the course within one transaction. The
// enrollment row is written before the student's back-reference. When the claim
// takes the last seat a course_filled outbox row is written with a roster snapshot.
func (r *SeatRepository) ClaimSeat(ctx context.Context, studentID, courseID string) (*models.SeatClaim, error) {
	for {
		claim, err := r.claimOnce(ctx, studentID, courseID)
		if !errors.Is(err, errBatchMoved) {
			return claim, err
		}
	}
}

// errBatchMoved means the student changed batch between the unlocked read and
// the row lock, so the shared lock guards the wrong batch.
var errBatchMoved = errors.New("student batch changed")

func (r *SeatRepository) claimOnce(ctx context.Context, studentID, courseID string) (claim *models.SeatClaim, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim seat: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var batch string
	if err = tx.GetContext(ctx, &batch, `SELECT batch FROM students WHERE id = $1`, studentID); err != nil {
		if err == sql.ErrNoRows {
			err = ErrStudentNotFound
			return nil, err
		}
		return nil, fmt.Errorf("read student batch: %w", err)
	}
	// Promotion takes the exclusive mode of the same key.
	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock_shared(hashtext($1))`, batchLockKey(batch)); err != nil {
		return nil, fmt.Errorf("acquire batch lock: %w", err)
	}

	var course models.Course
	lockCourse := `SELECT ` + courseColumns + ` FROM courses c WHERE c.id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &course, lockCourse, courseID); err != nil {
		if err == sql.ErrNoRows {
			err = ErrCourseNotFound
			return nil, err
		}
		return nil, fmt.Errorf("lock course: %w", err)
	}

	var student struct {
		Semester         int     `db:"semester"`
		Batch            string  `db:"batch"`
		SelectedCourseID *string `db:"selected_course_id"`
	}
	if err = tx.GetContext(ctx, &student, `SELECT semester, batch, selected_course_id FROM students WHERE id = $1 FOR UPDATE`, studentID); err != nil {
		if err == sql.ErrNoRows {
			err = ErrStudentNotFound
			return nil, err
		}
		return nil, fmt.Errorf("lock student: %w", err)
	}
	if student.Batch != batch {
		err = errBatchMoved
		return nil, err
	}
	if student.Semester != course.Semester {
		err = ErrSemesterMismatch
		return nil, err
	}
	if student.SelectedCourseID != nil {
		err = ErrAlreadySelected
		return nil, err
	}

	now := r.now()
	const insertEnrollment = `INSERT INTO course_enrollments (course_id, student_id, enrolled_at)
        SELECT $1, $2, $3 WHERE (SELECT COUNT(*) FROM course_enrollments WHERE course_id = $1) < $4`
	res, err := tx.ExecContext(ctx, insertEnrollment, courseID, studentID, now, course.Capacity)
	if err != nil {
		if isUniqueViolation(err, constraintEnrollmentUnique) {
			err = ErrAlreadySelected
			return nil, err
		}
		return nil, fmt.Errorf("insert enrollment: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		err = ErrCourseFull
		return nil, err
	}

	var count int
	if err = tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM course_enrollments WHERE course_id = $1`, courseID); err != nil {
		return nil, fmt.Errorf("count enrollments: %w", err)
	}
	course.EnrolledCount = count
	claim = &models.SeatClaim{Course: course, EnrolledCount: count}

	if count == course.Capacity {
		var roster []models.RosterEntry
		if roster, err = selectRoster(ctx, tx, courseID); err != nil {
			return nil, err
		}
		var id string
		if id, err = insertCourseFilled(ctx, tx, course, roster, now); err != nil {
			return nil, err
		}
		claim.OutboxID = &id
	}

	res, err = tx.ExecContext(ctx, `UPDATE students SET selected_course_id = $2, updated_at = $3 WHERE id = $1 AND selected_course_id IS NULL`, studentID, courseID, now)
	if err != nil {
		return nil, fmt.Errorf("set selected course: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		err = ErrAlreadySelected
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim seat: %w", err)
	}
	return claim, nil
}

func insertCourseFilled(ctx context.Context, tx sqlx.ExecerContext, course models.Course, roster []models.RosterEntry, now time.Time) (string, error) {
	payload, err := json.Marshal(models.CourseFilledPayload{
		CourseID:     course.ID,
		CourseName:   course.Name,
		Teacher:      course.Teacher,
		TeacherEmail: course.TeacherEmail,
		Semester:     course.Semester,
		Capacity:     course.Capacity,
		FilledAt:     now,
		Roster:       roster,
	})
	if err != nil {
		return "", fmt.Errorf("marshal course filled payload: %w", err)
	}
	id := uuid.NewString()
	const query = `INSERT INTO notification_outbox (id, kind, course_id, payload, status, attempts, created_at) VALUES ($1, $2, $3, $4, $5, 0, $6)`
	if _, err := tx.ExecContext(ctx, query, id, models.OutboxKindCourseFilled, course.ID, payload, models.OutboxPending, now); err != nil {
		return "", fmt.Errorf("insert outbox: %w", err)
	}
	return id, nil
}
