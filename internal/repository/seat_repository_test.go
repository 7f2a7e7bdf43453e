package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectClaimPrelude(mock sqlmock.Sqlmock, capacity, courseSemester, studentSemester int) {
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT batch FROM students WHERE id = $1")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"batch"}).AddRow("2024"))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock_shared(hashtext($1))")).
		WithArgs("batch:2024").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses c WHERE c.id = $1 FOR UPDATE")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(courseRowColumns[:11]).
			AddRow("c1", "Cloud", "", "Dr. Rao", "rao@example.edu", courseSemester, "MCA", capacity, "", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT semester, batch, selected_course_id FROM students WHERE id = $1 FOR UPDATE")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"semester", "batch", "selected_course_id"}).AddRow(studentSemester, "2024", nil))
}

func TestSeatRepositoryClaimSeat(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewSeatRepository(db)

	expectClaimPrelude(mock, 2, 1, 1)
	mock.ExpectExec("INSERT INTO course_enrollments").
		WithArgs("c1", "s1", sqlmock.AnyArg(), 2).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM course_enrollments WHERE course_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET selected_course_id = $2")).
		WithArgs("s1", "c1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claim, err := repo.ClaimSeat(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, claim.EnrolledCount)
	assert.False(t, claim.Filled())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatRepositoryClaimLastSeatWritesOutbox(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewSeatRepository(db)

	expectClaimPrelude(mock, 2, 1, 1)
	mock.ExpectExec("INSERT INTO course_enrollments").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY e.seq")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"position", "student_id", "name", "roll_number", "year", "semester", "batch", "enrolled_at"}).
			AddRow(1, "s0", "Asha", "MCA001", 1, 1, "2024", now).
			AddRow(2, "s1", "Ravi", "MCA002", 1, 1, "2024", now))
	mock.ExpectExec("INSERT INTO notification_outbox").
		WithArgs(sqlmock.AnyArg(), "course_filled", "c1", sqlmock.AnyArg(), "pending", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE students SET selected_course_id").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claim, err := repo.ClaimSeat(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.True(t, claim.Filled())
	assert.Equal(t, 2, claim.EnrolledCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatRepositoryClaimFullCourse(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewSeatRepository(db)

	expectClaimPrelude(mock, 2, 1, 1)
	mock.ExpectExec("INSERT INTO course_enrollments").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.ClaimSeat(context.Background(), "s1", "c1")
	assert.ErrorIs(t, err, ErrCourseFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatRepositoryClaimSemesterMismatch(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewSeatRepository(db)

	expectClaimPrelude(mock, 2, 3, 1)
	mock.ExpectRollback()

	_, err := repo.ClaimSeat(context.Background(), "s1", "c1")
	assert.ErrorIs(t, err, ErrSemesterMismatch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatRepositoryClaimUniqueViolation(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewSeatRepository(db)

	expectClaimPrelude(mock, 2, 1, 1)
	mock.ExpectExec("INSERT INTO course_enrollments").
		WillReturnError(&pq.Error{Code: "23505", Constraint: constraintEnrollmentUnique})
	mock.ExpectRollback()

	_, err := repo.ClaimSeat(context.Background(), "s1", "c1")
	assert.ErrorIs(t, err, ErrAlreadySelected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatRepositoryClaimUnknownStudent(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewSeatRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT batch FROM students").WillReturnRows(sqlmock.NewRows([]string{"batch"}))
	mock.ExpectRollback()

	_, err := repo.ClaimSeat(context.Background(), "s1", "c1")
	assert.ErrorIs(t, err, ErrStudentNotFound)
}

func TestSeatRepositoryClaimTakesSharedBatchLockBeforeRowLocks(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewSeatRepository(db)
	mock.MatchExpectationsInOrder(true)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT batch FROM students WHERE id = $1")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"batch"}).AddRow("2024"))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock_shared(hashtext($1))")).
		WithArgs("batch:2024").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("c1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.ClaimSeat(context.Background(), "s1", "c1")
	assert.ErrorIs(t, err, ErrCourseNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatRepositoryClaimRetriesAfterBatchMove(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewSeatRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT batch FROM students WHERE id = $1")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"batch"}).AddRow("2023"))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock_shared(hashtext($1))")).
		WithArgs("batch:2023").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses c WHERE c.id = $1 FOR UPDATE")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(courseRowColumns[:11]).
			AddRow("c1", "Cloud", "", "Dr. Rao", "rao@example.edu", 1, "MCA", 2, "", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT semester, batch, selected_course_id FROM students WHERE id = $1 FOR UPDATE")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"semester", "batch", "selected_course_id"}).AddRow(1, "2024", nil))
	mock.ExpectRollback()

	expectClaimPrelude(mock, 2, 1, 1)
	mock.ExpectExec("INSERT INTO course_enrollments").
		WithArgs("c1", "s1", sqlmock.AnyArg(), 2).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM course_enrollments WHERE course_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET selected_course_id = $2")).
		WithArgs("s1", "c1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claim, err := repo.ClaimSeat(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, claim.EnrolledCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
