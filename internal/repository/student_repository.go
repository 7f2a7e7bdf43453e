package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/elective-api/internal/models"
)

const studentColumns = "s.id, s.name, s.roll_number, s.year, s.semester, s.department, s.batch, s.password_hash, s.selected_course_id, s.created_at, s.updated_at"

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
	sb squirrel.StatementBuilderType
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db, sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	where := squirrel.And{}
	if filter.Year != nil {
		where = append(where, squirrel.Eq{"s.year": *filter.Year})
	}
	if filter.Semester != nil {
		where = append(where, squirrel.Eq{"s.semester": *filter.Semester})
	}
	if filter.Batch != "" {
		where = append(where, squirrel.Eq{"s.batch": filter.Batch})
	}
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		where = append(where, squirrel.Or{
			squirrel.Like{"LOWER(s.name)": pattern},
			squirrel.Like{"LOWER(s.roll_number)": pattern},
		})
	}

	allowedSorts := map[string]string{
		"name":        "s.name",
		"roll_number": "s.roll_number",
		"semester":    "s.semester",
		"created_at":  "s.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "s.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page, size := models.NormalizePage(filter.Page, filter.PageSize)

	listQuery, args, err := r.sb.Select(studentColumns, "c.name AS selected_course_name").
		From("students s").
		LeftJoin("courses c ON c.id = s.selected_course_id").
		Where(where).
		OrderBy(column + " " + order).
		Limit(uint64(size)).
		Offset(uint64((page - 1) * size)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list students: %w", err)
	}

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery, countArgs, err := r.sb.Select("COUNT(*)").From("students s").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count students: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student with its selected course name.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := `SELECT ` + studentColumns + `, c.name AS selected_course_name
        FROM students s LEFT JOIN courses c ON c.id = s.selected_course_id
        WHERE s.id = $1`
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByRollNumber fetches a student by roll number.
func (r *StudentRepository) FindByRollNumber(ctx context.Context, roll string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students s WHERE s.roll_number = $1 LIMIT 1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, roll); err != nil {
		return nil, err
	}
	return &student, nil
}

// ExistsByRollNumber checks if a roll number is taken, optionally excluding an ID.
func (r *StudentRepository) ExistsByRollNumber(ctx context.Context, roll string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students WHERE roll_number = $1"
	args := []interface{}{roll}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check roll number: %w", err)
	}
	return true, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, name, roll_number, year, semester, department, batch, password_hash, selected_course_id, created_at, updated_at)
        VALUES (:id, :name, :roll_number, :year, :semester, :department, :batch, :password_hash, :selected_course_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		if isUniqueViolation(err, constraintRollNumber) {
			return ErrDuplicateRollNumber
		}
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

const updateStudentColumns = `name = :name, roll_number = :roll_number, year = :year, semester = :semester, department = :department,
        batch = :batch, password_hash = :password_hash, updated_at = :updated_at`

// Update writes the profile fields. selected_course_id is owned by the seat
// allocator and is only touched when releaseSeat is set: the enrollment row is
// removed and the reference cleared in the same transaction. The returned
// course is the one the student was detached from, if any.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student, releaseSeat bool) (detached *string, err error) {
	student.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update student: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `UPDATE students SET ` + updateStudentColumns + ` WHERE id = :id`
	if releaseSeat {
		var courseID string
		err = tx.GetContext(ctx, &courseID, `DELETE FROM course_enrollments WHERE student_id = $1 RETURNING course_id`, student.ID)
		switch {
		case err == sql.ErrNoRows:
			err = nil
		case err != nil:
			return nil, fmt.Errorf("detach student enrollment: %w", err)
		default:
			detached = &courseID
		}
		query = `UPDATE students SET ` + updateStudentColumns + `, selected_course_id = NULL WHERE id = :id`
	}

	var res sql.Result
	if res, err = tx.NamedExecContext(ctx, query, student); err != nil {
		if isUniqueViolation(err, constraintRollNumber) {
			err = ErrDuplicateRollNumber
			return nil, err
		}
		return nil, fmt.Errorf("update student: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		err = sql.ErrNoRows
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update student: %w", err)
	}
	if releaseSeat {
		student.SelectedCourseID = nil
	}
	return detached, nil
}

// Delete removes the student and its enrollment in one transaction. It returns
// the course the student was detached from, if any.
func (r *StudentRepository) Delete(ctx context.Context, id string) (detached *string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete student: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var courseID string
	err = tx.GetContext(ctx, &courseID, `DELETE FROM course_enrollments WHERE student_id = $1 RETURNING course_id`, id)
	switch {
	case err == sql.ErrNoRows:
		err = nil
	case err != nil:
		return nil, fmt.Errorf("detach student enrollment: %w", err)
	default:
		detached = &courseID
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("delete student: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		err = sql.ErrNoRows
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete student: %w", err)
	}
	return detached, nil
}

// ListBatches returns the distinct non-empty batch tags.
func (r *StudentRepository) ListBatches(ctx context.Context) ([]string, error) {
	var batches []string
	const query = `SELECT DISTINCT batch FROM students WHERE batch <> '' ORDER BY batch`
	if err := r.db.SelectContext(ctx, &batches, query); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}
