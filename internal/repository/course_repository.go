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
	"github.com/lib/pq"

	"github.com/noah-isme/elective-api/internal/models"
)

const (
	courseColumns = "c.id, c.name, c.description, c.teacher, c.teacher_email, c.semester, c.department, c.capacity, c.syllabus_link, c.created_at, c.updated_at"
	enrolledCount = "(SELECT COUNT(*) FROM course_enrollments e WHERE e.course_id = c.id) AS enrolled_count"
)

// CourseRepository manages persistence for electives.
type CourseRepository struct {
	db *sqlx.DB
	sb squirrel.StatementBuilderType
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db, sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

// List returns courses with their live enrollment counts.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	where := squirrel.And{}
	if filter.Semester != nil {
		where = append(where, squirrel.Eq{"c.semester": *filter.Semester})
	}
	if filter.Department != "" {
		where = append(where, squirrel.Eq{"c.department": filter.Department})
	}
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		where = append(where, squirrel.Or{
			squirrel.Like{"LOWER(c.name)": pattern},
			squirrel.Like{"LOWER(c.teacher)": pattern},
		})
	}

	allowedSorts := map[string]string{
		"name":       "c.name",
		"semester":   "c.semester",
		"capacity":   "c.capacity",
		"created_at": "c.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "c.name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page, size := models.NormalizePage(filter.Page, filter.PageSize)

	listQuery, args, err := r.sb.Select(courseColumns, enrolledCount).
		From("courses c").
		Where(where).
		OrderBy(column + " " + order).
		Limit(uint64(size)).
		Offset(uint64((page - 1) * size)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list courses: %w", err)
	}

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery, countArgs, err := r.sb.Select("COUNT(*)").From("courses c").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count courses: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID fetches a course with its enrollment count.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + `, ` + enrolledCount + ` FROM courses c WHERE c.id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// Create inserts a course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, name, description, teacher, teacher_email, semester, department, capacity, syllabus_link, created_at, updated_at)
        VALUES (:id, :name, :description, :teacher, :teacher_email, :semester, :department, :capacity, :syllabus_link, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update writes a course while holding its row lock. Capacity may not drop below
// the current enrollment and the semester is frozen while seats are held.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update course: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current struct {
		Semester int `db:"semester"`
	}
	if err = tx.GetContext(ctx, &current, `SELECT semester FROM courses WHERE id = $1 FOR UPDATE`, course.ID); err != nil {
		return err
	}
	var enrolled int
	if err = tx.GetContext(ctx, &enrolled, `SELECT COUNT(*) FROM course_enrollments WHERE course_id = $1`, course.ID); err != nil {
		return fmt.Errorf("count course enrollments: %w", err)
	}
	if course.Capacity < enrolled {
		err = ErrCapacityBelowEnrolled
		return err
	}
	if course.Semester != current.Semester && enrolled > 0 {
		err = ErrCourseHasEnrollments
		return err
	}

	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET name = :name, description = :description, teacher = :teacher, teacher_email = :teacher_email,
        semester = :semester, department = :department, capacity = :capacity, syllabus_link = :syllabus_link, updated_at = :updated_at WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update course: %w", err)
	}
	course.EnrolledCount = enrolled
	return nil
}

// Delete removes the course, its enrollments and every back-reference to it.
func (r *CourseRepository) Delete(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete course: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM course_enrollments WHERE course_id = $1`, id); err != nil {
		return fmt.Errorf("delete course enrollments: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE students SET selected_course_id = NULL, updated_at = $2 WHERE selected_course_id = $1`, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("clear course references: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		err = sql.ErrNoRows
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete course: %w", err)
	}
	return nil
}

// Roster lists enrolled students in enrollment order, 1-indexed.
func (r *CourseRepository) Roster(ctx context.Context, courseID string) ([]models.RosterEntry, error) {
	return selectRoster(ctx, r.db, courseID)
}

// Counts returns the current enrollment of the given courses.
func (r *CourseRepository) Counts(ctx context.Context, ids []string) ([]models.CourseCount, error) {
	return selectCounts(ctx, r.db, ids)
}

const rosterQuery = `SELECT ROW_NUMBER() OVER (ORDER BY e.seq) AS position, s.id AS student_id, s.name, s.roll_number, s.year, s.semester, s.batch, e.enrolled_at
        FROM course_enrollments e JOIN students s ON s.id = e.student_id
        WHERE e.course_id = $1 ORDER BY e.seq`

func selectRoster(ctx context.Context, q sqlx.QueryerContext, courseID string) ([]models.RosterEntry, error) {
	var roster []models.RosterEntry
	if err := sqlx.SelectContext(ctx, q, &roster, rosterQuery, courseID); err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return roster, nil
}

const countsQuery = `SELECT c.id AS course_id, c.capacity, ` + enrolledCount + ` FROM courses c WHERE c.id = ANY($1) ORDER BY c.id`

func selectCounts(ctx context.Context, q sqlx.QueryerContext, ids []string) ([]models.CourseCount, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var counts []models.CourseCount
	if err := sqlx.SelectContext(ctx, q, &counts, countsQuery, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("count course enrollments: %w", err)
	}
	return counts, nil
}
