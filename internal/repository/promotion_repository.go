package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/elective-api/internal/models"
)

// PromotionRepository applies batch-wide semester transitions.
type PromotionRepository struct {
	db *sqlx.DB
}

// NewPromotionRepository constructs a PromotionRepository.
func NewPromotionRepository(db *sqlx.DB) *PromotionRepository {
	return &PromotionRepository{db: db}
}

type batchMember struct {
	ID       string `db:"id"`
	Semester int    `db:"semester"`
}

// SetSemester moves the whole batch to semester (and year when given), clears
// every selection and detaches the batch from all rosters.
func (r *PromotionRepository) SetSemester(ctx context.Context, batch string, semester int, year *int) (result *models.PromotionResult, err error) {
	tx, err := r.begin(ctx, batch)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	members, err := lockBatch(ctx, tx, batch)
	if err != nil {
		return nil, err
	}
	result = &models.PromotionResult{Batch: batch}
	if len(members) == 0 {
		err = tx.Commit()
		return result, err
	}

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	courseIDs, err := detach(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	result.DetachedCount = len(courseIDs.all)

	now := time.Now().UTC()
	query := `UPDATE students SET semester = $2, selected_course_id = NULL, updated_at = $3 WHERE batch = $1`
	args := []interface{}{batch, semester, now}
	if year != nil {
		query = `UPDATE students SET semester = $2, year = $4, selected_course_id = NULL, updated_at = $3 WHERE batch = $1`
		args = append(args, *year)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("set batch semester: %w", err)
	}
	modified, _ := res.RowsAffected()
	result.ModifiedCount = int(modified)

	if result.Courses, err = selectCounts(ctx, tx, courseIDs.distinct()); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit set batch semester: %w", err)
	}
	return result, nil
}

// PromoteNext advances each batch member by one semester. Students past the
// final semester are counted as graduated and left untouched.
func (r *PromotionRepository) PromoteNext(ctx context.Context, batch string) (result *models.PromotionResult, err error) {
	tx, err := r.begin(ctx, batch)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	members, err := lockBatch(ctx, tx, batch)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		err = ErrBatchNotFound
		return nil, err
	}

	result = &models.PromotionResult{Batch: batch}
	now := time.Now().UTC()
	var promoted []string
	for _, m := range members {
		next, year, graduated := models.NextPosition(m.Semester)
		if graduated {
			result.GraduatedCount++
			continue
		}
		const query = `UPDATE students SET semester = $2, year = $3, selected_course_id = NULL, updated_at = $4 WHERE id = $1`
		if _, err = tx.ExecContext(ctx, query, m.ID, next, year, now); err != nil {
			return nil, fmt.Errorf("promote student: %w", err)
		}
		promoted = append(promoted, m.ID)
	}
	result.PromotedCount = len(promoted)
	result.ModifiedCount = len(promoted)

	courseIDs, err := detach(ctx, tx, promoted)
	if err != nil {
		return nil, err
	}
	result.DetachedCount = len(courseIDs.all)
	if result.Courses, err = selectCounts(ctx, tx, courseIDs.distinct()); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit promote batch: %w", err)
	}
	return result, nil
}

func (r *PromotionRepository) begin(ctx context.Context, batch string) (*sqlx.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch transition: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, batchLockKey(batch)); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("acquire batch lock: %w", err)
	}
	return tx, nil
}

func lockBatch(ctx context.Context, tx *sqlx.Tx, batch string) ([]batchMember, error) {
	var members []batchMember
	if err := tx.SelectContext(ctx, &members, `SELECT id, semester FROM students WHERE batch = $1 ORDER BY id FOR UPDATE`, batch); err != nil {
		return nil, fmt.Errorf("lock batch students: %w", err)
	}
	return members, nil
}

type detachedCourses struct {
	all []string
}

func (d detachedCourses) distinct() []string {
	seen := make(map[string]struct{}, len(d.all))
	out := make([]string, 0, len(d.all))
	for _, id := range d.all {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// detach removes the students from every course roster system-wide.
func detach(ctx context.Context, tx *sqlx.Tx, studentIDs []string) (detachedCourses, error) {
	if len(studentIDs) == 0 {
		return detachedCourses{}, nil
	}
	var courseIDs []string
	if err := tx.SelectContext(ctx, &courseIDs, `DELETE FROM course_enrollments WHERE student_id = ANY($1) RETURNING course_id`, pq.Array(studentIDs)); err != nil {
		return detachedCourses{}, fmt.Errorf("detach batch enrollments: %w", err)
	}
	return detachedCourses{all: courseIDs}, nil
}
