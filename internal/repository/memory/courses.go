package memory

import (
	"context"
	"database/sql"
	"sort"

	"github.com/google/uuid"

	"github.com/noah-isme/elective-api/internal/models"
	"github.com/noah-isme/elective-api/internal/repository"
)

// CourseStore implements the course repository contract.
type CourseStore struct {
	s *Store
}

// List filters, sorts and pages courses with live counts.
func (v *CourseStore) List(_ context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	var matched []models.Course
	for _, c := range v.s.courses {
		if filter.Semester != nil && c.Semester != *filter.Semester {
			continue
		}
		if filter.Department != "" && c.Department != filter.Department {
			continue
		}
		if filter.Search != "" && !containsFold(c.Name, filter.Search) && !containsFold(c.Teacher, filter.Search) {
			continue
		}
		matched = append(matched, v.s.withCount(c))
	}

	desc := filter.SortOrder != "" && descending(filter.SortOrder)
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if desc {
			a, b = b, a
		}
		var less bool
		switch filter.SortBy {
		case "semester":
			less = a.Semester < b.Semester
		case "capacity":
			less = a.Capacity < b.Capacity
		case "created_at":
			less = a.CreatedAt.Before(b.CreatedAt)
		default:
			less = a.Name < b.Name
		}
		return less
	})
	return paginate(matched, filter.Page, filter.PageSize), len(matched), nil
}

// FindByID returns sql.ErrNoRows for unknown ids.
func (v *CourseStore) FindByID(_ context.Context, id string) (*models.Course, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c = v.s.withCount(c)
	return &c, nil
}

// Create inserts a course.
func (v *CourseStore) Create(_ context.Context, course *models.Course) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := v.s.now()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	course.EnrolledCount = 0
	v.s.courses[course.ID] = *course
	return nil
}

// Update applies the same capacity and semester guards as the SQL store.
func (v *CourseStore) Update(_ context.Context, course *models.Course) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	current, ok := v.s.courses[course.ID]
	if !ok {
		return sql.ErrNoRows
	}
	enrolled := v.s.countLocked(course.ID)
	if course.Capacity < enrolled {
		return repository.ErrCapacityBelowEnrolled
	}
	if course.Semester != current.Semester && enrolled > 0 {
		return repository.ErrCourseHasEnrollments
	}
	course.UpdatedAt = v.s.now()
	course.EnrolledCount = enrolled
	v.s.courses[course.ID] = *course
	return nil
}

// Delete removes a course with its enrollments and back-references.
func (v *CourseStore) Delete(_ context.Context, id string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.courses[id]; !ok {
		return sql.ErrNoRows
	}
	v.s.removeEnrollmentsLocked(func(e enrollment) bool { return e.courseID == id })
	for sid, st := range v.s.students {
		if st.SelectedCourseID != nil && *st.SelectedCourseID == id {
			st.SelectedCourseID = nil
			st.UpdatedAt = v.s.now()
			v.s.students[sid] = st
		}
	}
	delete(v.s.courses, id)
	return nil
}

// Roster lists enrolled students in enrollment order.
func (v *CourseStore) Roster(_ context.Context, courseID string) ([]models.RosterEntry, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.rosterLocked(courseID), nil
}

// Counts returns current enrollment for the given courses.
func (v *CourseStore) Counts(_ context.Context, ids []string) ([]models.CourseCount, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.countsLocked(ids), nil
}
