package memory

import (
	"context"
	"database/sql"
	"sort"

	"github.com/google/uuid"

	"github.com/noah-isme/elective-api/internal/models"
	"github.com/noah-isme/elective-api/internal/repository"
)

// StudentStore implements the student repository contract.
type StudentStore struct {
	s *Store
}

func (v *StudentStore) detail(st models.Student) models.StudentDetail {
	d := models.StudentDetail{Student: st}
	if st.SelectedCourseID != nil {
		if c, ok := v.s.courses[*st.SelectedCourseID]; ok {
			name := c.Name
			d.SelectedCourseName = &name
		}
	}
	return d
}

// List filters, sorts and pages students.
func (v *StudentStore) List(_ context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	var matched []models.StudentDetail
	for _, st := range v.s.students {
		if filter.Year != nil && st.Year != *filter.Year {
			continue
		}
		if filter.Semester != nil && st.Semester != *filter.Semester {
			continue
		}
		if filter.Batch != "" && st.Batch != filter.Batch {
			continue
		}
		if filter.Search != "" && !containsFold(st.Name, filter.Search) && !containsFold(st.RollNumber, filter.Search) {
			continue
		}
		matched = append(matched, v.detail(st))
	}

	desc := descending(filter.SortOrder)
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if desc {
			a, b = b, a
		}
		var less bool
		switch filter.SortBy {
		case "name":
			less = a.Name < b.Name
		case "roll_number":
			less = a.RollNumber < b.RollNumber
		case "semester":
			less = a.Semester < b.Semester
		default:
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		return less
	})
	return paginate(matched, filter.Page, filter.PageSize), len(matched), nil
}

// FindByID returns sql.ErrNoRows for unknown ids.
func (v *StudentStore) FindByID(_ context.Context, id string) (*models.StudentDetail, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	st, ok := v.s.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	d := v.detail(st)
	return &d, nil
}

// FindByRollNumber returns sql.ErrNoRows for unknown roll numbers.
func (v *StudentStore) FindByRollNumber(_ context.Context, roll string) (*models.Student, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, st := range v.s.students {
		if st.RollNumber == roll {
			found := st
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

// ExistsByRollNumber reports whether another student holds roll.
func (v *StudentStore) ExistsByRollNumber(_ context.Context, roll string, excludeID string) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.rollTakenLocked(roll, excludeID), nil
}

func (v *StudentStore) rollTakenLocked(roll, excludeID string) bool {
	for _, st := range v.s.students {
		if st.RollNumber == roll && st.ID != excludeID {
			return true
		}
	}
	return false
}

// Create inserts a student.
func (v *StudentStore) Create(_ context.Context, student *models.Student) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.rollTakenLocked(student.RollNumber, "") {
		return repository.ErrDuplicateRollNumber
	}
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := v.s.now()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	v.s.students[student.ID] = *student
	return nil
}

// Update replaces the profile fields of a student. The selection is kept as
// stored unless releaseSeat is set, which clears it and removes the enrollment.
func (v *StudentStore) Update(_ context.Context, student *models.Student, releaseSeat bool) (*string, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	current, ok := v.s.students[student.ID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if v.rollTakenLocked(student.RollNumber, student.ID) {
		return nil, repository.ErrDuplicateRollNumber
	}

	var detached *string
	student.SelectedCourseID = current.SelectedCourseID
	if releaseSeat {
		id := student.ID
		courses, _ := v.s.removeEnrollmentsLocked(func(e enrollment) bool { return e.studentID == id })
		if len(courses) > 0 {
			detached = &courses[0]
		}
		student.SelectedCourseID = nil
	}
	student.UpdatedAt = v.s.now()
	v.s.students[student.ID] = *student
	return detached, nil
}

// Delete removes the student and its enrollment.
func (v *StudentStore) Delete(_ context.Context, id string) (*string, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.students[id]; !ok {
		return nil, sql.ErrNoRows
	}
	courses, _ := v.s.removeEnrollmentsLocked(func(e enrollment) bool { return e.studentID == id })
	delete(v.s.students, id)
	if len(courses) == 0 {
		return nil, nil
	}
	return &courses[0], nil
}

// ListBatches returns distinct non-empty batch tags.
func (v *StudentStore) ListBatches(_ context.Context) ([]string, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	seen := map[string]struct{}{}
	batches := []string{}
	for _, st := range v.s.students {
		if st.Batch == "" {
			continue
		}
		if _, ok := seen[st.Batch]; ok {
			continue
		}
		seen[st.Batch] = struct{}{}
		batches = append(batches, st.Batch)
	}
	sort.Strings(batches)
	return batches, nil
}
