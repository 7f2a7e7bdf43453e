package memory

import (
	"context"

	"github.com/noah-isme/elective-api/internal/models"
	"github.com/noah-isme/elective-api/internal/repository"
)

// PromotionStore implements the batch transition contract.
type PromotionStore struct {
	s *Store
}

// SetSemester moves the batch and detaches it from every roster.
func (v *PromotionStore) SetSemester(_ context.Context, batch string, semester int, year *int) (*models.PromotionResult, error) {
	lock := v.s.batches.get(batch)
	lock.Lock()
	defer lock.Unlock()

	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	result := &models.PromotionResult{Batch: batch}
	members := map[string]struct{}{}
	now := v.s.now()
	for id, st := range v.s.students {
		if st.Batch != batch {
			continue
		}
		members[id] = struct{}{}
		st.Semester = semester
		if year != nil {
			st.Year = *year
		}
		st.SelectedCourseID = nil
		st.UpdatedAt = now
		v.s.students[id] = st
		result.ModifiedCount++
	}

	courses, removed := v.s.removeEnrollmentsLocked(func(e enrollment) bool {
		_, ok := members[e.studentID]
		return ok
	})
	result.DetachedCount = removed
	result.Courses = v.s.countsLocked(courses)
	return result, nil
}

// PromoteNext advances each non-graduating member by one semester.
func (v *PromotionStore) PromoteNext(_ context.Context, batch string) (*models.PromotionResult, error) {
	lock := v.s.batches.get(batch)
	lock.Lock()
	defer lock.Unlock()

	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	result := &models.PromotionResult{Batch: batch}
	promoted := map[string]struct{}{}
	found := false
	now := v.s.now()
	for id, st := range v.s.students {
		if st.Batch != batch {
			continue
		}
		found = true
		next, year, graduated := models.NextPosition(st.Semester)
		if graduated {
			result.GraduatedCount++
			continue
		}
		st.Semester = next
		st.Year = year
		st.SelectedCourseID = nil
		st.UpdatedAt = now
		v.s.students[id] = st
		promoted[id] = struct{}{}
	}
	if !found {
		return nil, repository.ErrBatchNotFound
	}
	result.PromotedCount = len(promoted)
	result.ModifiedCount = len(promoted)

	courses, removed := v.s.removeEnrollmentsLocked(func(e enrollment) bool {
		_, ok := promoted[e.studentID]
		return ok
	})
	result.DetachedCount = removed
	result.Courses = v.s.countsLocked(courses)
	return result, nil
}
