package memory

import (
	"context"
	"sort"

	"github.com/noah-isme/elective-api/internal/models"
)

// ReconcileStore implements the consistency sweep contract.
type ReconcileStore struct {
	s *Store
}

// FindDanglingEnrollments lists enrollments whose student points elsewhere.
func (v *ReconcileStore) FindDanglingEnrollments(_ context.Context) ([]models.EnrollmentRef, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var refs []models.EnrollmentRef
	for _, e := range v.s.enrollments {
		st, ok := v.s.students[e.studentID]
		if !ok {
			continue
		}
		if st.SelectedCourseID != nil && *st.SelectedCourseID == e.courseID {
			continue
		}
		courseID := e.courseID
		ref := models.EnrollmentRef{StudentID: st.ID, CourseID: &courseID, SelectedCourseID: st.SelectedCourseID, StudentSemester: st.Semester}
		if c, ok := v.s.courses[e.courseID]; ok {
			sem := c.Semester
			ref.CourseSemester = &sem
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// FindDanglingReferences lists selections with no matching enrollment.
func (v *ReconcileStore) FindDanglingReferences(_ context.Context) ([]models.EnrollmentRef, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var refs []models.EnrollmentRef
	for _, st := range v.s.students {
		if st.SelectedCourseID == nil {
			continue
		}
		if e, ok := v.s.enrollmentFor(st.ID); ok && e.courseID == *st.SelectedCourseID {
			continue
		}
		refs = append(refs, models.EnrollmentRef{StudentID: st.ID, SelectedCourseID: st.SelectedCourseID, StudentSemester: st.Semester})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].StudentID < refs[j].StudentID })
	return refs, nil
}

// FindOverCapacity lists courses holding more enrollments than seats.
func (v *ReconcileStore) FindOverCapacity(_ context.Context) ([]models.CourseCount, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var over []models.CourseCount
	for id, c := range v.s.courses {
		if n := v.s.countLocked(id); n > c.Capacity {
			over = append(over, models.CourseCount{CourseID: id, EnrolledCount: n, Capacity: c.Capacity})
		}
	}
	sort.Slice(over, func(i, j int) bool { return over[i].CourseID < over[j].CourseID })
	return over, nil
}

// AttachReference sets the selection when the student has none.
func (v *ReconcileStore) AttachReference(_ context.Context, studentID, courseID string) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	st, ok := v.s.students[studentID]
	if !ok || st.SelectedCourseID != nil {
		return false, nil
	}
	selected := courseID
	st.SelectedCourseID = &selected
	st.UpdatedAt = v.s.now()
	v.s.students[studentID] = st
	return true, nil
}

// RemoveEnrollment deletes one enrollment row.
func (v *ReconcileStore) RemoveEnrollment(_ context.Context, studentID, courseID string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.removeEnrollmentsLocked(func(e enrollment) bool { return e.studentID == studentID && e.courseID == courseID })
	return nil
}

// ClearReference clears a selection still pointing at courseID.
func (v *ReconcileStore) ClearReference(_ context.Context, studentID, courseID string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	st, ok := v.s.students[studentID]
	if !ok || st.SelectedCourseID == nil || *st.SelectedCourseID != courseID {
		return nil
	}
	st.SelectedCourseID = nil
	st.UpdatedAt = v.s.now()
	v.s.students[studentID] = st
	return nil
}
