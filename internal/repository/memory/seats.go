package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/noah-isme/elective-api/internal/models"
	"github.com/noah-isme/elective-api/internal/repository"
)

// SeatStore implements the seat allocator contract.
type SeatStore struct {
	s *Store
}

// ClaimSeat checks and claims a seat under the store lock, holding the
// student's batch lock in shared mode. A batch change between the lookup and
// the lock restarts the claim under the new batch.
func (v *SeatStore) ClaimSeat(ctx context.Context, studentID, courseID string) (*models.SeatClaim, error) {
	for {
		v.s.mu.Lock()
		st, ok := v.s.students[studentID]
		v.s.mu.Unlock()
		if !ok {
			return nil, repository.ErrStudentNotFound
		}

		claim, err := v.claimInBatch(st.Batch, studentID, courseID)
		if !errors.Is(err, errBatchMoved) {
			return claim, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

var errBatchMoved = errors.New("student batch changed")

func (v *SeatStore) claimInBatch(batch, studentID, courseID string) (*models.SeatClaim, error) {
	batchLock := v.s.batches.get(batch)
	batchLock.RLock()
	defer batchLock.RUnlock()

	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	st, ok := v.s.students[studentID]
	if !ok {
		return nil, repository.ErrStudentNotFound
	}
	if st.Batch != batch {
		return nil, errBatchMoved
	}
	course, ok := v.s.courses[courseID]
	if !ok {
		return nil, repository.ErrCourseNotFound
	}
	if st.Semester != course.Semester {
		return nil, repository.ErrSemesterMismatch
	}
	if st.HasSelection() {
		return nil, repository.ErrAlreadySelected
	}
	if _, held := v.s.enrollmentFor(studentID); held {
		return nil, repository.ErrAlreadySelected
	}
	count := v.s.countLocked(courseID)
	if count >= course.Capacity {
		return nil, repository.ErrCourseFull
	}

	now := v.s.now()
	v.s.seq++
	v.s.enrollments = append(v.s.enrollments, enrollment{seq: v.s.seq, courseID: courseID, studentID: studentID, enrolledAt: now})
	count++
	course.EnrolledCount = count
	claim := &models.SeatClaim{Course: course, EnrolledCount: count}

	if count == course.Capacity {
		payload, err := json.Marshal(models.CourseFilledPayload{
			CourseID:     course.ID,
			CourseName:   course.Name,
			Teacher:      course.Teacher,
			TeacherEmail: course.TeacherEmail,
			Semester:     course.Semester,
			Capacity:     course.Capacity,
			FilledAt:     now,
			Roster:       v.s.rosterLocked(courseID),
		})
		if err != nil {
			v.s.enrollments = v.s.enrollments[:len(v.s.enrollments)-1]
			return nil, fmt.Errorf("marshal course filled payload: %w", err)
		}
		id := uuid.NewString()
		v.s.outbox[id] = models.OutboxMessage{
			ID:        id,
			Kind:      models.OutboxKindCourseFilled,
			CourseID:  course.ID,
			Payload:   payload,
			Status:    models.OutboxPending,
			CreatedAt: now,
		}
		claim.OutboxID = &id
	}

	selected := courseID
	st.SelectedCourseID = &selected
	st.UpdatedAt = now
	v.s.students[studentID] = st
	return claim, nil
}
