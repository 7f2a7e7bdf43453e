package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/elective-api/internal/models"
	"github.com/noah-isme/elective-api/internal/repository"
	appErrors "github.com/noah-isme/elective-api/pkg/errors"
	"github.com/noah-isme/elective-api/pkg/realtime"
)

type seatClaimer interface {
	ClaimSeat(ctx context.Context, studentID, courseID string) (*models.SeatClaim, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type fillNotifier interface {
	Enqueue(outboxID string)
}

// SeatService allocates course seats to students.
type SeatService struct {
	seats     seatClaimer
	students  studentLookup
	courses   courseReader
	audit     auditWriter
	publisher realtime.Publisher
	notifier  fillNotifier
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewSeatService constructs a SeatService.
func NewSeatService(seats seatClaimer, students studentLookup, courses courseReader, audit auditWriter, publisher realtime.Publisher, notifier fillNotifier, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *SeatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeatService{
		seats:     seats,
		students:  students,
		courses:   courses,
		audit:     audit,
		publisher: publisher,
		notifier:  notifier,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
	}
}

// Select claims a seat in courseID for studentID. The checks run in a fixed
// order: course exists, semesters match, no prior selection, seat available.
// The claim itself is re-validated atomically by the store.
func (s *SeatService) Select(ctx context.Context, studentID, courseID, origin string) (*models.SelectionResult, error) {
	student, err := s.precheck(ctx, studentID, courseID)
	if err != nil {
		s.metrics.RecordSeatClaim(claimResult(err))
		return nil, err
	}

	start := time.Now()
	claim, err := s.seats.ClaimSeat(ctx, studentID, courseID)
	s.metrics.ObserveDBQuery("claim_seat", time.Since(start))
	if err != nil {
		appErr := translateClaimError(err)
		s.metrics.RecordSeatClaim(claimResult(appErr))
		if appErrors.IsCode(appErr, appErrors.ErrInternal.Code) {
			s.logger.Error("seat claim failed", zap.String("student_id", studentID), zap.String("course_id", courseID), zap.Error(err))
		}
		return nil, appErr
	}
	s.metrics.RecordSeatClaim(ClaimResultSuccess)

	s.afterClaim(ctx, student, claim, origin)

	return &models.SelectionResult{
		CourseID:      claim.Course.ID,
		CourseName:    claim.Course.Name,
		EnrolledCount: claim.EnrolledCount,
		Capacity:      claim.Course.Capacity,
		Remaining:     claim.Course.Capacity - claim.EnrolledCount,
	}, nil
}

func (s *SeatService) precheck(ctx context.Context, studentID, courseID string) (*models.StudentDetail, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrCourseNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrStudentNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Semester != course.Semester {
		return nil, appErrors.ErrSemesterMismatch
	}
	if student.HasSelection() {
		return nil, appErrors.ErrAlreadySelected
	}
	if course.IsFull() {
		return nil, appErrors.ErrCourseFull
	}
	return student, nil
}

func (s *SeatService) afterClaim(ctx context.Context, student *models.StudentDetail, claim *models.SeatClaim, origin string) {
	if s.audit != nil {
		entry := &models.AuditLog{
			Action:    models.AuditActionCourseSelect,
			Actor:     student.RollNumber,
			Details:   fmt.Sprintf("Selected course: %s", claim.Course.Name),
			IPAddress: origin,
		}
		if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
			s.logger.Warn("failed to record selection audit log", zap.String("student_id", student.ID), zap.Error(err))
		}
	}

	_ = s.cache.Invalidate(ctx, courseCachePattern)

	if s.publisher != nil {
		update := realtime.CourseUpdate{
			CourseID:      claim.Course.ID,
			EnrolledCount: claim.EnrolledCount,
			Capacity:      claim.Course.Capacity,
		}
		if err := s.publisher.Publish(ctx, update); err != nil {
			s.logger.Warn("failed to publish course update", zap.String("course_id", claim.Course.ID), zap.Error(err))
		}
	}

	if claim.Filled() && s.notifier != nil {
		s.logger.Info("course filled", zap.String("course_id", claim.Course.ID), zap.Int("capacity", claim.Course.Capacity))
		s.notifier.Enqueue(*claim.OutboxID)
	}
}

func translateClaimError(err error) error {
	switch {
	case errors.Is(err, repository.ErrCourseFull):
		return appErrors.ErrCourseFull
	case errors.Is(err, repository.ErrAlreadySelected):
		return appErrors.ErrAlreadySelected
	case errors.Is(err, repository.ErrSemesterMismatch):
		return appErrors.ErrSemesterMismatch
	case errors.Is(err, repository.ErrCourseNotFound):
		return appErrors.ErrCourseNotFound
	case errors.Is(err, repository.ErrStudentNotFound):
		return appErrors.ErrStudentNotFound
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to select course")
}

func claimResult(err error) string {
	switch {
	case errors.Is(err, appErrors.ErrCourseFull):
		return ClaimResultFull
	case errors.Is(err, appErrors.ErrAlreadySelected):
		return ClaimResultAlreadySelected
	case errors.Is(err, appErrors.ErrSemesterMismatch):
		return ClaimResultSemesterMismatch
	case errors.Is(err, appErrors.ErrCourseNotFound), errors.Is(err, appErrors.ErrStudentNotFound):
		return ClaimResultNotFound
	}
	return ClaimResultError
}
