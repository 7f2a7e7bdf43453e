package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/elective-api/internal/models"
	appErrors "github.com/noah-isme/elective-api/pkg/errors"
	"github.com/noah-isme/elective-api/pkg/realtime"
)

type reconcileRepository interface {
	FindDanglingEnrollments(ctx context.Context) ([]models.EnrollmentRef, error)
	FindDanglingReferences(ctx context.Context) ([]models.EnrollmentRef, error)
	FindOverCapacity(ctx context.Context) ([]models.CourseCount, error)
	AttachReference(ctx context.Context, studentID, courseID string) (bool, error)
	RemoveEnrollment(ctx context.Context, studentID, courseID string) error
	ClearReference(ctx context.Context, studentID, courseID string) error
}

// ReconcileService detects and repairs drift between course enrollments and
// student back-references.
type ReconcileService struct {
	repo      reconcileRepository
	counts    courseCounter
	publisher realtime.Publisher
	cache     *CacheService
	logger    *zap.Logger
}

// NewReconcileService constructs a ReconcileService.
func NewReconcileService(repo reconcileRepository, counts courseCounter, publisher realtime.Publisher, cache *CacheService, logger *zap.Logger) *ReconcileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileService{repo: repo, counts: counts, publisher: publisher, cache: cache, logger: logger}
}

// Reconcile reports inconsistencies and, unless dryRun, repairs them.
// Stale references are cleared first so a student holding an orphaned seat can
// be re-attached to it. Over-capacity courses are only reported.
func (s *ReconcileService) Reconcile(ctx context.Context, dryRun bool) (*models.ReconcileReport, error) {
	enrollments, err := s.repo.FindDanglingEnrollments(ctx)
	if err != nil {
		return nil, s.internal(err)
	}
	references, err := s.repo.FindDanglingReferences(ctx)
	if err != nil {
		return nil, s.internal(err)
	}
	over, err := s.repo.FindOverCapacity(ctx)
	if err != nil {
		return nil, s.internal(err)
	}

	report := &models.ReconcileReport{
		DryRun:              dryRun,
		DanglingEnrollments: nonNilRefs(enrollments),
		DanglingReferences:  nonNilRefs(references),
		OverCapacity:        over,
	}
	if report.OverCapacity == nil {
		report.OverCapacity = []models.CourseCount{}
	}
	for _, c := range over {
		s.logger.Error("course over capacity", zap.String("course_id", c.CourseID), zap.Int("enrolled", c.EnrolledCount), zap.Int("capacity", c.Capacity))
	}
	if dryRun {
		return report, nil
	}

	for _, ref := range references {
		if ref.SelectedCourseID == nil {
			continue
		}
		if err := s.repo.ClearReference(ctx, ref.StudentID, *ref.SelectedCourseID); err != nil {
			return nil, s.internal(err)
		}
		report.ReferencesCleared++
	}

	var shrunk []string
	for _, ref := range enrollments {
		if ref.CourseID == nil {
			continue
		}
		courseID := *ref.CourseID
		semesterMatches := ref.CourseSemester != nil && *ref.CourseSemester == ref.StudentSemester
		if semesterMatches && (ref.SelectedCourseID == nil || isCleared(ref.StudentID, references)) {
			attached, err := s.repo.AttachReference(ctx, ref.StudentID, courseID)
			if err != nil {
				return nil, s.internal(err)
			}
			if attached {
				report.ReferencesRestored++
				continue
			}
		}
		if err := s.repo.RemoveEnrollment(ctx, ref.StudentID, courseID); err != nil {
			return nil, s.internal(err)
		}
		report.EnrollmentsRemoved++
		shrunk = append(shrunk, courseID)
	}

	if report.ReferencesCleared+report.ReferencesRestored+report.EnrollmentsRemoved > 0 {
		s.logger.Info("reconciliation repaired enrollments",
			zap.Int("references_cleared", report.ReferencesCleared),
			zap.Int("references_restored", report.ReferencesRestored),
			zap.Int("enrollments_removed", report.EnrollmentsRemoved))
		_ = s.cache.Invalidate(ctx, courseCachePattern)
	}
	publishResets(ctx, s.counts, s.publisher, s.logger, uniqueStrings(shrunk))
	return report, nil
}

func (s *ReconcileService) internal(err error) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reconcile enrollments")
}

// isCleared reports whether studentID had a stale reference cleared in this run.
func isCleared(studentID string, references []models.EnrollmentRef) bool {
	for _, ref := range references {
		if ref.StudentID == studentID {
			return true
		}
	}
	return false
}

func nonNilRefs(refs []models.EnrollmentRef) []models.EnrollmentRef {
	if refs == nil {
		return []models.EnrollmentRef{}
	}
	return refs
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
