package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/elective-api/internal/models"
	"github.com/noah-isme/elective-api/internal/repository"
	appErrors "github.com/noah-isme/elective-api/pkg/errors"
	"github.com/noah-isme/elective-api/pkg/realtime"
)

// Promotion operations reported to metrics.
const (
	PromotionSetSemester = "set_semester"
	PromotionPromoteNext = "promote_next"
)

type promotionRepository interface {
	SetSemester(ctx context.Context, batch string, semester int, year *int) (*models.PromotionResult, error)
	PromoteNext(ctx context.Context, batch string) (*models.PromotionResult, error)
}

// PromotionService moves whole batches between semesters.
type PromotionService struct {
	repo      promotionRepository
	publisher realtime.Publisher
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPromotionService constructs a PromotionService.
func NewPromotionService(repo promotionRepository, publisher realtime.Publisher, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *PromotionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromotionService{repo: repo, publisher: publisher, cache: cache, metrics: metrics, validator: validate, logger: logger}
}

// SetSemester moves every student in the batch to the requested semester,
// clearing selections and releasing their seats.
func (s *PromotionService) SetSemester(ctx context.Context, req models.SetSemesterRequest) (*models.PromotionResult, error) {
	req.Batch = strings.TrimSpace(req.Batch)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "semester must be between 1 and 4 and year between 1 and 2")
	}
	result, err := s.repo.SetSemester(ctx, req.Batch, req.Semester, req.Year)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update batch semester")
	}
	s.finish(ctx, PromotionSetSemester, result)
	return result, nil
}

// PromoteNext advances the batch by one semester. Students already in the
// final semester are reported as graduated and left unchanged.
func (s *PromotionService) PromoteNext(ctx context.Context, req models.PromoteBatchRequest) (*models.PromotionResult, error) {
	req.Batch = strings.TrimSpace(req.Batch)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "batch is required")
	}
	result, err := s.repo.PromoteNext(ctx, req.Batch)
	if err != nil {
		if errors.Is(err, repository.ErrBatchNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no students found in this batch")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to promote batch")
	}
	s.finish(ctx, PromotionPromoteNext, result)
	return result, nil
}

func (s *PromotionService) finish(ctx context.Context, operation string, result *models.PromotionResult) {
	s.metrics.RecordPromotion(operation)
	s.logger.Info("batch transition applied",
		zap.String("operation", operation),
		zap.String("batch", result.Batch),
		zap.Int("modified", result.ModifiedCount),
		zap.Int("promoted", result.PromotedCount),
		zap.Int("graduated", result.GraduatedCount),
		zap.Int("detached", result.DetachedCount))
	if len(result.Courses) == 0 {
		return
	}
	_ = s.cache.Invalidate(ctx, courseCachePattern)
	publishCounts(ctx, s.publisher, s.logger, result.Courses)
}
