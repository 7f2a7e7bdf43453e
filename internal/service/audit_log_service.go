package service

import (
	"context"
	"strings"

	"github.com/noah-isme/elective-api/internal/models"
	appErrors "github.com/noah-isme/elective-api/pkg/errors"
)

type auditLogRepository interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
}

// AuditLogService exposes the audit trail to administrators.
type AuditLogService struct {
	repo auditLogRepository
}

// NewAuditLogService constructs an AuditLogService.
func NewAuditLogService(repo auditLogRepository) *AuditLogService {
	return &AuditLogService{repo: repo}
}

// List returns audit entries, newest first.
func (s *AuditLogService) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, *models.Pagination, error) {
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	filter.Action = strings.TrimSpace(filter.Action)
	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}
	return logs, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}
