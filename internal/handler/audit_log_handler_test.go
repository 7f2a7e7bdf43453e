package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/elective-api/internal/models"
)

type fakeAuditLogService struct {
	filter models.AuditFilter
}

func (f *fakeAuditLogService) List(_ context.Context, filter models.AuditFilter) ([]models.AuditLog, *models.Pagination, error) {
	f.filter = filter
	return []models.AuditLog{{Action: models.AuditActionLogin, Actor: "R1"}}, &models.Pagination{Page: 1, PageSize: 50, TotalCount: 1}, nil
}

func TestAuditLogHandlerList(t *testing.T) {
	svc := &fakeAuditLogService{}
	h := NewAuditLogHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/admin/logs?action=login&actor=R1", nil, adminClaims())
	h.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "login", svc.filter.Action)
	assert.Equal(t, "R1", svc.filter.Actor)
	assert.Equal(t, 50, svc.filter.PageSize)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, 1, env.Pagination.TotalCount)
}
