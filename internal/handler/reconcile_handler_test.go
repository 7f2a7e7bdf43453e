package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/elective-api/internal/models"
)

type fakeReconcileService struct {
	dryRun bool
	calls  int
}

func (f *fakeReconcileService) Reconcile(_ context.Context, dryRun bool) (*models.ReconcileReport, error) {
	f.calls++
	f.dryRun = dryRun
	return &models.ReconcileReport{DryRun: dryRun}, nil
}

func TestReconcileHandlerDryRunFromBody(t *testing.T) {
	svc := &fakeReconcileService{}
	h := NewReconcileHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/admin/reconcile", jsonBody(t, map[string]bool{"dry_run": true}), adminClaims())
	h.Run(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.dryRun)
}

func TestReconcileHandlerDryRunFromQuery(t *testing.T) {
	svc := &fakeReconcileService{}
	h := NewReconcileHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/admin/reconcile?dry_run=true", nil, adminClaims())
	h.Run(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.dryRun)
}

func TestReconcileHandlerEmptyBodyRepairs(t *testing.T) {
	svc := &fakeReconcileService{}
	h := NewReconcileHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/admin/reconcile", nil, adminClaims())
	h.Run(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.calls)
	assert.False(t, svc.dryRun)
}
