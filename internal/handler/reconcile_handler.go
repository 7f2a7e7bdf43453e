package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/elective-api/internal/dto"
	"github.com/noah-isme/elective-api/internal/middleware"
	"github.com/noah-isme/elective-api/internal/models"
	appErrors "github.com/noah-isme/elective-api/pkg/errors"
	"github.com/noah-isme/elective-api/pkg/response"
)

type reconcileService interface {
	Reconcile(ctx context.Context, dryRun bool) (*models.ReconcileReport, error)
}

// ReconcileHandler triggers enrollment drift detection and repair.
type ReconcileHandler struct {
	service reconcileService
}

// NewReconcileHandler constructs ReconcileHandler.
func NewReconcileHandler(svc reconcileService) *ReconcileHandler {
	return &ReconcileHandler{service: svc}
}

// Run godoc
// @Summary Reconcile enrollments
// @Description Compares enrollment rows with student selections. dry_run reports without repairing.
// @Tags Admin Maintenance
// @Accept json
// @Produce json
// @Param payload body dto.ReconcileRequest false "Options"
// @Param dry_run query bool false "Report only"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/reconcile [post]
func (h *ReconcileHandler) Run(c *gin.Context) {
	var req dto.ReconcileRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reconcile payload"))
			return
		}
	}
	dryRun := req.DryRun || parseQueryBool(c, "dry_run")

	report, err := h.service.Reconcile(c.Request.Context(), dryRun)
	if err != nil {
		response.Error(c, err)
		return
	}
	if dryRun {
		middleware.SetAuditDetail(c, "Reconcile dry run")
	} else {
		middleware.SetAuditDetail(c, "Reconcile restored %d references, removed %d enrollments, cleared %d references",
			report.ReferencesRestored, report.EnrollmentsRemoved, report.ReferencesCleared)
	}
	response.JSON(c, http.StatusOK, report, nil)
}
