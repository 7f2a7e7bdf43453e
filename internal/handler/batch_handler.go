package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/elective-api/internal/middleware"
	"github.com/noah-isme/elective-api/internal/models"
	appErrors "github.com/noah-isme/elective-api/pkg/errors"
	"github.com/noah-isme/elective-api/pkg/response"
)

type promotionService interface {
	SetSemester(ctx context.Context, req models.SetSemesterRequest) (*models.PromotionResult, error)
	PromoteNext(ctx context.Context, req models.PromoteBatchRequest) (*models.PromotionResult, error)
}

// BatchHandler exposes whole-batch semester transitions.
type BatchHandler struct {
	service promotionService
}

// NewBatchHandler constructs BatchHandler.
func NewBatchHandler(svc promotionService) *BatchHandler {
	return &BatchHandler{service: svc}
}

// SetSemester godoc
// @Summary Set batch semester
// @Description Moves every student of the batch to the semester and releases their seats
// @Tags Admin Batches
// @Accept json
// @Produce json
// @Param payload body models.SetSemesterRequest true "Batch payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/batch-semester [put]
func (h *BatchHandler) SetSemester(c *gin.Context) {
	var req models.SetSemesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid batch payload"))
		return
	}
	result, err := h.service.SetSemester(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditDetail(c, "Set batch %s to semester %d (%d students)", result.Batch, req.Semester, result.ModifiedCount)
	response.JSON(c, http.StatusOK, result, nil)
}

// Promote godoc
// @Summary Promote batch
// @Description Advances every student of the batch by one semester. Final-semester students graduate in place.
// @Tags Admin Batches
// @Accept json
// @Produce json
// @Param payload body models.PromoteBatchRequest true "Batch payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/batch-promote [put]
func (h *BatchHandler) Promote(c *gin.Context) {
	var req models.PromoteBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid batch payload"))
		return
	}
	result, err := h.service.PromoteNext(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditDetail(c, "Promoted batch %s: %d promoted, %d graduated", result.Batch, result.PromotedCount, result.GraduatedCount)
	response.JSON(c, http.StatusOK, result, nil)
}
