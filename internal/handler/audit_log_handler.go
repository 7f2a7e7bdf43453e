package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/elective-api/internal/models"
	"github.com/noah-isme/elective-api/pkg/response"
)

type auditLogService interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, *models.Pagination, error)
}

// AuditLogHandler lists the audit trail.
type AuditLogHandler struct {
	service auditLogService
}

// NewAuditLogHandler constructs AuditLogHandler.
func NewAuditLogHandler(svc auditLogService) *AuditLogHandler {
	return &AuditLogHandler{service: svc}
}

// List godoc
// @Summary List audit logs
// @Tags Admin Maintenance
// @Produce json
// @Param action query string false "Action"
// @Param actor query string false "Actor"
// @Param search query string false "Search details"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/logs [get]
func (h *AuditLogHandler) List(c *gin.Context) {
	filter := models.AuditFilter{
		Action:   strings.TrimSpace(c.Query("action")),
		Actor:    strings.TrimSpace(c.Query("actor")),
		Search:   strings.TrimSpace(c.Query("search")),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "limit", 50),
	}
	logs, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}
