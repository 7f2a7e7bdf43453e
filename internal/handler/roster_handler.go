package handler

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/elective-api/pkg/errors"
	"github.com/noah-isme/elective-api/pkg/response"
)

type downloadResolver interface {
	ResolveDownload(token string) (string, string, error)
}

// RosterHandler serves archived rosters behind signed links.
type RosterHandler struct {
	resolver downloadResolver
}

// NewRosterHandler constructs RosterHandler.
func NewRosterHandler(resolver downloadResolver) *RosterHandler {
	return &RosterHandler{resolver: resolver}
}

// Download godoc
// @Summary Download archived roster
// @Description Signed link sent with course-filled notifications
// @Tags Rosters
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /rosters/download [get]
func (h *RosterHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	path, name, err := h.resolver.ResolveDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.FileAttachment(path, name)
}
