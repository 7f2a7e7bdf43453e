package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/elective-api/internal/middleware"
	appErrors "github.com/noah-isme/elective-api/pkg/errors"
	"github.com/noah-isme/elective-api/pkg/response"
)

type liveHub interface {
	Serve(conn *websocket.Conn, identity string)
}

// LiveHandler upgrades authenticated clients onto the course count feed.
type LiveHandler struct {
	hub      liveHub
	upgrader *websocket.Upgrader
	logger   *zap.Logger
}

// NewLiveHandler constructs LiveHandler.
func NewLiveHandler(hub liveHub, upgrader *websocket.Upgrader, logger *zap.Logger) *LiveHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveHandler{hub: hub, upgrader: upgrader, logger: logger}
}

// Courses godoc
// @Summary Live course counts
// @Description Websocket feed of enrolled counts. The token may be passed as a query parameter.
// @Tags Courses
// @Param token query string false "Access token"
// @Success 101
// @Router /ws/courses [get]
func (h *LiveHandler) Courses(c *gin.Context) {
	claims := middleware.CurrentUser(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the handshake error.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	h.hub.Serve(conn, string(claims.Role)+":"+claims.UserID)
}
