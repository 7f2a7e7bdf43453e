package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/elective-api/internal/middleware"
	"github.com/noah-isme/elective-api/pkg/realtime"
)

func TestLiveHandlerStreamsCourseUpdates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := realtime.NewHub(nil)
	go hub.Run(ctx)

	h := NewLiveHandler(hub, realtime.NewUpgrader(nil), nil)
	router := gin.New()
	router.GET("/ws/courses", func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, studentClaims())
		c.Next()
	}, h.Courses)

	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/courses"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Publish(ctx, realtime.CourseUpdate{CourseID: "c1", EnrolledCount: 4, Capacity: 20}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame realtime.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, realtime.EventCourseUpdate, frame.Event)
	assert.Equal(t, "c1", frame.Data.CourseID)
	assert.Equal(t, 4, frame.Data.EnrolledCount)
}

func TestLiveHandlerRequiresClaims(t *testing.T) {
	h := NewLiveHandler(realtime.NewHub(nil), realtime.NewUpgrader(nil), nil)
	c, rec := newTestContext(http.MethodGet, "/ws/courses", nil, nil)
	h.Courses(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
