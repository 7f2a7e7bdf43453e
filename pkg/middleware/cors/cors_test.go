package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestOriginsAllows(t *testing.T) {
	origins := NewOrigins([]string{"https://portal.example.edu/"})
	assert.True(t, origins.Allows("https://portal.example.edu"))
	assert.False(t, origins.Allows("https://evil.example.com"))
	assert.True(t, NewOrigins(nil).Allows("https://anything.test"))
}

func TestPreflightShortCircuits(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New([]string{"https://portal.example.edu"}))
	r.OPTIONS("/courses", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	req := httptest.NewRequest(http.MethodOptions, "/courses", nil)
	req.Header.Set("Origin", "https://portal.example.edu")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://portal.example.edu", w.Header().Get("Access-Control-Allow-Origin"))
}
