package middleware

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/elective-api/internal/models"
)

// AuditDetailKey lets handlers describe the change recorded by Audit.
const AuditDetailKey = "auditDetail"

type auditWriter interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// SetAuditDetail stores a human readable description for the audit entry.
func SetAuditDetail(c *gin.Context, format string, args ...interface{}) {
	c.Set(AuditDetailKey, fmt.Sprintf(format, args...))
}

// Audit records an entry for requests that completed successfully.
// Failures to write the entry are logged and never affect the response.
func Audit(writer auditWriter, logger *zap.Logger, action string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		c.Next()

		if writer == nil || c.Writer.Status() >= 400 {
			return
		}

		actor := "anonymous"
		if claims := CurrentUser(c); claims != nil {
			actor = claims.Name
		}
		details := c.GetString(AuditDetailKey)
		if details == "" {
			details = fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path)
		}

		entry := &models.AuditLog{
			Action:    action,
			Actor:     actor,
			Details:   details,
			IPAddress: c.ClientIP(),
		}
		if err := writer.CreateAuditLog(c.Request.Context(), entry); err != nil {
			logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
		}
	}
}
