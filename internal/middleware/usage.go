// usage.go records one usage_logs row per request, including requests rejected by the gate.
package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/assessment-platform/assessment-api/internal/telemetry"
)

// UsageRecorder persists usage rows.
type UsageRecorder interface {
	Insert(ctx context.Context, entry *models.UsageLog) error
}

// usageWriteTimeout bounds the synchronous insert after the handler has run.
const usageWriteTimeout = 2 * time.Second

// UsageLogger writes the usage row before the request is finished. The write runs on a
// detached context so a client disconnect does not lose the row; failures are logged
// and counted but never change the response.
func UsageLogger(recorder UsageRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "<no-route>"
		}
		entry := &models.UsageLog{
			RequestID:  c.GetString(RequestIDKey),
			Method:     c.Request.Method,
			Endpoint:   endpoint,
			StatusCode: c.Writer.Status(),
			LatencyMs:  time.Since(start).Milliseconds(),
			ClientIP:   c.ClientIP(),
		}
		if id := OrganizationID(c); id != "" {
			entry.OrganizationID = &id
		}
		if id := APIKeyID(c); id != "" {
			entry.APIKeyID = &id
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), usageWriteTimeout)
		defer cancel()
		if err := recorder.Insert(ctx, entry); err != nil {
			telemetry.UsageLogFailuresTotal.Inc()
			slog.WarnContext(ctx, "failed to write usage log",
				"request_id", entry.RequestID, "endpoint", entry.Endpoint, "error", err)
		}
	}
}
