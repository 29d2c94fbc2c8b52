package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/browserkit/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// degradedQueue is the queue length above which health reports degraded.
const degradedQueue = 8

// Health returns a handler for GET /api/v1/health.
//
// Reports degraded when more than degradedQueue requests wait for the session.
func Health(sess *Session, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		if sess.Queued() > degradedQueue {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Driver:  sess.DriverName(),
			Version: Version,
		})
	}
}
