package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/browserkit/models"
)

// bind parses the JSON body into req and writes a 400 on failure.
func bind(c *gin.Context, req any, start time.Time) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondError(c, models.NewHelperError(models.ErrCodeInvalidInput, err.Error(), err), start)
		return false
	}
	return true
}

func respondOK(c *gin.Context, data any, start time.Time) {
	c.JSON(http.StatusOK, models.Response{
		Success: true,
		Data:    data,
		Timing:  models.TimingInfo{TotalMs: time.Since(start).Milliseconds()},
	})
}

// respondError maps a HelperError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error, start time.Time) {
	var helperErr *models.HelperError
	if !errors.As(err, &helperErr) {
		code := models.ErrCodeInternal
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			code = models.ErrCodeTimeout
		}
		helperErr = models.NewHelperError(code, err.Error(), err)
	}

	c.JSON(mapErrorToStatus(helperErr), models.Response{
		Success: false,
		Error:   helperErr.ToDetail(),
		Timing:  models.TimingInfo{TotalMs: time.Since(start).Milliseconds()},
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.HelperError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation, models.ErrCodeDriverFailure:
		return http.StatusBadGateway // 502
	case models.ErrCodeAmbiguousMatch:
		return http.StatusConflict // 409
	case models.ErrCodeMissingAttribute, models.ErrCodeSchemaMismatch:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeInvalidInput, models.ErrCodeInvalidSelector:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
