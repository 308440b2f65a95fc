package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"tpvcore/internal/core/apperror"
	"tpvcore/pkg/logger"
)

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		writeError(c)
	}
}

// writeError renders the last gin error unless a response was already written.
func writeError(c *gin.Context) {
	if len(c.Errors) == 0 || c.Writer.Written() {
		return
	}
	err := c.Errors.Last().Err

	status := http.StatusInternalServerError
	body := gin.H{
		"code":    apperror.CodeInternal,
		"message": "Internal server error",
		"details": map[string]any{"request_id": c.GetString("request_id")},
	}

	if appErr, ok := apperror.AsAppError(err); ok && appErr.Code != apperror.CodeInternal {
		if appErr.Err != nil {
			logger.Warn(c.Request.Context(), "request error",
				"code", appErr.Code,
				"cause", appErr.Err,
			)
		}
		status = appErr.HTTPStatus
		body = gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
			"details": appErr.Details,
		}
	} else {
		logger.Error(c.Request.Context(), "unhandled error", "error", err)
	}

	payload, mErr := json.Marshal(body)
	if mErr != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	// The replay of a failed idempotent request is the same error response
	CompleteIdempotency(c, status, payload)
	c.Data(status, "application/json; charset=utf-8", payload)
}
