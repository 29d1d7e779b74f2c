package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	apperrors "github.com/jwalitptl/cds-engine/pkg/errors"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorHandler logs errors attached with c.Error and, when the handler wrote nothing,
// renders the last one. AppErrors choose their own status; bind errors are 400.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		traceID := c.GetString(ContextRequestID)
		logger := zerolog.Ctx(c.Request.Context())
		for _, e := range c.Errors {
			logger.Error().
				Err(e.Err).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Interface("meta", e.Meta).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		status := http.StatusInternalServerError
		message := "internal server error"

		var appErr *apperrors.AppError
		switch {
		case errors.As(lastErr.Err, &appErr):
			status = appErr.StatusCode()
			if status != http.StatusInternalServerError {
				message = appErr.Error()
			}
		case lastErr.IsType(gin.ErrorTypeBind):
			status = http.StatusBadRequest
			message = lastErr.Error()
		}

		c.AbortWithStatusJSON(status, ErrorResponse{
			Status:  "error",
			Code:    status,
			Message: message,
			TraceID: traceID,
		})
	}
}
