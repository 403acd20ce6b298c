package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"boigordo/internal/core/apperror"
	appctx "boigordo/internal/core/context"
	"boigordo/pkg/logger"
)

// problemContentType is the RFC 7807 media type of error responses.
const problemContentType = "application/problem+json"

// retryAfterSeconds is advertised on conflicts that clear once the competing
// recompute or generation finishes.
const retryAfterSeconds = "1"

// ErrorHandler middleware turns the last handler error into a problem response.
// Internal causes are logged, never returned.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		ctx := c.Request.Context()

		appErr, ok := apperror.AsAppError(err)
		if !ok {
			logger.Error(ctx, "unhandled error", "error", err)
			appErr = apperror.NewInternal(err)
		} else if appErr.Err != nil {
			logger.Warn(ctx, "request error", "code", appErr.Code, "cause", appErr.Err)
		}

		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		body := gin.H{
			"type":     "about:blank",
			"title":    http.StatusText(status),
			"status":   status,
			"code":     appErr.Code,
			"message":  appErr.Message,
			"details":  appErr.Details,
			"traceId":  appctx.GetTraceID(c.Request.Context()),
			"instance": c.Request.URL.Path,
		}
		if appErr.Code == apperror.CodeInternal {
			body["details"] = nil
		}
		if appErr.IsTransient() {
			body["retryable"] = true
			c.Header("Retry-After", retryAfterSeconds)
		}

		failIdempotency(c, status, problemContentType, body)
		c.Header("Content-Type", problemContentType)
		c.JSON(status, body)
	}
}
