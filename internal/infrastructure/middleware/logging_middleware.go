package middleware

import (
	"time"

	"spacegate/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLoggerMiddleware writes one access log line per request with the
// request and user ids picked up from the request context.
func RequestLoggerMiddleware(cl *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		duration := time.Since(start).Milliseconds()

		if c.Writer.Status() >= 500 {
			cl.LogWarn(c.Request.Context(), "http_request_failed",
				zap.String("method", c.Request.Method),
				zap.String("path", path),
				zap.Int("status_code", c.Writer.Status()),
				zap.Int64("duration_ms", duration),
			)
			return
		}
		cl.LogRequest(c.Request.Context(), c.Request.Method, path, c.Writer.Status(), duration)
	}
}
