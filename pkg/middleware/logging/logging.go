// Package logging provides structured request logging middleware.
package logging

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/pulse/pkg/middleware/requestid"
	"github.com/nimburion/pulse/pkg/observability/logger"
)

// Config configures request logging.
type Config struct {
	// SkipPaths lists exact paths that are never logged, typically probe
	// endpoints polled by orchestrators.
	SkipPaths []string
}

// Logging creates middleware that logs one line per completed request. Server
// errors log at error level, client errors at warn, everything else at info.
// Streaming requests log when the stream ends, with the full stream duration.
func Logging(log logger.Logger) gin.HandlerFunc {
	return WithConfig(log, Config{})
}

// WithConfig creates request logging middleware with custom configuration.
func WithConfig(log logger.Logger, cfg Config) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skip[path] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		status := c.Writer.Status()
		args := []any{
			"request_id", requestid.FromContext(c.Request.Context()),
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", duration.Milliseconds(),
			"remote_addr", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			args = append(args, "error", c.Errors.String())
		}

		switch {
		case status >= 500:
			log.Error("request completed", args...)
		case status >= 400:
			log.Warn("request completed", args...)
		default:
			log.Info("request completed", args...)
		}
	}
}
