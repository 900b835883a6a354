// Package recovery converts handler panics into 500 responses.
package recovery

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/pulse/pkg/middleware/requestid"
	"github.com/nimburion/pulse/pkg/observability/logger"
)

// Recovery creates middleware that recovers from panics in HTTP handlers,
// logs the panic with its stack trace, and answers 500. A response already
// in flight is aborted without writing a second body.
func Recovery(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				requestID := requestid.FromContext(c.Request.Context())
				log.Error("panic recovered",
					"request_id", requestID,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"panic", r,
					"stack", string(debug.Stack()),
				)

				if c.Writer.Written() {
					c.Abort()
					return
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":      "internal_server_error",
					"message":    "an unexpected error occurred",
					"request_id": requestID,
				})
			}
		}()

		c.Next()
	}
}
