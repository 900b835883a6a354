// Package requestsize caps inbound request body sizes.
package requestsize

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequestSize enforces a maximum request body size in bytes.
// A non-positive maxBytes disables the middleware.
func RequestSize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 {
			c.Next()
			return
		}

		if c.Request == nil || c.Request.Body == nil {
			c.Next()
			return
		}

		// Fail fast when Content-Length is declared and exceeds the limit.
		if c.Request.ContentLength > maxBytes {
			payloadTooLarge(c, maxBytes)
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func payloadTooLarge(c *gin.Context, maxBytes int64) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
		"error":    "request_too_large",
		"message":  fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", maxBytes),
		"max_size": maxBytes,
	})
}
