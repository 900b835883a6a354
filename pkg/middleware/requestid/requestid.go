// Package requestid tags every request with a correlation id.
package requestid

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header is the HTTP header carrying the request id.
const Header = "X-Request-ID"

// ContextKey is the gin context key holding the request id.
const ContextKey = "request_id"

type contextKey struct{}

// RequestID creates middleware that assigns each request a unique id. An id
// supplied by the caller in X-Request-ID is preserved; otherwise a UUID is
// generated. The id is echoed in the response header and stored in both the
// gin context and the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(Header)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(ContextKey, id)
		c.Header(Header, id)
		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), contextKey{}, id),
		)

		c.Next()
	}
}

// FromContext extracts the request id from a request context. Returns the
// empty string when no id is set.
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}
