// Package metrics provides HTTP metrics middleware.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/pulse/pkg/observability/metrics"
)

// Metrics creates middleware that records Prometheus metrics for HTTP
// requests: a duration histogram and a request counter by method, route, and
// status, plus an in-flight gauge. The route template is used as the path
// label so parameterized routes stay low-cardinality.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.IncrementInFlight()
		defer metrics.DecrementInFlight()

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		metrics.RecordHTTPMetrics(c.Request.Method, path, c.Writer.Status(), duration)
	}
}
