package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/internhub/internhub-api/internal/service"
)

// Metrics times every API request and feeds the HTTP counters. Probe and
// scrape endpoints are skipped so they do not drown out the API series.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	skip := map[string]struct{}{
		"/metrics": {},
		"/health":  {},
		"/ready":   {},
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			// Unrouted requests collapse into one label to keep cardinality down.
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
