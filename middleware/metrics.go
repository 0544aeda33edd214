package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// MetricRecorder is the subset of aws_pkg.MetricsClient the middleware uses.
type MetricRecorder interface {
	IsEnabled() bool
	RecordRequest(ctx context.Context, status int, latency time.Duration, dimensions map[string]string) error
}

// Metrics records request count, latency and error class per route. Points
// are sent off the request path.
func Metrics(recorder MetricRecorder, serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if recorder == nil || !recorder.IsEnabled() {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		dimensions := map[string]string{
			"Service": serviceName,
			"Method":  c.Request.Method,
			"Route":   route,
			"Status":  statusCodeToRange(status),
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = recorder.RecordRequest(ctx, status, latency, dimensions)
		}()
	}
}

func statusCodeToRange(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
