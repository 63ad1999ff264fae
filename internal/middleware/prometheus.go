package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mediconnect-backend/pkg/logger"
	"mediconnect-backend/pkg/metrics"
)

// PrometheusMiddleware is a Gin middleware that records HTTP metrics
type PrometheusMiddleware struct {
	metrics *metrics.Metrics
}

// NewPrometheusMiddleware creates a new Prometheus middleware
func NewPrometheusMiddleware(m *metrics.Metrics) *PrometheusMiddleware {
	return &PrometheusMiddleware{
		metrics: m,
	}
}

// Handler returns the Gin middleware handler
func (p *PrometheusMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p.metrics.IncrementHTTPRequestsInFlight()
		defer p.metrics.DecrementHTTPRequestsInFlight()

		start := time.Now()
		c.Next()

		// FullPath keeps label cardinality bounded by the route table
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		p.metrics.RecordHTTPRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}

// MetricsHandler serves the gatherer in Prometheus text format. It answers
// 200 as long as the process is alive, even if collection panics.
func MetricsHandler(gatherer prometheus.Gatherer) gin.HandlerFunc {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	handler := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: false,
		ErrorHandling:     promhttp.ContinueOnError,
	})

	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic in metrics handler", zap.Any("panic", r), zap.Stack("stack"))
				c.JSON(http.StatusOK, gin.H{"status": "metrics_collection_error"})
				c.Abort()
			}
		}()
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
