// Based on https://github.com/zsais/go-gin-prometheus/blob/master/middleware.go, cut down to what the status
// server needs.

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reqCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "http_requests_total",
	Help: "How many HTTP requests processed, partitioned by status code, method and route",
}, []string{"code", "method", "route"})

var reqDur = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "http_request_duration_seconds",
	Help: "The HTTP request latencies in seconds",
}, []string{"code", "method", "route"})

var respSize = promauto.NewSummary(prometheus.SummaryOpts{
	Name: "http_response_size_bytes",
	Help: "The HTTP response sizes in bytes",
})

var reqSize = promauto.NewSummary(prometheus.SummaryOpts{
	Name: "http_request_size_bytes",
	Help: "The HTTP request sizes in bytes",
})

// routeLabel uses the matched route template so /cache/:key doesn't produce a series per key.
func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}

func PromReqMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqSz := float64(computeApproximateRequestSize(c.Request))

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		route := routeLabel(c)
		reqDur.WithLabelValues(status, c.Request.Method, route).Observe(time.Since(start).Seconds())
		reqCount.WithLabelValues(status, c.Request.Method, route).Inc()
		reqSize.Observe(reqSz)
		if sz := c.Writer.Size(); sz > 0 {
			respSize.Observe(float64(sz))
		}
	}
}

func computeApproximateRequestSize(r *http.Request) int {
	s := 0
	if r.URL != nil {
		s = len(r.URL.Path)
	}

	s += len(r.Method)
	s += len(r.Proto)
	for name, values := range r.Header {
		s += len(name)
		for _, value := range values {
			s += len(value)
		}
	}
	s += len(r.Host)

	if r.ContentLength > 0 {
		s += int(r.ContentLength)
	}
	return s
}
