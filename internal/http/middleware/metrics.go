// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation for HTTP traffic. Labels:
//
//   - method: HTTP verb
//   - path:   the registered route (e.g. /api/v1/threads/:id/messages), or
//     "unmatched" when no route matched so scanners cannot blow up cardinality
//   - status: numeric status code
//
// Stream followers are counted separately by transport (sse, ws) since their
// durations would drown the request latency histogram.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of non-streaming HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_response_size_bytes",
			Help: "Size of HTTP responses in bytes.",
			Buckets: []float64{
				200, 500, 1 << 10, 2 << 10, 5 << 10,
				10 << 10, 25 << 10, 50 << 10,
				100 << 10, 250 << 10, 500 << 10,
				1 << 20, 2 << 20, 5 << 20,
			},
		},
		[]string{"method", "path"},
	)

	streamFollowers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stream_followers",
			Help: "Open stream followers, by transport.",
		},
		[]string{"transport"},
	)

	streamSessions = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stream_session_seconds",
			Help:    "Lifetime of stream follower sessions in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"transport"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, streamFollowers, streamSessions)
}

const ctxKeyStreaming = "metrics.streaming"

// TrackStream counts an open follower of the given transport and returns the
// function that closes it. It also excludes the request from the latency
// histogram.
//
//	done := middleware.TrackStream(c, "sse")
//	defer done()
func TrackStream(c *gin.Context, transport string) func() {
	c.Set(ctxKeyStreaming, true)
	start := time.Now()
	streamFollowers.WithLabelValues(transport).Inc()
	return func() {
		streamFollowers.WithLabelValues(transport).Dec()
		streamSessions.WithLabelValues(transport).Observe(time.Since(start).Seconds())
	}
}

// Metrics instruments requests with the collectors above.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		if !c.GetBool(ctxKeyStreaming) {
			httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		}
		// Hijacked (WebSocket) responses report -1.
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
