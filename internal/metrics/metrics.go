package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videotube",
		Name:      "http_requests_total",
		Help:      "HTTP requests processed, partitioned by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "videotube",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	authEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videotube",
		Name:      "auth_events_total",
		Help:      "Session lifecycle events (register, login, refresh, logout, change_password) by outcome.",
	}, []string{"event", "outcome"})

	mediaUploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videotube",
		Name:      "media_uploads_total",
		Help:      "Media host uploads by outcome.",
	}, []string{"outcome"})
)

// InitMetrics registers the collectors with the default registry. Safe to call repeatedly.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, authEvents, mediaUploads)
	})
}

// Register attaches the Prometheus metrics endpoint to the router.
func Register(router *gin.Engine, path string) {
	router.GET(path, gin.WrapH(promhttp.Handler()))
}

// Middleware records request counts and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// AuthEvent counts a session lifecycle event.
func AuthEvent(event string, err error) {
	authEvents.WithLabelValues(event, outcome(err)).Inc()
}

// MediaUpload counts a media host upload attempt.
func MediaUpload(err error) {
	mediaUploads.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
