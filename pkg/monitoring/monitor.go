package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	AttemptsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exam_attempts_started_total",
			Help: "Total number of exam attempts started",
		},
	)

	AttemptsFinalized = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exam_attempts_finalized_total",
			Help: "Total number of exam attempts finalized",
		},
	)

	AnswersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_answers_submitted_total",
			Help: "Total number of exam answers recorded, by question type",
		},
		[]string{"type"},
	)

	EssaysGraded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exam_essays_graded_total",
			Help: "Total number of essay answers graded",
		},
	)

	OperationRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_operation_rejections_total",
			Help: "Exam engine operations rejected, by operation and reason",
		},
		[]string{"operation", "reason"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			AttemptsStarted,
			AttemptsFinalized,
			AnswersSubmitted,
			EssaysGraded,
			OperationRejections,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
