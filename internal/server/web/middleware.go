package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/schemadiagram/internal/common"
	"github.com/dmitrijs2005/schemadiagram/internal/logging"
)

// RequestID propagates the caller's request ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(common.RequestIDHeaderName)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(common.RequestIDHeaderName, id)
		c.Next()
	}
}

func RequestLogger(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		fields := []any{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if id := c.GetString("request_id"); id != "" {
			fields = append(fields, "request_id", id)
		}

		ctx := c.Request.Context()
		switch {
		case status >= 500:
			log.Error(ctx, "HTTP request", fields...)
		case status >= 400:
			log.Warn(ctx, "HTTP request", fields...)
		default:
			log.Info(ctx, "HTTP request", fields...)
		}
	}
}

type httpMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	f := promauto.With(reg)
	return &httpMetrics{
		// Labels: method, route, status
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schemadiagram",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "schemadiagram",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func Metrics(reg prometheus.Registerer) gin.HandlerFunc {
	m := newHTTPMetrics(reg)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

const bodyLimitKey = "body_limit"

// LimitBody caps the request body at max bytes.
func LimitBody(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if max > 0 {
			b := &limitedBody{ReadCloser: http.MaxBytesReader(c.Writer, c.Request.Body, max)}
			c.Request.Body = b
			c.Set(bodyLimitKey, b)
		}
		c.Next()
	}
}

// limitedBody keeps the limit error it returned. mime/multipart formats
// some read errors with %v, so the type may not survive form parsing.
type limitedBody struct {
	io.ReadCloser
	exceeded *http.MaxBytesError
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	var mb *http.MaxBytesError
	if errors.As(err, &mb) {
		b.exceeded = mb
	}
	return n, err
}

// bodyError returns the body limit error if the request hit it, else err.
func bodyError(c *gin.Context, err error) error {
	v, ok := c.Get(bodyLimitKey)
	if !ok {
		return err
	}
	if b, ok := v.(*limitedBody); ok && b.exceeded != nil {
		return b.exceeded
	}
	return err
}

// limiterPool hands out one token bucket per client.
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if burst <= 0 {
		burst = 1
	}
	return &limiterPool{m: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = l
	return l
}

func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

// RateLimit answers 429 once a client exceeds rps. A non-positive rps
// disables limiting.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	pool := newLimiterPool(rps, burst)
	return func(c *gin.Context) {
		if !pool.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: "too many uploads, slow down"})
			return
		}
		c.Next()
	}
}
