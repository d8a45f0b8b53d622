package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/danharap/TaskManager-Backend/pkg/httputil"
	"github.com/danharap/TaskManager-Backend/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate (in-memory limiter only)
	BurstSize int
	// MaxKeys bounds the number of tracked clients (in-memory limiter only)
	MaxKeys int
}

// DefaultLoginRateLimitConfig allows 10 login attempts per
// minute per client
func DefaultLoginRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Minute,
		BurstSize:         0,
		MaxKeys:           10000,
	}
}

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether the client identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RateLimiter is an in-process token bucket limiter. Buckets live in an
// expiring LRU so idle clients are forgotten and memory stays bounded.
type RateLimiter struct {
	config  *RateLimitConfig
	buckets *lru.LRU[string, *bucket]
	mu      sync.Mutex
	now     func() time.Time
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

var _ Limiter = (*RateLimiter)(nil)

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultLoginRateLimitConfig()
	}
	maxKeys := config.MaxKeys
	if maxKeys <= 0 {
		maxKeys = 10000
	}

	return &RateLimiter{
		config: config,
		// a bucket idle for two windows has fully refilled, so dropping it is lossless
		buckets: lru.NewLRU[string, *bucket](maxKeys, nil, 2*config.WindowDuration),
		now:     time.Now,
	}
}

func (rl *RateLimiter) capacity() float64 {
	return float64(rl.config.RequestsPerWindow + rl.config.BurstSize)
}

// refillRate is tokens per second
func (rl *RateLimiter) refillRate() float64 {
	return float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds()
}

// Allow consumes one token for key if available
func (rl *RateLimiter) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets.Get(key)
	if !ok {
		b = &bucket{tokens: rl.capacity(), lastUpdate: now}
	} else {
		elapsed := now.Sub(b.lastUpdate).Seconds()
		b.tokens = math.Min(rl.capacity(), b.tokens+elapsed*rl.refillRate())
		b.lastUpdate = now
	}

	decision := Decision{Limit: rl.config.RequestsPerWindow}
	if b.tokens >= 1 {
		b.tokens--
		decision.Allowed = true
	} else {
		wait := (1 - b.tokens) / rl.refillRate()
		decision.RetryAfter = time.Duration(math.Ceil(wait)) * time.Second
	}
	decision.Remaining = int(b.tokens)

	rl.buckets.Add(key, b)
	return decision, nil
}

// Len returns the number of tracked clients
func (rl *RateLimiter) Len() int {
	return rl.buckets.Len()
}

// RateLimitMiddleware rejects clients that exceed a Limiter with 429
type RateLimitMiddleware struct {
	limiter           Limiter
	name              string
	trustProxyHeaders bool
	metrics           *observability.Metrics
}

// RateLimitOption configures a RateLimitMiddleware
type RateLimitOption func(*RateLimitMiddleware)

// WithTrustedProxyHeaders keys clients by X-Forwarded-For / X-Real-IP.
// Enable only behind a proxy that overwrites those headers.
func WithTrustedProxyHeaders(trust bool) RateLimitOption {
	return func(m *RateLimitMiddleware) {
		m.trustProxyHeaders = trust
	}
}

// WithRateLimitMetrics counts rejected requests
func WithRateLimitMetrics(metrics *observability.Metrics) RateLimitOption {
	return func(m *RateLimitMiddleware) {
		m.metrics = metrics
	}
}

// NewRateLimitMiddleware creates a per-client-IP rate limit middleware.
// name labels log lines and metrics.
func NewRateLimitMiddleware(limiter Limiter, name string, opts ...RateLimitOption) *RateLimitMiddleware {
	m := &RateLimitMiddleware{limiter: limiter, name: name}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handler wraps an HTTP handler with rate limiting. Limiter errors fail open.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.name + ":ip:" + getClientIP(r, m.trustProxyHeaders)

		decision, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			observability.GetLogger(r.Context()).
				WithError(err).
				WithField("limiter", m.name).
				Warn("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			if m.metrics != nil {
				m.metrics.RateLimitedTotal.WithLabelValues(m.name).Inc()
			}
			retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			httputil.WriteTooManyRequests(w, "Too many requests. Please try again later.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func getClientIP(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		// the left-most entry is the original client
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			return strings.TrimSpace(first)
		}
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return realIP
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
