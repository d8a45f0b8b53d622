package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/danharap/TaskManager-Backend/pkg/observability"
)

// DistributedRateLimiter is a fixed-window limiter on Redis, so every
// instance behind a load balancer shares the same counters
type DistributedRateLimiter struct {
	redis   *redis.Client
	config  *RateLimitConfig
	prefix  string
	metrics *observability.Metrics
}

var _ Limiter = (*DistributedRateLimiter)(nil)

// NewDistributedRateLimiter creates a new Redis-backed rate limiter
func NewDistributedRateLimiter(redisClient *redis.Client, config *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if config == nil {
		config = DefaultLoginRateLimitConfig()
	}
	if prefix == "" {
		prefix = "taskmanager:ratelimit"
	}

	return &DistributedRateLimiter{
		redis:  redisClient,
		config: config,
		prefix: prefix,
	}
}

// WithMetrics records Redis command counts and latencies
func (rl *DistributedRateLimiter) WithMetrics(metrics *observability.Metrics) *DistributedRateLimiter {
	rl.metrics = metrics
	return rl
}

func (rl *DistributedRateLimiter) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}

func (rl *DistributedRateLimiter) observe(command string, start time.Time, err error) {
	if rl.metrics == nil {
		return
	}
	status := "success"
	if err != nil && err != redis.Nil {
		status = "error"
	}
	rl.metrics.RedisCommandsTotal.WithLabelValues(command, status).Inc()
	rl.metrics.RedisCommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}

// Allow counts one request in the current window. On Redis errors the
// decision allows the request and the error is returned for logging.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := rl.redisKey(key)
	start := time.Now()

	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	_, err := pipe.Exec(ctx)
	rl.observe("ratelimit_allow", start, err)
	if err != nil {
		return Decision{Allowed: true, Limit: rl.config.RequestsPerWindow}, fmt.Errorf("redis error: %w", err)
	}

	// the window starts at the first hit; a key without expiry is new
	window := ttl.Val()
	if window < 0 {
		start = time.Now()
		err = rl.redis.PExpire(ctx, redisKey, rl.config.WindowDuration).Err()
		rl.observe("ratelimit_expire", start, err)
		if err != nil {
			return Decision{Allowed: true, Limit: rl.config.RequestsPerWindow}, fmt.Errorf("redis error: %w", err)
		}
		window = rl.config.WindowDuration
	}

	count := incr.Val()
	remaining := int64(rl.config.RequestsPerWindow) - count
	if remaining < 0 {
		remaining = 0
	}

	decision := Decision{
		Allowed:   count <= int64(rl.config.RequestsPerWindow),
		Limit:     rl.config.RequestsPerWindow,
		Remaining: int(remaining),
	}
	if !decision.Allowed {
		decision.RetryAfter = window
	}
	return decision, nil
}

// Reset clears the counter for a key
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	start := time.Now()
	err := rl.redis.Del(ctx, rl.redisKey(key)).Err()
	rl.observe("ratelimit_reset", start, err)
	return err
}
