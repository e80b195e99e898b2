// ratelimit.go provides the pre-auth IP guard: a coarse per-client-IP token bucket that
// runs before the credential gate so floods of bad keys never reach bcrypt. The per-key
// budget lives in internal/ratelimit.
package middleware

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/assessment-platform/assessment-api/internal/api/respond"
	"github.com/assessment-platform/assessment-api/internal/assessment"
	"github.com/assessment-platform/assessment-api/internal/config"
	"github.com/assessment-platform/assessment-api/internal/telemetry"
)

// IPGuardConfig holds configuration for the IP guard
type IPGuardConfig struct {
	// RequestsPerMinute is the sustained refill rate per client IP
	RequestsPerMinute int
	// BurstSize is the maximum burst of requests allowed
	BurstSize int
	// CleanupInterval is how often idle buckets are dropped
	CleanupInterval time.Duration
}

// IPGuardConfigFrom converts the configured guard settings.
func IPGuardConfigFrom(cfg config.IPGuardConfig) IPGuardConfig {
	out := IPGuardConfig{
		RequestsPerMinute: cfg.RequestsPerMinute,
		BurstSize:         cfg.Burst,
		CleanupInterval:   5 * time.Minute,
	}
	if out.RequestsPerMinute < 1 {
		out.RequestsPerMinute = 600
	}
	if out.BurstSize < 1 {
		out.BurstSize = out.RequestsPerMinute / 10
	}
	return out
}

// IPVerdict is the outcome of one guard check.
type IPVerdict struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// IPAllower decides whether one more request from a client key may proceed.
type IPAllower interface {
	Allow(ctx context.Context, key string) (IPVerdict, error)
}

// bucket tracks the tokens left for a single client
type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// IPGuard is an in-process token bucket per client IP. Each replica keeps its own
// buckets; use RedisIPGuard to share them.
type IPGuard struct {
	config  IPGuardConfig
	buckets map[string]*bucket
	mu      sync.Mutex
	stopCh  chan struct{}
	now     func() time.Time
}

// NewIPGuard creates a guard and starts its cleanup goroutine.
func NewIPGuard(config IPGuardConfig) *IPGuard {
	g := &IPGuard{
		config:  config,
		buckets: make(map[string]*bucket),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	go g.cleanup()
	return g
}

// cleanup periodically removes idle buckets
func (g *IPGuard) cleanup() {
	ticker := time.NewTicker(g.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.mu.Lock()
			now := g.now()
			for key, b := range g.buckets {
				if now.Sub(b.lastUpdate) > 10*time.Minute {
					delete(g.buckets, key)
				}
			}
			g.mu.Unlock()
		case <-g.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (g *IPGuard) Stop() {
	close(g.stopCh)
}

// Allow takes one token from key's bucket.
func (g *IPGuard) Allow(_ context.Context, key string) (IPVerdict, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	perSecond := float64(g.config.RequestsPerMinute) / 60.0
	v := IPVerdict{Limit: g.config.RequestsPerMinute}

	b, ok := g.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(g.config.BurstSize), lastUpdate: now}
		g.buckets[key] = b
	} else {
		b.tokens = min(float64(g.config.BurstSize), b.tokens+now.Sub(b.lastUpdate).Seconds()*perSecond)
		b.lastUpdate = now
	}

	if b.tokens >= 1 {
		b.tokens--
		v.Allowed = true
		v.Remaining = int(b.tokens)
		return v, nil
	}
	v.RetryAfter = time.Duration((1 - b.tokens) / perSecond * float64(time.Second))
	return v, nil
}

// RedisIPGuard shares the guard's buckets across replicas through Redis (GCRA).
type RedisIPGuard struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

// NewRedisIPGuard creates a guard backed by client.
func NewRedisIPGuard(client *redis.Client, config IPGuardConfig) *RedisIPGuard {
	return &RedisIPGuard{
		limiter: redis_rate.NewLimiter(client),
		limit: redis_rate.Limit{
			Rate:   config.RequestsPerMinute,
			Burst:  config.BurstSize,
			Period: time.Minute,
		},
	}
}

// Allow takes one token from key's shared bucket.
func (g *RedisIPGuard) Allow(ctx context.Context, key string) (IPVerdict, error) {
	res, err := g.limiter.Allow(ctx, "ipguard:"+key, g.limit)
	if err != nil {
		return IPVerdict{}, err
	}
	return IPVerdict{
		Allowed:    res.Allowed > 0,
		Limit:      g.limit.Rate,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
	}, nil
}

// IPGuardMiddleware rejects clients that exceed the guard's budget. A guard backend
// failure lets the request through; the per-key limiter still applies.
func IPGuardMiddleware(guard IPAllower) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = c.Request.RemoteAddr
		}

		v, err := guard.Allow(c.Request.Context(), "ip:"+ip)
		if err != nil {
			slog.WarnContext(c.Request.Context(), "ip guard unavailable", "error", err)
			c.Next()
			return
		}
		if !v.Allowed {
			retry := int(v.RetryAfter.Seconds()) + 1
			telemetry.RateLimitRejectionsTotal.WithLabelValues("ip").Inc()
			c.Header("Retry-After", strconv.Itoa(retry))
			respond.Error(c, assessment.RateLimited(assessment.CodeRateLimited,
				"too many requests from this address", time.Now().Add(v.RetryAfter)))
			return
		}
		c.Next()
	}
}
