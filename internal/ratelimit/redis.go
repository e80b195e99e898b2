package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter keeps a sorted set per key scored by attempt time in milliseconds.
// The prune, count, record and expire commands run in one MULTI/EXEC block.
type RedisLimiter struct {
	client redis.UniversalClient
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a limiter whose keys are namespaced by prefix.
func NewRedisLimiter(client redis.UniversalClient, window time.Duration, prefix string) *RedisLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisLimiter{client: client, window: window, prefix: prefix, now: time.Now}
}

// Admit records the attempt and reports whether it fits in the window.
func (l *RedisLimiter) Admit(ctx context.Context, keyID string, limit int) (*Decision, error) {
	now := l.now()
	nowMs := now.UnixMilli()
	key := l.prefix + keyID
	cutoff := strconv.FormatInt(nowMs-l.window.Milliseconds(), 10)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
	card := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowMs), Member: strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()})
	pipe.Expire(ctx, key, l.window)
	first := pipe.ZRangeWithScores(ctx, key, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to run rate limit pipeline: %w", err)
	}

	var oldest time.Time
	if z := first.Val(); len(z) > 0 && int64(z[0].Score) < nowMs {
		oldest = time.UnixMilli(int64(z[0].Score))
	}
	return decide(int(card.Val()), limit, oldest, now, l.window), nil
}
