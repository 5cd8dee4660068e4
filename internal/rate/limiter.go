package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "rw"

// Config holds rate limiter tuning parameters.
type Config struct {
	Enabled           bool
	RequestsPerMinute int

	// Now is the clock used for window bucketing. nil means time.Now.
	Now func() time.Time
}

// Limiter enforces a per-client requests-per-minute budget using Redis
// counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Allow admits or rejects one request for the client key. The Nth request
// within a window passes when N <= RequestsPerMinute; the next one returns
// [ErrRateLimited]. Backend failures surface as [ErrRedisUnavailable], never
// as admission.
func (l *Limiter) Allow(ctx context.Context, clientKey string) error {
	if !l.config.Enabled || clientKey == "" {
		return nil
	}

	window := l.config.Now().Unix() / 60
	key := keyPrefix + ":" + clientKey + ":" + strconv.FormatInt(window, 10)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, 2*time.Minute).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count > int64(l.config.RequestsPerMinute) {
		return ErrRateLimited
	}

	return nil
}
