package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WindowCounter counts hits on a key within a fixed window
type WindowCounter interface {
	// Hit increments key and returns the new count and the time left in
	// the window
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// Decision is the outcome of a rate limit check
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter limits log submissions per device
type RateLimiter struct {
	counter WindowCounter
	limit   int
	window  time.Duration
	prefix  string
	logger  *zap.Logger
}

// NewRateLimiter creates a fixed window limiter
func NewRateLimiter(counter WindowCounter, limit int, window time.Duration, prefix string, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		counter: counter,
		limit:   limit,
		window:  window,
		prefix:  prefix,
		logger:  logger,
	}
}

// Allow records a submission for deviceID. Counter failures allow the request.
func (l *RateLimiter) Allow(ctx context.Context, deviceID string) Decision {
	key := l.prefix + ":device:" + deviceID

	count, ttl, err := l.counter.Hit(ctx, key, l.window)
	if err != nil {
		l.logger.Warn("rate limit check failed, allowing request",
			zap.String("key", key),
			zap.Error(err),
		)
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit}
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	if int(count) > l.limit {
		if ttl <= 0 {
			ttl = l.window
		}
		return Decision{Limit: l.limit, RetryAfter: ttl}
	}
	return Decision{Allowed: true, Limit: l.limit, Remaining: remaining}
}

// RedisCounter is a WindowCounter backed by INCR and EXPIRE
type RedisCounter struct {
	rdb *redis.Client
}

// NewRedisCounter creates a new redis window counter
func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

// Hit implements WindowCounter
func (r *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count %s: %w", key, err)
	}

	// a fresh key has no expiry yet
	if ttl.Val() < 0 {
		if err := r.rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("failed to expire %s: %w", key, err)
		}
		return incr.Val(), window, nil
	}
	return incr.Val(), ttl.Val(), nil
}

// NewRedisClient connects to redis. It returns nil when the server cannot
// be reached; callers then run without rate limiting.
func NewRedisClient(addr, password string, db int, logger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, rate limiting disabled",
			zap.String("addr", addr),
			zap.Error(err),
		)
		client.Close()
		return nil
	}

	logger.Info("redis connection established", zap.String("addr", addr))
	return client
}
