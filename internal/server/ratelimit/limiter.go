// Package ratelimit throttles repeated authentication attempts per key.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter records one attempt for key and reports whether it is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Nop allows everything.
type Nop struct{}

// Allow implements Limiter.
func (Nop) Allow(context.Context, string) (bool, error) { return true, nil }

type counter interface {
	IncrWithExpire(ctx context.Context, key string, expiration time.Duration) (int64, error)
}

// RedisLimiter counts attempts in Redis over fixed windows. A window opens
// with the first attempt on a key and is not extended by later ones.
type RedisLimiter struct {
	c      counter
	limit  int64
	window time.Duration
	prefix string
}

// NewRedisLimiter allows limit attempts per key within window.
func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		c:      &redisCounter{client: client},
		limit:  int64(limit),
		window: window,
		prefix: "authcore:ratelimit:",
	}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := l.c.IncrWithExpire(ctx, l.prefix+key, l.window)
	if err != nil {
		return false, fmt.Errorf("rate limit counter: %w", err)
	}
	return n <= l.limit, nil
}

type redisCounter struct {
	client redis.UniversalClient
}

// IncrWithExpire increments key, creating it with the given expiration when
// absent. An existing expiry is left alone.
func (r *redisCounter) IncrWithExpire(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	pipe.SetNX(ctx, key, 0, expiration)
	incrCmd := pipe.Incr(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incrCmd.Val(), nil
}

// NewRedisClient parses url and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
