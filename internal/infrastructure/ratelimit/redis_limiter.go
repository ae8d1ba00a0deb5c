// Package ratelimit throttles login attempts with fixed windows kept in redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "sampleapp/backend/internal/domain/auth"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "login:"

var errRedisUnavailable = errors.New("login limiter redis unavailable")

// RedisLimiter counts attempts per key with INCR and expires the window on first hit.
type RedisLimiter struct {
	redis       *redis.Client
	maxAttempts int
	window      time.Duration
}

// NewRedisLimiter builds a limiter allowing maxAttempts per window.
func NewRedisLimiter(client *redis.Client, maxAttempts int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{redis: client, maxAttempts: maxAttempts, window: window}
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Allow records an attempt for key and returns domain.ErrTooManyAttempts once
// the window's budget is spent.
func (l *RedisLimiter) Allow(ctx context.Context, key string) error {
	k := l.key(key)
	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, k, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", errRedisUnavailable, err)
		}
	}
	if count > int64(l.maxAttempts) {
		return domain.ErrTooManyAttempts
	}
	return nil
}

// Reset clears the attempt counter, typically after a successful login.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	return nil
}

func (l *RedisLimiter) key(key string) string {
	return keyPrefix + strings.ToLower(strings.TrimSpace(key))
}
