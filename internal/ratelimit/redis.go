// Package ratelimit throttles failed logins with a fixed-window counter kept
// in Redis, so every replica shares the same view.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var failureScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// LoginLimiter counts failures per key inside a fixed window.
type LoginLimiter struct {
	client      redis.UniversalClient
	maxAttempts int
	window      time.Duration
	prefix      string
}

// NewLoginLimiter creates a limiter. Non-positive values fall back to 10
// attempts per 15 minutes.
func NewLoginLimiter(client redis.UniversalClient, maxAttempts int, window time.Duration) *LoginLimiter {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &LoginLimiter{
		client:      client,
		maxAttempts: maxAttempts,
		window:      window,
		prefix:      "indicators:login:fail:",
	}
}

// NewClient parses a redis:// URL and verifies the server answers.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (l *LoginLimiter) key(k string) string {
	return l.prefix + strings.ToLower(strings.TrimSpace(k))
}

// Blocked reports whether the key already used up its failures for the
// current window.
func (l *LoginLimiter) Blocked(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Get(ctx, l.key(key)).Int()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read login failures: %w", err)
	}
	return n >= l.maxAttempts, nil
}

// RecordFailure increments the key's counter, starting the window on the
// first failure, and returns the new count.
func (l *LoginLimiter) RecordFailure(ctx context.Context, key string) (int, error) {
	n, err := failureScript.Run(ctx, l.client, []string{l.key(key)}, l.window.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("record login failure: %w", err)
	}
	return n, nil
}

// Noop never blocks. It stands in when Redis is not configured.
type Noop struct{}

func (Noop) Blocked(context.Context, string) (bool, error)      { return false, nil }
func (Noop) RecordFailure(context.Context, string) (int, error) { return 0, nil }
