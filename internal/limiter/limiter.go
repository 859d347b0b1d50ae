// Package limiter counts visitor mutations per fixed window in Redis.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "darila:limiter:"

const redisTimeout = 300 * time.Millisecond

// DefaultWindow is used when Window is zero.
const DefaultWindow = time.Minute

// Limiter allows each visitor key up to Limit counted actions per Window.
type Limiter struct {
	Redis  *redis.Client
	Limit  int
	Window time.Duration
}

// Increment counts one action for key in the current window and returns
// the new count.
func (l *Limiter) Increment(ctx context.Context, key string) (int, error) {
	k := l.counterKey(key, time.Now())

	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	val, err := l.Redis.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing visitor counter: %w", err)
	}

	if val == 1 {
		if err := l.Redis.Expire(ctx, k, l.window()).Err(); err != nil {
			return 0, fmt.Errorf("setting counter expiration: %w", err)
		}
	}

	return int(val), nil
}

// LimitExceeded reports whether key has used up its allowance for the
// current window.
func (l *Limiter) LimitExceeded(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	c, err := l.Redis.Get(ctx, l.counterKey(key, time.Now())).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("reading visitor counter: %w", err)
	}

	return c >= l.Limit, nil
}

func (l *Limiter) window() time.Duration {
	if l.Window <= 0 {
		return DefaultWindow
	}
	return l.Window
}

// counterKey is the visitor key suffixed with the start of the window that
// contains now, so every window starts from zero.
func (l *Limiter) counterKey(key string, now time.Time) string {
	start := now.Truncate(l.window()).Unix()
	return cacheKeyPrefix + key + ":" + strconv.FormatInt(start, 10)
}
