package redis

import (
	"context"
	"fmt"
	"time"

	"weekly-snippets/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

type RedisLocker struct {
	cli      *redis.Client
	attempts int
	backoff  time.Duration
}

// NewLocker returns a locker that gives up after one SETNX attempt. Use
// WithRetry for callers that can afford to wait.
func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{cli: c.cli, attempts: 1, backoff: 50 * time.Millisecond}
}

func (l *RedisLocker) WithRetry(attempts int, backoff time.Duration) *RedisLocker {
	if attempts < 1 {
		attempts = 1
	}
	return &RedisLocker{cli: l.cli, attempts: attempts, backoff: backoff}
}

// TryLock returns an unlock token, or domain.ErrLockNotAcquired when another
// holder owns the key.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	var lastErr error
	for i := 0; i < l.attempts; i++ {
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			lastErr = err
		} else if ok {
			return token, nil
		}
		if i+1 < l.attempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(l.backoff):
			}
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("lock %s: %w", key, lastErr)
	}
	return "", domain.ErrLockNotAcquired
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}

func TickLockKey() string { return "lock:scheduler:tick" }
