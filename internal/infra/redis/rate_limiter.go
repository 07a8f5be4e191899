package redis

import (
	"context"
	"fmt"
	"time"
)

type counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
}

// WindowLimiter counts generation triggers per owner in buckets aligned to
// the window, so every window starts from a fresh key. A counter that missed
// its TTL only outlives one window instead of blocking the owner for good.
type WindowLimiter struct {
	client counter
	now    func() time.Time
}

func NewWindowLimiter(client counter) *WindowLimiter {
	return &WindowLimiter{client: client, now: time.Now}
}

// Allow records one hit under key and reports whether it is within limit for
// the current window. A non-positive limit disables limiting.
func (l *WindowLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	if window <= 0 {
		window = time.Minute
	}
	bucket := fmt.Sprintf("%s:%d", key, l.now().UnixNano()/int64(window))

	hits, err := l.client.Incr(ctx, bucket)
	if err != nil {
		return false, fmt.Errorf("count trigger: %w", err)
	}
	if hits == 1 {
		// one extra second covers clock skew between replicas
		if err := l.client.Expire(ctx, bucket, window+time.Second); err != nil {
			return false, fmt.Errorf("expire trigger bucket: %w", err)
		}
	}
	return hits <= int64(limit), nil
}

// TriggerKey namespaces an owner's manual generation counter.
func TriggerKey(ownerID string) string {
	return "ratelimit:generate:" + ownerID
}
