package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SyncLockKey is the redis key guarding core mirror runs.
func SyncLockKey() string {
	return "coresync:mirror:lock"
}

// WarmupLockKey guards cache warmup for one office.
func WarmupLockKey(office string) string {
	return fmt.Sprintf("analytics:warmup:%s:lock", office)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker implements token based advisory locks on redis. A lock expires after its
// ttl even when the holder never releases it.
type Locker struct {
	client *redis.Client
}

// NewLocker wraps a redis client.
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Acquire tries to take key for ttl. It returns the holder token, or an empty token
// when another holder owns the key.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("shared: acquire %s: %w", key, err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// Release deletes key when it is still held by token.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		return fmt.Errorf("shared: release %s: %w", key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Held reports whether key is currently locked and its remaining ttl.
func (l *Locker) Held(ctx context.Context, key string) (bool, time.Duration, error) {
	ttl, err := l.client.PTTL(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("shared: inspect %s: %w", key, err)
	}
	switch {
	case ttl == -2:
		return false, 0, nil
	case ttl < 0:
		return true, 0, nil
	default:
		return true, ttl, nil
	}
}
