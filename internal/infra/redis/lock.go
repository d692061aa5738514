// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLockHeld is returned when another replica owns the lock.
var ErrLockHeld = errors.New("lock held by another process")

// RedisLocker is a single-owner SET NX lock with a TTL. The autosave loop
// takes it so replicas sharing one backend do not flush over each other.
type RedisLocker struct {
	cli   *redis.Client
	tries int
	wait  time.Duration
}

func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{cli: c.cli, tries: 3, wait: 100 * time.Millisecond}
}

// TryLock returns an owner token, or ErrLockHeld once the retries run out.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("lock ttl must be positive")
	}
	token := uuid.NewString()
	for i := 0; i < l.tries; i++ {
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.wait):
		}
	}
	return "", ErrLockHeld
}

// deletes the key only while the caller still owns it
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	return unlockScript.Run(ctx, l.cli, []string{key}, token).Err()
}
