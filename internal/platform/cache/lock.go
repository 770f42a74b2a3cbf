package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockRetryInterval = 50 * time.Millisecond

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out named mutual-exclusion locks shared by every process
// using the same Redis.
type Locker struct {
	cache  *Cache
	prefix string
	ttl    time.Duration
}

// NewLocker creates a Locker whose keys start with prefix. Locks expire
// after ttl if their holder never releases them.
func NewLocker(c *Cache, prefix string, ttl time.Duration) *Locker {
	return &Locker{cache: c, prefix: prefix, ttl: ttl}
}

// Key returns the Redis key used for name.
func (l *Locker) Key(name string) string {
	return l.prefix + name
}

// Lock blocks until the named lock is acquired or ctx is done. The returned
// function releases the lock.
func (l *Locker) Lock(ctx context.Context, name string) (func(), error) {
	if l == nil || l.cache == nil {
		return nil, errors.New("locker has no cache")
	}
	key := l.Key(name)
	token := uuid.NewString()

	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.cache.Client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				// Release with a fresh context so a cancelled caller still frees the lock.
				releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.cache.Client, []string{key}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}
