package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// The release script deletes the key only when the stored owner token
// still matches the caller's.
const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker is a best-effort distributed lock used to single-flight the
// moderation sweep across worker replicas. It is not fencing: a holder
// that outlives its TTL may briefly overlap the next holder.
type Locker struct {
	client  *redis.Client
	release *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client:  client,
		release: redis.NewScript(lockReleaseScript),
	}
}

// TryLock attempts to take the lock without blocking. It returns the owner
// token needed to release, and false when another replica holds the key.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return owner, ok, nil
}

// Release frees the lock if the caller still owns it. Releasing an
// expired or stolen lock is a no-op, never an error.
func (l *Locker) Release(ctx context.Context, key, owner string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || owner == "" {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{key}, owner).Err()
}
