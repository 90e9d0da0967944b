package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrLocked is returned by TryLock when the lock is already held.
var ErrLocked = errors.New("lock is already held")

// SyncLockKey is the lock guarding the archive of one broadcast date, so
// two workers never rewrite the same day concurrently.
func SyncLockKey(date string) string {
	return keyPrefix + "lock:sync:" + date
}

const unlockScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`

// TryLock attempts to acquire a lock identified by key using SET NX EX.
// On success it returns an unlock function that must be called to release
// the lock. If the lock is already held, ErrLocked is returned.
func TryLock(ctx context.Context, r *Redis, key string, ttl time.Duration) (unlock func(), err error) {
	// Only the holder of the token may release the lock.
	token := randomToken()

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("cache lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		// Background context: release even when the caller's ctx is done.
		_ = r.client.Eval(context.Background(), unlockScript, []string{key}, token).Err()
	}, nil
}

// IsLocked reports whether the lock key exists.
func IsLocked(ctx context.Context, r *Redis, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache lock %s: %w", key, err)
	}
	return n > 0, nil
}

// Syncing reports whether a worker currently holds the sync lock of date
// (YYYY-MM-DD).
func (r *Redis) Syncing(ctx context.Context, date string) (bool, error) {
	return IsLocked(ctx, r, SyncLockKey(date))
}

func randomToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
