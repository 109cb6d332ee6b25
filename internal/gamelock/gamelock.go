// Package gamelock serializes mutations of a game session across
// connections with a per-game redis lock.
package gamelock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockTTL     = 5 * time.Second
	acquireWait = 5 * time.Second
	retryEvery  = 50 * time.Millisecond
)

var ErrNotAcquired = errors.New("game lock not acquired")

// Release only deletes the key when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

type Locker struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb}
}

func key(code string) string { return "lock:game:" + code }

// Acquire takes the lock for the given game, retrying up to the wait
// budget. It returns an ownership token to pass to Release.
func (l *Locker) Acquire(ctx context.Context, code string) (string, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(acquireWait)
	for {
		ok, err := l.rdb.SetNX(ctx, key(code), token, lockTTL).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		if time.Now().After(deadline) {
			return "", ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(retryEvery):
		}
	}
}

// Release frees the lock if the token still owns it. Losing ownership to
// TTL expiry is not an error.
func (l *Locker) Release(ctx context.Context, code, token string) error {
	return releaseScript.Run(ctx, l.rdb, []string{key(code)}, token).Err()
}

// With runs fn while holding the game lock.
func (l *Locker) With(ctx context.Context, code string, fn func() error) error {
	token, err := l.Acquire(ctx, code)
	if err != nil {
		return err
	}
	defer func() { _ = l.Release(context.WithoutCancel(ctx), code, token) }()
	return fn()
}
