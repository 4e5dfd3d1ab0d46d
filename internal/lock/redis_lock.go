// Package lock provides a named, TTL-bounded advisory mutual-exclusion
// primitive backed by Redis. It reduces contention ahead of the
// row-level database lock that is the actual correctness boundary;
// losing a lock early (TTL expiry) or failing to acquire one never
// compromises correctness, only throughput.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock could not be obtained
// within the caller-supplied wait budget.
var ErrNotAcquired = errors.New("lock: not acquired")

const pollInterval = 25 * time.Millisecond

// releaseScript deletes the key only if the value still matches the
// token we set, so a lock never releases another holder's lease
// (e.g. one acquired after our TTL expired).
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// Locker acquires named advisory locks over Redis.
type Locker struct {
	client *redis.Client
}

// NewLocker returns a Locker backed by the given Redis client.
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Handle is a held lock; call Release to give it up early.
type Handle struct {
	client *redis.Client
	key    string
	token  string
}

// Acquire blocks (polling) up to wait for the named key, then holds it
// for at most hold before Redis expires it unilaterally. Returns
// ErrNotAcquired if wait elapses first.
func (l *Locker) Acquire(ctx context.Context, key string, wait, hold time.Duration) (*Handle, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, hold).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &Handle{client: l.client, key: key, token: token}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Release gives up the lock if we still hold it. Safe to call once;
// a second call is a no-op (the key is already gone or held by
// someone else).
func (h *Handle) Release(ctx context.Context) error {
	if h == nil {
		return nil
	}
	return releaseScript.Run(ctx, h.client, []string{h.key}, h.token).Err()
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ProductKey returns the advisory lock key for a product's hold
// creation path.
func ProductKey(productID int64) string {
	return "lock:product:" + strconv.FormatInt(productID, 10)
}

// HoldKey returns the advisory lock key for a hold's release path.
func HoldKey(holdID int64) string {
	return "lock:hold:" + strconv.FormatInt(holdID, 10)
}
