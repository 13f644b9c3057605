// Package lock provides a Redis mutex keyed per account.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrNotAcquired = errors.New("lock: not acquired")
	ErrNotHeld     = errors.New("lock: not held")
)

// unlockScript deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// Mutex is a SET NX lock with an expiry.
type Mutex struct {
	client redis.Cmdable
	key    string
	token  string
	ttl    time.Duration
}

func NewMutex(client redis.Cmdable, key string, ttl time.Duration) *Mutex {
	return &Mutex{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// AccountKey is the lock key serializing ledger operations on one account.
func AccountKey(accountID uint32) string {
	return fmt.Sprintf("ledger:lock:account:%d", accountID)
}

func (m *Mutex) Key() string { return m.key }

// TryLock makes a single acquisition attempt.
func (m *Mutex) TryLock(ctx context.Context) (bool, error) {
	ok, err := m.client.SetNX(ctx, m.key, m.token, m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", m.key, err)
	}
	return ok, nil
}

// Lock retries TryLock every interval, up to maxRetries attempts.
func (m *Mutex) Lock(ctx context.Context, interval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		ok, err := m.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w: %s", ErrNotAcquired, m.key)
}

// Unlock releases the lock if it is still ours.
func (m *Mutex) Unlock(ctx context.Context) error {
	deleted, err := unlockScript.Run(ctx, m.client, []string{m.key}, m.token).Int64()
	if err != nil {
		return fmt.Errorf("unlock %s: %w", m.key, err)
	}
	if deleted == 0 {
		return fmt.Errorf("%w: %s", ErrNotHeld, m.key)
	}
	return nil
}
