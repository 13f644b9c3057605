package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cleaner removes idempotency keys that lost their expiry or carry one
// longer than maxTTL.
type Cleaner struct {
	client   redis.Cmdable
	log      *slog.Logger
	interval time.Duration
	maxTTL   time.Duration
}

func NewCleaner(client redis.Cmdable, interval, maxTTL time.Duration, log *slog.Logger) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		client:   client,
		log:      log,
		interval: interval,
		maxTTL:   maxTTL,
	}
}

func (c *Cleaner) Run(ctx context.Context) {
	if c == nil || c.client == nil || c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over the ledger's idempotency keys and returns how
// many it removed. TTLs are fetched one pipeline per scanned batch.
func (c *Cleaner) Sweep(ctx context.Context) int {
	var (
		cursor  uint64
		removed int
	)

	for {
		keys, next, err := c.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			c.log.ErrorContext(ctx, "idempotency: scan failed", slog.Any("error", err))
			return removed
		}

		if stale := c.stale(ctx, keys); len(stale) > 0 {
			n, err := c.client.Del(ctx, stale...).Result()
			if err != nil {
				c.log.WarnContext(ctx, "idempotency: delete stale keys", slog.Int("keys", len(stale)), slog.Any("error", err))
			}
			removed += int(n)
		}

		if cursor = next; cursor == 0 {
			break
		}
	}

	if removed > 0 {
		c.log.InfoContext(ctx, "idempotency: stale keys removed", slog.Int("removed", removed))
	}
	return removed
}

// stale returns the keys that have no expiry or one longer than maxTTL.
// Keys that disappeared since the scan (TTL -2) are skipped.
func (c *Cleaner) stale(ctx context.Context, keys []string) []string {
	if len(keys) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	ttls := make([]*redis.DurationCmd, len(keys))
	for i, key := range keys {
		ttls[i] = pipe.TTL(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		c.log.WarnContext(ctx, "idempotency: ttl lookup failed", slog.Any("error", err))
		return nil
	}

	var out []string
	for i, cmd := range ttls {
		ttl := cmd.Val()
		if ttl == -2 {
			continue
		}
		if ttl < 0 || ttl > c.maxTTL {
			out = append(out, keys[i])
		}
	}
	return out
}
