// Package rostercache keeps account character lists in Redis.
package rostercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Proton-105/account-ledger/internal/account"
)

type entry struct {
	Name     string `json:"name"`
	Deletion int64  `json:"deletion,omitempty"`
}

// Cache stores the player roster of an account as JSON.
type Cache struct {
	client redis.Cmdable
}

func NewCache(client redis.Cmdable) *Cache {
	return &Cache{client: client}
}

// Get returns the cached roster. A miss is (nil, false, nil).
func (c *Cache) Get(ctx context.Context, accountID uint32) ([]account.Player, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}

	data, err := c.client.Get(ctx, cacheKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get cached roster: %w", err)
	}

	var entries []entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, false, fmt.Errorf("decode cached roster: %w", err)
	}

	players := make([]account.Player, 0, len(entries))
	for _, e := range entries {
		p := account.Player{Name: e.Name}
		if e.Deletion != 0 {
			p.Deletion = time.Unix(e.Deletion, 0).UTC()
		}
		players = append(players, p)
	}

	return players, true, nil
}

// Set stores players for ttl. An empty roster is cached too.
func (c *Cache) Set(ctx context.Context, accountID uint32, players []account.Player, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}

	entries := make([]entry, 0, len(players))
	for _, p := range players {
		e := entry{Name: p.Name}
		if !p.Deletion.IsZero() {
			e.Deletion = p.Deletion.Unix()
		}
		entries = append(entries, e)
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode roster for cache: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(accountID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("set cached roster: %w", err)
	}

	return nil
}

// Invalidate drops the cached roster of accountID.
func (c *Cache) Invalidate(ctx context.Context, accountID uint32) error {
	if c == nil || c.client == nil {
		return nil
	}

	if err := c.client.Del(ctx, cacheKey(accountID)).Err(); err != nil {
		return fmt.Errorf("delete cached roster: %w", err)
	}

	return nil
}

func cacheKey(accountID uint32) string {
	return fmt.Sprintf("ledger:roster:%d", accountID)
}
