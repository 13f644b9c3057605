package rostercache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/account-ledger/internal/account"
)

func newCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCache(client), mr
}

func TestCache_RoundTrip(t *testing.T) {
	cache, mr := newCache(t)
	ctx := context.Background()

	_, hit, err := cache.Get(ctx, 5)
	require.NoError(t, err)
	assert.False(t, hit)

	deletion := time.Unix(1_710_000_000, 0).UTC()
	require.NoError(t, cache.Set(ctx, 5, []account.Player{{Name: "Aldor"}, {Name: "Mirela", Deletion: deletion}}, time.Minute))

	players, hit, err := cache.Get(ctx, 5)
	require.NoError(t, err)
	assert.True(t, hit)
	require.Len(t, players, 2)
	assert.False(t, players[0].ScheduledForDeletion())
	assert.Equal(t, deletion, players[1].Deletion)

	mr.FastForward(2 * time.Minute)
	_, hit, err = cache.Get(ctx, 5)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_EmptyRosterIsAHit(t *testing.T) {
	cache, _ := newCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, 6, nil, time.Minute))

	players, hit, err := cache.Get(ctx, 6)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.NotNil(t, players)
	assert.Empty(t, players)

	require.NoError(t, cache.Invalidate(ctx, 6))
	_, hit, err = cache.Get(ctx, 6)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_CorruptEntry(t *testing.T) {
	cache, mr := newCache(t)
	require.NoError(t, mr.Set(cacheKey(7), "{not json"))

	_, _, err := cache.Get(context.Background(), 7)
	assert.Error(t, err)
}

func TestCache_NilIsDisabled(t *testing.T) {
	var cache *Cache
	players, hit, err := cache.Get(context.Background(), 1)
	assert.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, players)
	assert.NoError(t, cache.Set(context.Background(), 1, nil, time.Minute))
}
