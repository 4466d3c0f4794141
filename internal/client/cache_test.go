package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-tierprice/internal/quote"
)

func newTestCache(ttl time.Duration, max int) (*LocalCache, *time.Time) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewLocalCache(ttl, max)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestLocalCacheExpiresAtTTL(t *testing.T) {
	c, now := newTestCache(300*time.Second, 0)
	c.Put(12, 3, quote.Payload{Quantity: 3})

	*now = now.Add(299 * time.Second)
	got, ok := c.Get(12, 3)
	require.True(t, ok)
	require.Equal(t, 3, got.Quantity)

	*now = now.Add(time.Second)
	_, ok = c.Get(12, 3)
	require.False(t, ok, "entry at exactly the TTL is stale")
	require.Zero(t, c.Len(), "expired entries are removed on read")
}

func TestLocalCacheKeysIncludeProduct(t *testing.T) {
	c, _ := newTestCache(time.Minute, 0)
	c.Put(1, 23, quote.Payload{Quantity: 23})
	_, ok := c.Get(12, 3)
	require.False(t, ok)
}

func TestLocalCacheCeilingClearsAll(t *testing.T) {
	c, _ := newTestCache(time.Minute, 3)
	for qty := 1; qty <= 3; qty++ {
		require.False(t, c.Put(12, qty, quote.Payload{Quantity: qty}))
	}
	// overwriting an existing key never trips the ceiling
	require.False(t, c.Put(12, 2, quote.Payload{Quantity: 2}))
	require.True(t, c.Put(12, 4, quote.Payload{Quantity: 4}))
	require.Equal(t, 1, c.Len())
	_, ok := c.Get(12, 4)
	require.True(t, ok)
}

func TestLocalCacheSweepAndStats(t *testing.T) {
	c, now := newTestCache(time.Minute, 0)
	c.Put(12, 1, quote.Payload{})
	*now = now.Add(45 * time.Second)
	c.Put(12, 2, quote.Payload{})
	*now = now.Add(30 * time.Second)

	stats := c.Stats()
	require.Equal(t, Stats{Total: 2, Expired: 1, Active: 1, TTL: time.Minute}, stats)

	require.Equal(t, 1, c.Sweep())
	require.Equal(t, 1, c.Len())

	c.Clear()
	require.Zero(t, c.Stats().Total)
}
