package embedcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogpy/causalreason/core/contracts"
)

func TestFingerprintStability(t *testing.T) {
	base := contracts.Embedding{0.1, 0.2, 0.3}
	f1 := Fingerprint(base, "edge-1")
	f2 := Fingerprint(base, "edge-1")
	f3 := Fingerprint(base, "edge-2")
	assert.Equal(t, f1, f2)
	assert.NotEqual(t, f1, f3)
}

func TestCacheGetPut(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	key := Fingerprint(contracts.Embedding{1, 2, 3}, "ctx")
	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Put(key, contracts.Embedding{1, 2, 3}, nil)
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, contracts.Embedding{1, 2, 3}, got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 1.0, stats.AvgAccessCount)
}

func TestCachePutStoresDeepCopy(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	value := contracts.Embedding{1, 2, 3}
	c.Put("k", value, nil)
	value[0] = 999 // mutate the caller's buffer after Put

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, contracts.Embedding{1, 2, 3}, got)
}

func TestCacheTTLExpiry(t *testing.T) {
	c, err := New(WithTTL(time.Millisecond))
	require.NoError(t, err)

	c.Put("k", contracts.Embedding{1}, nil)
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCacheMaxEntriesEviction(t *testing.T) {
	c, err := New(WithMaxEntries(2))
	require.NoError(t, err)

	c.Put("a", contracts.Embedding{1}, nil)
	c.Put("b", contracts.Embedding{2}, nil)
	c.Put("c", contracts.Embedding{3}, nil)

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should have been evicted")
	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Evictions)
}

func TestCacheMaxBytesEviction(t *testing.T) {
	c, err := New(WithMaxBytes(8 * 2)) // room for exactly 2 float64s
	require.NoError(t, err)

	c.Put("a", contracts.Embedding{1}, nil)
	c.Put("b", contracts.Embedding{2}, nil)
	c.Put("c", contracts.Embedding{3, 4}, nil) // forces eviction of a and/or b

	stats := c.Stats()
	assert.LessOrEqual(t, stats.Bytes, int64(16))
}

func TestCacheInvalidate(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	c.Put("k", contracts.Embedding{1}, nil)
	c.Invalidate("k")
	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Put("x", contracts.Embedding{1}, nil)
	c.Put("y", contracts.Embedding{2}, nil)
	c.InvalidateAll()
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestCacheInvalidateByNode(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	c.Put("a", contracts.Embedding{1}, []string{"n1", "n2"})
	c.Put("b", contracts.Embedding{2}, []string{"n3"})

	c.InvalidateByNode("n2")

	_, ok := c.Get("a")
	assert.False(t, ok, "entry scoped to the mutated node should be gone")
	_, ok = c.Get("b")
	assert.True(t, ok, "entry scoped to an unrelated node should survive")
}

func TestCacheStatsOldestEntryAge(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	c.Put("k", contracts.Embedding{1}, nil)
	time.Sleep(2 * time.Millisecond)

	stats := c.Stats()
	assert.Greater(t, stats.OldestEntryAge, time.Duration(0))
}

func TestCacheWarm(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	c.Warm(map[string]contracts.Embedding{
		"a": {1, 2},
		"b": {3, 4},
	})
	_, ok := c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
}
