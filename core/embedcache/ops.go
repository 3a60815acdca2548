package embedcache

import (
	"time"

	"github.com/cogpy/causalreason/core/contracts"
)

// Get returns the cached embedding for key, if present and not expired.
// An expired entry is evicted as part of the lookup rather than left for
// a future sweep. A hit bumps the entry's access_count and last_access.
func (c *Cache) Get(key string) (contracts.Embedding, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	e := raw.(*entry)
	if c.cfg.TTL > 0 && time.Since(e.storedAt) > c.cfg.TTL {
		c.lru.Remove(key)
		c.misses++
		return nil, false
	}
	e.accessCount++
	e.lastAccess = time.Now()
	c.hits++
	return e.value, true
}

// Put stores a deep copy of value under key, scoped to the neighborhood
// node ids it was enhanced against, evicting older entries if the byte
// budget would otherwise be exceeded. Put never errors; a value too large
// to fit even alone is simply not cached.
func (c *Cache) Put(key string, value contracts.Embedding, nodeIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := int64(len(value)) * 8
	if c.cfg.MaxBytes > 0 {
		for c.curBytes+size > c.cfg.MaxBytes && c.lru.Len() > 0 {
			c.lru.RemoveOldest()
		}
		if size > c.cfg.MaxBytes {
			return
		}
	}

	now := time.Now()
	e := &entry{
		value:      append(contracts.Embedding(nil), value...),
		storedAt:   now,
		lastAccess: now,
		sizeBytes:  size,
		nodeIDs:    toSet(nodeIDs),
	}
	c.lru.Add(key, e)
	c.curBytes += size
}

func toSet(ids []string) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

// Invalidate drops a single key, a no-op if absent.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// InvalidateByNode drops every entry whose neighborhood fingerprint
// includes any of the given node ids. Called when the hypergraph
// mutates, so an enhancement cached against a causal neighborhood that
// just changed is never served stale.
func (c *Cache) InvalidateByNode(nodeIDs ...string) {
	if len(nodeIDs) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var stale []interface{}
	for _, key := range c.lru.Keys() {
		raw, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		e := raw.(*entry)
		for _, id := range nodeIDs {
			if _, hit := e.nodeIDs[id]; hit {
				stale = append(stale, key)
				break
			}
		}
	}
	for _, key := range stale {
		c.lru.Remove(key)
	}
}

// InvalidateAll clears the entire cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.curBytes = 0
}

// Warm preloads a batch of key/value pairs, e.g. from a persisted snapshot
// taken at shutdown. Existing entries for the same keys are overwritten
// with no node-id scoping (a warmed entry is only ever exact-key or
// InvalidateAll evicted).
func (c *Cache) Warm(entries map[string]contracts.Embedding) {
	for k, v := range entries {
		c.Put(k, v, nil)
	}
}

// Stats returns a snapshot of cache activity counters, including the
// average access count and the age of the oldest live entry.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var totalAccess int64
	var oldest time.Time
	for _, key := range c.lru.Keys() {
		raw, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		e := raw.(*entry)
		totalAccess += e.accessCount
		if oldest.IsZero() || e.storedAt.Before(oldest) {
			oldest = e.storedAt
		}
	}

	n := c.lru.Len()
	stats := Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   n,
		Bytes:     c.curBytes,
	}
	if n > 0 {
		stats.AvgAccessCount = float64(totalAccess) / float64(n)
		stats.OldestEntryAge = time.Since(oldest)
	}
	return stats
}
