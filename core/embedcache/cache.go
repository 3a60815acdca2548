// Package embedcache is the read-through cache sitting in front of the GNN
// enhancement layer: enhancing an embedding against a large neighborhood is
// expensive, so repeated lookups for the same (embedding, hyperedge) pair
// are served from memory instead of recomputed.
package embedcache

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/cogpy/causalreason/core/contracts"
)

// Config controls cache capacity and entry lifetime.
type Config struct {
	MaxEntries int
	MaxBytes   int64
	TTL        time.Duration
}

// DefaultConfig returns the documented defaults: 1000 entries, 100MB, 300s TTL.
func DefaultConfig() Config {
	return Config{
		MaxEntries: 1_000,
		MaxBytes:   100 << 20,
		TTL:        300 * time.Second,
	}
}

// Option mutates a Config.
type Option func(*Config)

func WithMaxEntries(n int) Option   { return func(c *Config) { c.MaxEntries = n } }
func WithMaxBytes(b int64) Option   { return func(c *Config) { c.MaxBytes = b } }
func WithTTL(d time.Duration) Option { return func(c *Config) { c.TTL = d } }

// entry is the in-memory shape of the spec's CacheEntry: the embedding
// plus the bookkeeping get/put/stats need. nodeIDs is the neighborhood
// node-id set the embedding was enhanced against, kept alongside the
// opaque fingerprint key so invalidate(node_ids) can find entries a
// hash alone couldn't be reversed back into.
type entry struct {
	value       contracts.Embedding
	storedAt    time.Time
	sizeBytes   int64
	accessCount int64
	lastAccess  time.Time
	nodeIDs     map[string]struct{}
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Hits             int64
	Misses           int64
	Evictions        int64
	Entries          int
	Bytes            int64
	AvgAccessCount   float64
	OldestEntryAge   time.Duration
}

// Cache is an LRU, TTL-bounded, byte-capped cache of enhanced embeddings,
// keyed by a fingerprint of the base embedding plus whatever hyperedge (or
// neighborhood) it was enhanced against.
type Cache struct {
	mu       sync.Mutex
	lru      *lru.Cache
	cfg      Config
	curBytes int64

	hits, misses, evictions int64
}

// New builds a Cache. Options override DefaultConfig().
func New(opts ...Option) (*Cache, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1
	}

	c := &Cache{cfg: cfg}
	l, err := lru.NewWithEvict(cfg.MaxEntries, c.onEvict)
	if err != nil {
		return nil, contracts.NewError(contracts.KindInvalidArgument, "embedcache.New", err)
	}
	c.lru = l
	return c, nil
}

// onEvict is the hashicorp/golang-lru eviction callback; it keeps curBytes
// and the eviction counter in sync whenever an entry is dropped, whether
// by capacity pressure or an explicit Invalidate.
func (c *Cache) onEvict(key interface{}, value interface{}) {
	if e, ok := value.(*entry); ok {
		c.curBytes -= e.sizeBytes
		c.evictions++
	}
}

// Fingerprint derives a cache key from a base embedding and the id of the
// hyperedge (or neighborhood) context it was enhanced against. Two lookups
// with the same base vector but different context never collide.
func Fingerprint(base contracts.Embedding, contextID string) string {
	h := sha256.New()
	buf := make([]byte, 8)
	for _, v := range base {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		h.Write(buf)
	}
	h.Write([]byte{0})
	h.Write([]byte(contextID))
	return string(h.Sum(nil))
}
