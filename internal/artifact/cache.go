package artifact

import (
	"context"
	"sync"
	"sync/atomic"
)

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Purges  int64 `json:"purges"`
}

// Cache maps refs to artifact bytes. It is pure cache: losing an entry only
// costs a reload. When an insert would exceed maxBytes the whole cache is
// cleared rather than partially evicted.
//
// Returned slices are shared with the cache and must not be modified.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string][]byte
	size     int64
	maxBytes int64

	// gens records the last invalidation of each ref since the last purge;
	// epoch counts purges. Together they reject fills that read stale bytes.
	gens  map[string]uint64
	seq   uint64
	epoch uint64

	hits   atomic.Int64
	misses atomic.Int64
	purges atomic.Int64
}

// NewCache creates a cache bounded to maxBytes. Zero means unbounded.
func NewCache(maxBytes int64) *Cache {
	return &Cache{
		entries:  make(map[string][]byte),
		gens:     make(map[string]uint64),
		maxBytes: maxBytes,
	}
}

// fillToken marks the cache state for ref before a backend read.
type fillToken struct {
	epoch uint64
	gen   uint64
}

func (c *Cache) token(ref string) fillToken {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fillToken{epoch: c.epoch, gen: c.gens[ref]}
}

// Get returns the cached bytes for ref.
func (c *Cache) Get(ref string) ([]byte, bool) {
	c.mu.RLock()
	data, ok := c.entries[ref]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return data, ok
}

// Put stores a copy of data under ref.
func (c *Cache) Put(ref string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(ref, data)
}

// fill stores data read from the backend unless ref was invalidated, or the
// cache purged, since tok was taken.
func (c *Cache) fill(ref string, data []byte, tok fillToken) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tok.epoch != c.epoch || tok.gen != c.gens[ref] {
		return false
	}
	c.putLocked(ref, data)
	return true
}

func (c *Cache) putLocked(ref string, data []byte) {
	entry := make([]byte, len(data))
	copy(entry, data)

	if old, ok := c.entries[ref]; ok {
		c.size -= int64(len(old))
		delete(c.entries, ref)
	}
	if c.maxBytes > 0 && c.size+int64(len(entry)) > c.maxBytes {
		c.purgeLocked()
		if int64(len(entry)) > c.maxBytes {
			return
		}
	}
	c.entries[ref] = entry
	c.size += int64(len(entry))
}

// Invalidate drops the given refs.
func (c *Cache) Invalidate(refs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ref := range refs {
		c.seq++
		c.gens[ref] = c.seq
		if old, ok := c.entries[ref]; ok {
			c.size -= int64(len(old))
			delete(c.entries, ref)
		}
	}
}

// Purge clears every entry. Memory pressure calls this.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked()
}

func (c *Cache) purgeLocked() {
	c.entries = make(map[string][]byte)
	c.gens = make(map[string]uint64)
	c.size = 0
	c.epoch++
	c.purges.Add(1)
}

// Stats returns current counters.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		Entries: len(c.entries),
		Bytes:   c.size,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Purges:  c.purges.Load(),
	}
}

// CachedStore is a Backend that serves loads from the cache first and keeps
// the cache coherent with saves, overwrites and deletes.
type CachedStore struct {
	backend Backend
	cache   *Cache
}

// NewCachedStore wraps backend with cache.
func NewCachedStore(backend Backend, cache *Cache) *CachedStore {
	return &CachedStore{backend: backend, cache: cache}
}

// Cache exposes the underlying cache.
func (s *CachedStore) Cache() *Cache { return s.cache }

func (s *CachedStore) Save(ctx context.Context, kind Kind, key string, data []byte) (string, error) {
	ref, err := s.backend.Save(ctx, kind, key, data)
	if err != nil {
		return "", err
	}
	s.cache.Put(ref, data)
	return ref, nil
}

func (s *CachedStore) Load(ctx context.Context, ref string) ([]byte, error) {
	if data, ok := s.cache.Get(ref); ok {
		return data, nil
	}
	tok := s.cache.token(ref)
	data, err := s.backend.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	s.cache.fill(ref, data, tok)
	return data, nil
}

// Overwrite invalidates ref on both sides of the backend write, so a Load
// that read the old bytes before or during the write cannot cache them.
func (s *CachedStore) Overwrite(ctx context.Context, ref string, data []byte) error {
	s.cache.Invalidate(ref)
	err := s.backend.Overwrite(ctx, ref, data)
	s.cache.Invalidate(ref)
	return err
}

func (s *CachedStore) Delete(ctx context.Context, ref string) error {
	s.cache.Invalidate(ref)
	return s.backend.Delete(ctx, ref)
}
