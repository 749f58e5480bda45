package decode

import "sync"

// BlobKey identifies a content-addressed blob.
// Identical keys always decode to identical values, so cache entries
// never need invalidation.
type BlobKey struct {
	Channel string
	Version string
	Hash    string
}

// Cache memoizes decode results by blob identity.
// Safe for concurrent use.
type Cache struct {
	decoder *Decoder

	mu      sync.RWMutex
	entries map[BlobKey]cacheEntry
}

type cacheEntry struct {
	value any
	err   error
}

// NewCache wraps a decoder with a memoizing cache.
func NewCache(decoder *Decoder) *Cache {
	return &Cache{
		decoder: decoder,
		entries: make(map[BlobKey]cacheEntry),
	}
}

// Decode returns the cached result for key, decoding on first use.
// Errors are cached too: a corrupt blob stays corrupt.
func (c *Cache) Decode(key BlobKey, encoding string, data []byte) (any, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return entry.value, entry.err
	}

	v, err := c.decoder.Decode(encoding, data)

	c.mu.Lock()
	c.entries[key] = cacheEntry{value: v, err: err}
	c.mu.Unlock()

	return v, err
}

// Len returns the number of cached entries. Useful for testing.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
