package tile

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheCapacity bounds the number of resident decoded tiles.
const DefaultCacheCapacity = 200

// Cache holds decoded tiles and evicts the least recently used once full.
type Cache struct {
	entries *lru.Cache[ID, *Tile]
}

// NewCache creates a cache holding at most capacity tiles. onEvict, if set,
// is called for every tile removed by eviction, Remove or Purge.
func NewCache(capacity int, onEvict func(*Tile)) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	var cb func(ID, *Tile)
	if onEvict != nil {
		cb = func(_ ID, t *Tile) { onEvict(t) }
	}
	entries, err := lru.NewWithEvict[ID, *Tile](capacity, cb)
	if err != nil {
		return nil, fmt.Errorf("tile cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Get returns a tile and marks it recently used.
func (c *Cache) Get(id ID) (*Tile, bool) {
	return c.entries.Get(id)
}

// Peek returns a tile without touching its recency.
func (c *Cache) Peek(id ID) (*Tile, bool) {
	return c.entries.Peek(id)
}

// Contains reports whether a tile is resident without touching its recency.
func (c *Cache) Contains(id ID) bool {
	return c.entries.Contains(id)
}

// Add stores a tile, evicting the oldest if the cache is full.
func (c *Cache) Add(t *Tile) (evicted bool) {
	return c.entries.Add(t.ID, t)
}

// Remove drops a tile.
func (c *Cache) Remove(id ID) bool {
	return c.entries.Remove(id)
}

// Len returns the number of resident tiles.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Purge drops every tile.
func (c *Cache) Purge() {
	c.entries.Purge()
}
