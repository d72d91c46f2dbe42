package watermask

import (
	"fmt"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// TileKey identifies one fixed-size square block of a mask raster.
type TileKey struct {
	X, Y int
}

func (k TileKey) String() string { return fmt.Sprintf("%d/%d", k.X, k.Y) }

// TileCache maps tile keys to decoded mask bytes with bounded capacity and
// least-recently-used eviction. It is not safe for concurrent use: the query
// engine gives every worker its own instance, so no locking is needed here.
type TileCache struct {
	lru *simplelru.LRU[TileKey, []byte]
}

// NewTileCache returns a cache holding at most maxTiles tiles.
// maxTiles must be positive.
func NewTileCache(maxTiles int) (*TileCache, error) {
	lru, err := simplelru.NewLRU[TileKey, []byte](maxTiles, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid tile cache capacity %d: %w", maxTiles, err)
	}
	return &TileCache{lru: lru}, nil
}

// Contains reports whether the tile is cached without updating recency.
func (c *TileCache) Contains(key TileKey) bool {
	return c.lru.Contains(key)
}

// Get returns the cached tile and marks it most recently used.
// It returns ErrTileNotFound for an absent key.
func (c *TileCache) Get(key TileKey) ([]byte, error) {
	data, ok := c.lru.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTileNotFound, key)
	}
	return data, nil
}

// Put inserts the tile as most recently used, evicting the least recently
// used entry first when the cache is full and the key is new.
func (c *TileCache) Put(key TileKey, data []byte) {
	c.lru.Add(key, data)
}

// Len returns the number of cached tiles.
func (c *TileCache) Len() int {
	return c.lru.Len()
}
