package watermask

import (
	"time"

	"github.com/karlseguin/ccache/v3"
	"golang.org/x/sync/singleflight"
)

// sharedTileTTL bounds how long a tile stays cached between batch calls.
const sharedTileTTL = 10 * time.Minute

// sharedTiles is the dataset-lifetime alternative to the per-worker caches:
// one concurrent LRU-ish cache for all rasters, with singleflight ensuring
// a missed tile is read exactly once no matter how many workers want it.
type sharedTiles struct {
	cache    *ccache.Cache[[]byte]
	inflight singleflight.Group
}

func newSharedTiles(maxSize int64, itemsToPrune uint32) *sharedTiles {
	return &sharedTiles{
		cache: ccache.New(ccache.Configure[[]byte]().MaxSize(maxSize).ItemsToPrune(itemsToPrune)),
	}
}

// tile returns the cached tile for key, loading it through the handle's
// guarded read path on a miss.
func (s *sharedTiles) tile(h *rasterHandle, key TileKey, tileSize int) ([]byte, error) {
	ck := h.name + ":" + key.String()
	if item := s.cache.Get(ck); item != nil && !item.Expired() {
		cacheHits.Inc()
		return item.Value(), nil
	}
	cacheMisses.Inc()

	v, err, _ := s.inflight.Do(ck, func() (any, error) {
		data, err := h.readTile(key, tileSize)
		if err != nil {
			return nil, err
		}
		s.cache.Set(ck, data, sharedTileTTL)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
