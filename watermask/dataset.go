// Package watermask answers point-membership queries ("is this geographic
// point water?") against one or more large geocoded mask rasters without
// loading them into memory. Random point lookups are turned into bounded,
// localized block reads through per-worker LRU tile caches; batch queries
// fan out over worker goroutines while physical reads stay serialized per
// raster.
package watermask

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/fbriol/hydrosheds/geotiff"
)

// Dataset owns an ordered collection of mask rasters and answers water
// queries against them. It is read-only after construction apart from the
// per-raster read locks and the ephemeral per-call caches, so one Dataset
// may serve any number of concurrent callers.
type Dataset struct {
	handles    []*rasterHandle
	tileSize   int
	cacheTiles int
	epsg       int
	factory    TransformFactory
	shared     *sharedTiles
	logger     *slog.Logger
}

// New builds a Dataset over pre-opened raster sources. The slice order is
// an explicit priority list: where extents overlap, the first raster whose
// bounding box contains a point answers for it. Any per-raster failure
// aborts construction; no partially built Dataset is returned.
func New(rasters []Raster, opts ...Option) (*Dataset, error) {
	d := &Dataset{
		tileSize:   DefaultTileSize,
		cacheTiles: DefaultCacheTiles,
		epsg:       DefaultEPSG,
		factory:    epsgTransform,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.tileSize <= 0 {
		return nil, fmt.Errorf("invalid tile size %d", d.tileSize)
	}
	if d.cacheTiles <= 0 {
		return nil, fmt.Errorf("invalid cache capacity %d", d.cacheTiles)
	}

	for i, r := range rasters {
		if err := d.register(fmt.Sprintf("raster-%d", i), r); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Open builds a Dataset from GeoTIFF mask files on disk.
func Open(paths []string, opts ...Option) (*Dataset, error) {
	d, err := New(nil, opts...)
	if err != nil {
		return nil, err
	}

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("opening mask raster: %w", err)
		}
		r, err := geotiff.Open(f)
		if err != nil {
			f.Close()
			d.Close()
			return nil, fmt.Errorf("parsing mask raster %s: %w", path, err)
		}
		if err := d.register(path, r); err != nil {
			r.Close()
			d.Close()
			return nil, err
		}
	}
	return d, nil
}

func (d *Dataset) register(name string, r Raster) error {
	h, err := newRasterHandle(name, r, d.epsg, d.factory)
	if err != nil {
		return err
	}
	d.handles = append(d.handles, h)
	d.logger.Info("registered mask raster",
		"name", name,
		"width", h.width,
		"height", h.height,
		"epsg", r.EPSG(),
		"bbox", fmt.Sprintf("[%g, %g, %g, %g]", h.bbox.MinX, h.bbox.MinY, h.bbox.MaxX, h.bbox.MaxY),
	)
	return nil
}

// Close releases every raster resource. The Dataset must not be used
// afterwards.
func (d *Dataset) Close() error {
	var errs []error
	for _, h := range d.handles {
		if err := h.raster.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", h.name, err))
		}
	}
	return errors.Join(errs...)
}

// Bounds returns the geographic extent of each raster, in priority order.
func (d *Dataset) Bounds() []BBox {
	bounds := make([]BBox, len(d.handles))
	for i, h := range d.handles {
		bounds[i] = h.bbox
	}
	return bounds
}

// IsWater answers one query per (lon[i], lat[i]) pair. A point outside
// every raster's bounding box is not water; otherwise the first containing
// raster in priority order answers, true iff its mask byte is 1.
//
// numThreads selects the batch parallelism: 1 runs synchronously in the
// caller, 0 uses the machine's CPU count. Each worker processes a
// contiguous chunk of the input with its own tile caches, so results are
// independent of the thread count. When several workers fail, the error of
// the earliest chunk is returned.
func (d *Dataset) IsWater(lon, lat []float64, numThreads int) ([]bool, error) {
	if len(lon) != len(lat) {
		return nil, fmt.Errorf("%w: %d != %d", ErrSizeMismatch, len(lon), len(lat))
	}

	result := make([]bool, len(lon))
	worker := func(start, end int) error {
		caches, err := d.newWorkerCaches()
		if err != nil {
			return err
		}
		for i := start; i < end; i++ {
			water, err := d.isWater(lon[i], lat[i], caches)
			if err != nil {
				return err
			}
			result[i] = water
		}
		return nil
	}
	if err := parallelFor(worker, len(lon), numThreads); err != nil {
		return nil, err
	}

	queriedPoints.Add(float64(len(lon)))
	return result, nil
}

// IsWaterAt answers a single point query with a throwaway cache.
func (d *Dataset) IsWaterAt(lon, lat float64) (bool, error) {
	caches, err := d.newWorkerCaches()
	if err != nil {
		return false, err
	}
	water, err := d.isWater(lon, lat, caches)
	if err != nil {
		return false, err
	}
	queriedPoints.Inc()
	return water, nil
}

// workerCache pairs a raster handle with one worker's private tile cache.
// A fresh collection is allocated per worker per batch call and discarded
// when the call returns.
type workerCache struct {
	handle *rasterHandle
	tiles  *TileCache
}

func (d *Dataset) newWorkerCaches() ([]workerCache, error) {
	caches := make([]workerCache, 0, len(d.handles))
	for _, h := range d.handles {
		tiles, err := NewTileCache(d.cacheTiles)
		if err != nil {
			return nil, err
		}
		caches = append(caches, workerCache{handle: h, tiles: tiles})
	}
	return caches, nil
}

func (d *Dataset) isWater(lon, lat float64, caches []workerCache) (bool, error) {
	for i := range caches {
		c := &caches[i]
		if !c.handle.bbox.Contains(lon, lat) {
			continue
		}
		return d.lookup(lon, lat, c)
	}
	return false, nil
}

// lookup resolves one point against one raster: reproject, derive the
// owning pixel and tile, consult the cache, extract the mask byte.
func (d *Dataset) lookup(lon, lat float64, c *workerCache) (bool, error) {
	h := c.handle

	x, y, err := h.transform(lon, lat)
	if err != nil {
		return false, fmt.Errorf("transforming (%g, %g) for %s: %w", lon, lat, h.name, err)
	}

	pixelX := int(math.Floor((x - h.gt[0]) / h.gt[1]))
	pixelY := int(math.Floor((y - h.gt[3]) / h.gt[5]))
	if pixelX < 0 || pixelY < 0 || pixelX >= h.width || pixelY >= h.height {
		return false, fmt.Errorf("%w: pixel (%d, %d) of %s", ErrTileOutOfBounds, pixelX, pixelY, h.name)
	}

	key := TileKey{X: pixelX / d.tileSize, Y: pixelY / d.tileSize}
	data, err := d.tileFor(c, key)
	if err != nil {
		return false, err
	}

	localX := pixelX % d.tileSize
	localY := pixelY % d.tileSize
	return data[localY*d.tileSize+localX] == 1, nil
}

// tileFor returns the decoded tile, populating the worker's cache (or the
// shared cache when configured) on a miss.
func (d *Dataset) tileFor(c *workerCache, key TileKey) ([]byte, error) {
	if d.shared != nil {
		return d.shared.tile(c.handle, key, d.tileSize)
	}

	if c.tiles.Contains(key) {
		cacheHits.Inc()
		return c.tiles.Get(key)
	}
	cacheMisses.Inc()

	data, err := c.handle.readTile(key, d.tileSize)
	if err != nil {
		return nil, err
	}
	c.tiles.Put(key, data)
	d.logger.Debug("loaded tile", "raster", c.handle.name, "tile", key.String())
	return data, nil
}
