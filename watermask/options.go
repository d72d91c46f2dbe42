package watermask

import "log/slog"

const (
	// DefaultEPSG is the reference system query coordinates are expressed
	// in unless overridden: plain longitude/latitude on WGS84.
	DefaultEPSG = 4326

	// DefaultTileSize is the edge length in pixels of cached tiles.
	DefaultTileSize = 256

	// DefaultCacheTiles is the per-raster tile cache capacity.
	DefaultCacheTiles = 4096
)

// Option configures a Dataset at construction. The tile size, cache
// capacity and reference code are fixed once the Dataset is built.
type Option func(*Dataset)

// WithEPSG sets the reference-system code of the query coordinates.
func WithEPSG(code int) Option {
	return func(d *Dataset) { d.epsg = code }
}

// WithTileSize sets the cached tile edge length in pixels.
func WithTileSize(size int) Option {
	return func(d *Dataset) { d.tileSize = size }
}

// WithCacheTiles sets how many tiles each per-worker cache may hold.
func WithCacheTiles(tiles int) Option {
	return func(d *Dataset) { d.cacheTiles = tiles }
}

// WithLogger sets the logger used for raster registration and tile loads.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dataset) { d.logger = logger }
}

// WithTransformFactory replaces the default EPSG transform factory.
func WithTransformFactory(factory TransformFactory) Option {
	return func(d *Dataset) { d.factory = factory }
}

// WithSharedCache replaces the ephemeral per-worker tile caches with a
// single dataset-lifetime cache shared by all calls and workers. maxSize is
// the cache weight limit in tiles, itemsToPrune how many entries an
// overflow evicts at once. Query results are identical either way; only the
// hit rate across calls changes.
func WithSharedCache(maxSize int64, itemsToPrune uint32) Option {
	return func(d *Dataset) { d.shared = newSharedTiles(maxSize, itemsToPrune) }
}
