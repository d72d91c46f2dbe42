package watermask

import (
	"fmt"
	"sync"
	"time"
)

// Raster is the contract the query engine requires from a mask source. The
// geotiff package implements it for tiled and stripped 8-bit GeoTIFF files;
// any backend able to serve rectangular byte-block reads can stand in.
type Raster interface {
	// GeoTransform returns the six affine coefficients mapping pixel
	// row/column to projected coordinates, or an error when the source
	// carries no georeferencing.
	GeoTransform() ([6]float64, error)

	// Dimensions returns the raster width and height in pixels.
	Dimensions() (width, height int)

	// EPSG returns the code of the raster's native reference system.
	EPSG() int

	// ReadBlock reads a width x height rectangle of band into dst, laid out
	// row-major as dstWidth x dstHeight. Rows and columns of dst beyond the
	// requested rectangle are left untouched.
	ReadBlock(band, xOff, yOff, width, height int, dst []byte, dstWidth, dstHeight int) error

	// Close releases the underlying resource.
	Close() error
}

// Transformer maps a coordinate from the query reference system into a
// raster's native system. It matches the shape of proj.Transformer so
// ctessum/geom transforms slot in directly.
type Transformer func(x, y float64) (float64, float64, error)

// TransformFactory builds a Transformer from the caller's reference-system
// code into the raster's native code. The default factory is EPSG based
// (see transform.go); tests inject failing or identity factories.
type TransformFactory func(sourceEPSG, targetEPSG int) (Transformer, error)

// rasterHandle bundles everything the engine needs per mask source. All
// fields are immutable after construction; mu serializes physical block
// reads on the shared resource, and nothing else.
type rasterHandle struct {
	name      string
	raster    Raster
	transform Transformer
	gt        [6]float64
	bbox      BBox
	width     int
	height    int

	mu sync.Mutex
}

// newRasterHandle validates a source and precomputes its routing state.
func newRasterHandle(name string, r Raster, sourceEPSG int, factory TransformFactory) (*rasterHandle, error) {
	gt, err := r.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("reading geotransform of %s: %w", name, err)
	}
	width, height := r.Dimensions()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("raster %s has invalid dimensions %dx%d", name, width, height)
	}

	transform, err := factory(sourceEPSG, r.EPSG())
	if err != nil {
		return nil, fmt.Errorf("creating transform for %s: %w", name, err)
	}

	return &rasterHandle{
		name:      name,
		raster:    r,
		transform: transform,
		gt:        gt,
		bbox:      newBBox(gt, width, height),
		width:     width,
		height:    height,
	}, nil
}

// readTile reads the tile's clamped rectangle into a zero-filled
// tileSize x tileSize buffer, so edge tiles come back zero padded on the
// right and bottom. The raster lock covers only the physical read.
func (h *rasterHandle) readTile(key TileKey, tileSize int) ([]byte, error) {
	xOff := key.X * tileSize
	yOff := key.Y * tileSize
	if xOff < 0 || yOff < 0 || xOff >= h.width || yOff >= h.height {
		return nil, fmt.Errorf("%w: tile %s of %s", ErrTileOutOfBounds, key, h.name)
	}
	width := min(tileSize, h.width-xOff)
	height := min(tileSize, h.height-yOff)

	data := make([]byte, tileSize*tileSize)

	start := time.Now()
	h.mu.Lock()
	err := h.raster.ReadBlock(1, xOff, yOff, width, height, data, tileSize, tileSize)
	h.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("reading tile %s of %s: %w", key, h.name, err)
	}
	tileReads.WithLabelValues(h.name).Inc()
	tileReadSeconds.Observe(time.Since(start).Seconds())

	return data, nil
}
