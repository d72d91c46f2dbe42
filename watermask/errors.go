package watermask

import "errors"

// Construction-time errors abort Open/New entirely: no partially built
// Dataset is ever returned. Per-point errors surface from IsWater after all
// workers of the batch have finished.
var (
	// ErrSizeMismatch is returned when the longitude and latitude slices
	// passed to a batch query have different lengths.
	ErrSizeMismatch = errors.New("lon and lat must have the same length")

	// ErrUnknownEPSG is returned when the requested reference-system code is
	// not recognized by the transform factory.
	ErrUnknownEPSG = errors.New("unknown EPSG code")

	// ErrTileNotFound is returned by TileCache.Get for an absent key.
	ErrTileNotFound = errors.New("tile not found in cache")

	// ErrTileOutOfBounds is returned when a query maps to a tile whose
	// origin lies outside the raster extent.
	ErrTileOutOfBounds = errors.New("requested tile is out of bounds")
)
