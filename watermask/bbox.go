package watermask

// BBox is the axis-aligned geographic extent of a raster, derived once from
// its geotransform and pixel dimensions. It is immutable after construction.
type BBox struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

// newBBox derives the extent from the six geotransform coefficients and the
// raster pixel dimensions. The vertical coefficient gt[5] is conventionally
// negative for north-up rasters, which yields MinY < MaxY; a source with an
// unexpected sign produces an inverted box that Contains will never match.
func newBBox(gt [6]float64, width, height int) BBox {
	return BBox{
		MinX: gt[0],
		MaxX: gt[0] + gt[1]*float64(width),
		MinY: gt[3] + gt[5]*float64(height),
		MaxY: gt[3],
	}
}

// Contains reports whether the point lies inside the box, edges included.
func (b BBox) Contains(lon, lat float64) bool {
	return lon >= b.MinX && lon <= b.MaxX && lat >= b.MinY && lat <= b.MaxY
}
