package watermask

import (
	"fmt"

	"github.com/ctessum/geom/proj"
)

// epsgProj4 maps the reference-system codes this engine accepts to proj4
// definitions understood by ctessum/geom. HydroSHEDS masks ship in
// EPSG:4326, so the identity fast path in epsgTransform covers the common
// case and this table only matters for reprojected sources.
var epsgProj4 = map[int]string{
	4326: "+proj=longlat +datum=WGS84 +no_defs",
	4269: "+proj=longlat +datum=NAD83 +no_defs",
	4258: "+proj=longlat +ellps=GRS80 +no_defs",
	3857: "+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +nadgrids=@null +no_defs",
}

// identityTransform passes coordinates through unchanged.
func identityTransform(x, y float64) (float64, float64, error) {
	return x, y, nil
}

// epsgTransform is the default TransformFactory. It returns the identity
// when source and target codes match, otherwise it builds a proj transform
// between the two definitions. Unknown codes fail with ErrUnknownEPSG.
func epsgTransform(sourceEPSG, targetEPSG int) (Transformer, error) {
	if sourceEPSG == targetEPSG {
		return identityTransform, nil
	}

	src, ok := epsgProj4[sourceEPSG]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEPSG, sourceEPSG)
	}
	dst, ok := epsgProj4[targetEPSG]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEPSG, targetEPSG)
	}

	srcSR, err := proj.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parsing source reference system %d: %w", sourceEPSG, err)
	}
	dstSR, err := proj.Parse(dst)
	if err != nil {
		return nil, fmt.Errorf("parsing target reference system %d: %w", targetEPSG, err)
	}

	t, err := srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, fmt.Errorf("creating transform %d -> %d: %w", sourceEPSG, targetEPSG, err)
	}
	return Transformer(t), nil
}
