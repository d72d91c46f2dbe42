// Package geotiff reads single-band 8-bit mask rasters from tiled or
// stripped (Geo)TIFF files, including BigTIFF. It exposes the raster
// geometry (geotransform, dimensions, native EPSG code) and rectangular
// block reads; callers are expected to layer their own caching on top.
//
// The reader must implement io.ReadSeeker, and io.ReaderAt for block
// access. Local files, HTTPReader and BlobReader all qualify.
package geotiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrNoGeoreference is returned by GeoTransform when the file carries no
// ModelPixelScale/ModelTiepoint tags.
var ErrNoGeoreference = errors.New("geotiff: file has no georeferencing tags")

// Raster is a parsed mask raster. Methods that touch the underlying reader
// are not safe for concurrent use; callers serialize physical reads.
type Raster struct {
	reader    io.ReadSeeker
	byteOrder binary.ByteOrder
	isBigTIFF bool

	width  int
	height int

	// Blocks are the file's native read unit: TIFF tiles when the file is
	// tiled, full-width strips otherwise.
	tiled        bool
	blockWidth   int
	blockHeight  int
	blocksAcross int
	blockOffsets []uint64
	blockCounts  []uint64

	compression uint16
	predictor   uint16

	hasGeo  bool
	originX float64
	originY float64
	scaleX  float64
	scaleY  float64
	epsg    int
}

// Open parses the directory of a mask TIFF. Only the first IFD is read: for
// a Cloud Optimized GeoTIFF that is the full-resolution image, and
// overviews are of no use for point queries.
func Open(r io.ReadSeeker) (*Raster, error) {
	dir, err := readDirectory(r)
	if err != nil {
		return nil, fmt.Errorf("geotiff: reading directory: %w", err)
	}

	g := &Raster{
		reader:    r,
		byteOrder: dir.byteOrder,
		isBigTIFF: dir.isBigTIFF,
		epsg:      4326,
	}

	width, ok := dir.uintValue(tagImageWidth)
	if !ok {
		return nil, errors.New("geotiff: missing or invalid tag: ImageWidth")
	}
	height, ok := dir.uintValue(tagImageLength)
	if !ok {
		return nil, errors.New("geotiff: missing or invalid tag: ImageLength")
	}
	g.width = int(width)
	g.height = int(height)

	if bps, ok := dir.uintValue(tagBitsPerSample); ok && bps != 8 {
		return nil, fmt.Errorf("geotiff: unsupported bits per sample %d, mask rasters are 8-bit", bps)
	}
	if spp, ok := dir.uintValue(tagSamplesPerPixel); ok && spp != 1 {
		return nil, fmt.Errorf("geotiff: unsupported samples per pixel %d, mask rasters are single band", spp)
	}

	g.compression = compressionNone
	if comp, ok := dir.uintValue(tagCompression); ok {
		g.compression = uint16(comp)
	}
	switch g.compression {
	case compressionNone, compressionDeflate, compressionDeflateOld:
	default:
		return nil, fmt.Errorf("geotiff: unsupported compression type %d", g.compression)
	}

	g.predictor = predictorNone
	if pred, ok := dir.uintValue(tagPredictor); ok {
		g.predictor = uint16(pred)
	}

	if err := g.readLayout(dir); err != nil {
		return nil, err
	}
	g.readGeoreference(dir)

	return g, nil
}

// readLayout resolves the tile or strip structure of the file.
func (g *Raster) readLayout(dir *directory) error {
	if tw, ok := dir.uintValue(tagTileWidth); ok {
		th, ok := dir.uintValue(tagTileLength)
		if !ok {
			return errors.New("geotiff: missing or invalid tag: TileLength")
		}
		offsets, ok := dir.uintSlice(tagTileOffsets)
		if !ok {
			return errors.New("geotiff: missing or invalid tag: TileOffsets")
		}
		counts, ok := dir.uintSlice(tagTileByteCounts)
		if !ok {
			return errors.New("geotiff: missing or invalid tag: TileByteCounts")
		}
		g.tiled = true
		g.blockWidth = int(tw)
		g.blockHeight = int(th)
		g.blockOffsets = offsets
		g.blockCounts = counts
	} else {
		rows, ok := dir.uintValue(tagRowsPerStrip)
		if !ok || rows == 0 {
			rows = uint64(g.height)
		}
		offsets, ok := dir.uintSlice(tagStripOffsets)
		if !ok {
			return errors.New("geotiff: missing or invalid tag: StripOffsets")
		}
		counts, ok := dir.uintSlice(tagStripByteCounts)
		if !ok {
			return errors.New("geotiff: missing or invalid tag: StripByteCounts")
		}
		g.blockWidth = g.width
		g.blockHeight = int(rows)
		g.blockOffsets = offsets
		g.blockCounts = counts
	}

	if g.blockWidth <= 0 || g.blockHeight <= 0 {
		return fmt.Errorf("geotiff: invalid block size %dx%d", g.blockWidth, g.blockHeight)
	}
	g.blocksAcross = (g.width + g.blockWidth - 1) / g.blockWidth
	blocksDown := (g.height + g.blockHeight - 1) / g.blockHeight
	if want := g.blocksAcross * blocksDown; len(g.blockOffsets) < want || len(g.blockCounts) < want {
		return fmt.Errorf("geotiff: expected %d blocks, file lists %d", want, len(g.blockOffsets))
	}
	return nil
}

// readGeoreference extracts the affine origin/scale and native EPSG code.
// Missing georeferencing is not fatal here; GeoTransform reports it.
func (g *Raster) readGeoreference(dir *directory) {
	scale, okScale := dir.floatSlice(tagModelPixelScale)
	tie, okTie := dir.floatSlice(tagModelTiepoint)
	if okScale && okTie && len(scale) >= 2 && len(tie) >= 5 {
		g.scaleX = scale[0]
		g.scaleY = scale[1]
		// North-up convention: the vertical scale is negative.
		if g.scaleY > 0 {
			g.scaleY = -g.scaleY
		}
		// The tiepoint anchors pixel (i, j) at a projected coordinate;
		// walk it back to pixel (0, 0).
		g.originX = tie[3] - tie[0]*g.scaleX
		g.originY = tie[4] - tie[1]*g.scaleY
		g.hasGeo = true
	}

	// The GeoKeyDirectory is a SHORT array: a 4-value header followed by
	// 4-value key entries (id, location, count, value).
	keys, ok := dir.uintSlice(tagGeoKeyDirectory)
	if !ok || len(keys) < 4 {
		return
	}
	for i := 4; i+3 < len(keys); i += 4 {
		id, loc, value := keys[i], keys[i+1], keys[i+3]
		if loc != 0 {
			continue // value stored in another tag, not a plain code
		}
		switch id {
		case geoKeyGeographicType, geoKeyProjectedCSType:
			if value > 0 && value < 32767 {
				g.epsg = int(value)
			}
		}
	}
}

// GeoTransform returns the six affine coefficients mapping pixel row/column
// to projected coordinates, GDAL-style.
func (g *Raster) GeoTransform() ([6]float64, error) {
	if !g.hasGeo {
		return [6]float64{}, ErrNoGeoreference
	}
	return [6]float64{g.originX, g.scaleX, 0, g.originY, 0, g.scaleY}, nil
}

// Dimensions returns the raster width and height in pixels.
func (g *Raster) Dimensions() (int, int) {
	return g.width, g.height
}

// EPSG returns the native reference-system code, 4326 when the file does
// not say otherwise.
func (g *Raster) EPSG() int {
	return g.epsg
}

// Close closes the underlying reader when it supports closing.
func (g *Raster) Close() error {
	if c, ok := g.reader.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ReadBlock reads the width x height rectangle at (xOff, yOff) of band into
// dst, laid out row-major as dstWidth x dstHeight. Bytes of dst outside the
// rectangle are left untouched, which is how callers zero-pad edge tiles.
func (g *Raster) ReadBlock(band, xOff, yOff, width, height int, dst []byte, dstWidth, dstHeight int) error {
	if band != 1 {
		return fmt.Errorf("geotiff: unsupported band %d, mask rasters are single band", band)
	}
	if xOff < 0 || yOff < 0 || width <= 0 || height <= 0 ||
		xOff+width > g.width || yOff+height > g.height {
		return fmt.Errorf("geotiff: read window %dx%d at (%d, %d) exceeds raster %dx%d",
			width, height, xOff, yOff, g.width, g.height)
	}
	if width > dstWidth || height > dstHeight {
		return fmt.Errorf("geotiff: read window %dx%d exceeds destination %dx%d", width, height, dstWidth, dstHeight)
	}
	if len(dst) < dstWidth*dstHeight {
		return fmt.Errorf("geotiff: destination buffer holds %d bytes, need %d", len(dst), dstWidth*dstHeight)
	}

	for by := yOff / g.blockHeight; by <= (yOff+height-1)/g.blockHeight; by++ {
		for bx := xOff / g.blockWidth; bx <= (xOff+width-1)/g.blockWidth; bx++ {
			if err := g.copyBlock(bx, by, xOff, yOff, width, height, dst, dstWidth); err != nil {
				return err
			}
		}
	}
	return nil
}

// copyBlock decodes one native block and copies its overlap with the read
// window into dst.
func (g *Raster) copyBlock(bx, by, xOff, yOff, width, height int, dst []byte, dstWidth int) error {
	data, blockRows, err := g.decodeBlock(bx, by)
	if err != nil {
		return err
	}

	blockX := bx * g.blockWidth
	blockY := by * g.blockHeight

	x0 := max(xOff, blockX)
	x1 := min(xOff+width, blockX+g.blockWidth)
	y0 := max(yOff, blockY)
	y1 := min(yOff+height, blockY+blockRows)

	for y := y0; y < y1; y++ {
		src := (y-blockY)*g.blockWidth + (x0 - blockX)
		if src+(x1-x0) > len(data) {
			break // writer truncated the edge block, remaining rows stay zero
		}
		out := (y-yOff)*dstWidth + (x0 - xOff)
		copy(dst[out:out+(x1-x0)], data[src:src+(x1-x0)])
	}
	return nil
}

// decodeBlock fetches and decompresses one native block, returning its
// bytes and the number of valid rows it holds.
func (g *Raster) decodeBlock(bx, by int) ([]byte, int, error) {
	idx := by*g.blocksAcross + bx
	if idx < 0 || idx >= len(g.blockOffsets) {
		return nil, 0, fmt.Errorf("geotiff: block index %d out of range", idx)
	}

	readerAt, ok := g.reader.(io.ReaderAt)
	if !ok {
		return nil, 0, errors.New("geotiff: reader does not implement io.ReaderAt")
	}

	raw := make([]byte, g.blockCounts[idx])
	if _, err := readerAt.ReadAt(raw, int64(g.blockOffsets[idx])); err != nil {
		return nil, 0, fmt.Errorf("geotiff: reading block %d: %w", idx, err)
	}

	var data []byte
	switch g.compression {
	case compressionNone:
		data = raw
	case compressionDeflate, compressionDeflateOld:
		z, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, 0, fmt.Errorf("geotiff: opening deflate stream of block %d: %w", idx, err)
		}
		defer z.Close()
		data, err = io.ReadAll(z)
		if err != nil {
			return nil, 0, fmt.Errorf("geotiff: decompressing block %d: %w", idx, err)
		}
	}

	// Strips at the bottom edge carry fewer rows; tiles are full size.
	blockRows := g.blockHeight
	if !g.tiled {
		if remaining := g.height - by*g.blockHeight; remaining < blockRows {
			blockRows = remaining
		}
	}

	if g.predictor == predictorHorizontal {
		undoHorizontalPrediction(data, g.blockWidth)
	}
	return data, blockRows, nil
}

// undoHorizontalPrediction reverses per-row byte differencing in place.
func undoHorizontalPrediction(data []byte, rowWidth int) {
	if rowWidth <= 1 {
		return
	}
	for row := 0; row+rowWidth <= len(data); row += rowWidth {
		for x := 1; x < rowWidth; x++ {
			data[row+x] += data[row+x-1]
		}
	}
}
