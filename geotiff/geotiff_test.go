package geotiff_test

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/fbriol/hydrosheds/geotiff"
)

// maskTIFFOptions controls the synthetic mask files built for tests.
type maskTIFFOptions struct {
	tileWidth    int // 0 means stripped layout
	tileHeight   int
	rowsPerStrip int
	compress     bool

	geo              bool
	originX, originY float64
	scaleX, scaleY   float64
	epsg             uint16 // 0 omits the GeoKeyDirectory

	bitsPerSample uint16 // 0 defaults to 8
}

type tiffEntry struct {
	id      uint16
	ftype   uint16
	count   uint32
	payload []byte
}

func shortEntry(id uint16, vals ...uint16) tiffEntry {
	var buf bytes.Buffer
	for _, v := range vals {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	return tiffEntry{id: id, ftype: 3, count: uint32(len(vals)), payload: buf.Bytes()}
}

func longEntry(id uint16, vals ...uint32) tiffEntry {
	var buf bytes.Buffer
	for _, v := range vals {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	return tiffEntry{id: id, ftype: 4, count: uint32(len(vals)), payload: buf.Bytes()}
}

func doubleEntry(id uint16, vals ...float64) tiffEntry {
	var buf bytes.Buffer
	for _, v := range vals {
		binary.Write(&buf, binary.LittleEndian, math.Float64bits(v))
	}
	return tiffEntry{id: id, ftype: 12, count: uint32(len(vals)), payload: buf.Bytes()}
}

// buildMaskTIFF assembles a classic little-endian TIFF holding the given
// single-band 8-bit pixels.
func buildMaskTIFF(t *testing.T, pixels []byte, width, height int, opts maskTIFFOptions) []byte {
	t.Helper()
	if len(pixels) != width*height {
		t.Fatalf("pixel buffer holds %d bytes, want %d", len(pixels), width*height)
	}

	// Cut the image into its native blocks.
	var blocks [][]byte
	if opts.tileWidth > 0 {
		tw, th := opts.tileWidth, opts.tileHeight
		for ty := 0; ty < (height+th-1)/th; ty++ {
			for tx := 0; tx < (width+tw-1)/tw; tx++ {
				block := make([]byte, tw*th)
				for y := 0; y < th; y++ {
					sy := ty*th + y
					if sy >= height {
						break
					}
					for x := 0; x < tw; x++ {
						sx := tx*tw + x
						if sx >= width {
							break
						}
						block[y*tw+x] = pixels[sy*width+sx]
					}
				}
				blocks = append(blocks, block)
			}
		}
	} else {
		rows := opts.rowsPerStrip
		for y := 0; y < height; y += rows {
			n := min(rows, height-y)
			strip := make([]byte, n*width)
			copy(strip, pixels[y*width:(y+n)*width])
			blocks = append(blocks, strip)
		}
	}

	compression := uint16(1)
	if opts.compress {
		compression = 8
		for i, block := range blocks {
			var buf bytes.Buffer
			zw := zlib.NewWriter(&buf)
			zw.Write(block)
			zw.Close()
			blocks[i] = buf.Bytes()
		}
	}

	// Block data sits right after the 8-byte header.
	offsets := make([]uint32, len(blocks))
	counts := make([]uint32, len(blocks))
	pos := uint32(8)
	for i, block := range blocks {
		offsets[i] = pos
		counts[i] = uint32(len(block))
		pos += uint32(len(block))
	}

	bits := opts.bitsPerSample
	if bits == 0 {
		bits = 8
	}
	entries := []tiffEntry{
		longEntry(256, uint32(width)),
		longEntry(257, uint32(height)),
		shortEntry(258, bits),
		shortEntry(259, compression),
		shortEntry(277, 1),
	}
	if opts.tileWidth > 0 {
		entries = append(entries,
			shortEntry(322, uint16(opts.tileWidth)),
			shortEntry(323, uint16(opts.tileHeight)),
			longEntry(324, offsets...),
			longEntry(325, counts...),
		)
	} else {
		entries = append(entries,
			longEntry(273, offsets...),
			longEntry(278, uint32(opts.rowsPerStrip)),
			longEntry(279, counts...),
		)
	}
	if opts.geo {
		entries = append(entries,
			doubleEntry(33550, opts.scaleX, math.Abs(opts.scaleY), 0),
			doubleEntry(33922, 0, 0, 0, opts.originX, opts.originY, 0),
		)
	}
	if opts.epsg != 0 {
		entries = append(entries, shortEntry(34735, 1, 1, 0, 1, 2048, 0, 1, opts.epsg))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	// Oversized payloads follow the block data; the IFD comes last.
	external := new(bytes.Buffer)
	externalBase := pos
	type placed struct {
		entry  tiffEntry
		offset uint32
	}
	var placedEntries []placed
	for _, e := range entries {
		p := placed{entry: e}
		if len(e.payload) > 4 {
			p.offset = externalBase + uint32(external.Len())
			external.Write(e.payload)
		}
		placedEntries = append(placedEntries, p)
	}
	ifdOffset := externalBase + uint32(external.Len())

	out := new(bytes.Buffer)
	out.WriteString("II")
	binary.Write(out, binary.LittleEndian, uint16(42))
	binary.Write(out, binary.LittleEndian, ifdOffset)
	for _, block := range blocks {
		out.Write(block)
	}
	out.Write(external.Bytes())

	binary.Write(out, binary.LittleEndian, uint16(len(placedEntries)))
	for _, p := range placedEntries {
		binary.Write(out, binary.LittleEndian, p.entry.id)
		binary.Write(out, binary.LittleEndian, p.entry.ftype)
		binary.Write(out, binary.LittleEndian, p.entry.count)
		if len(p.entry.payload) > 4 {
			binary.Write(out, binary.LittleEndian, p.offset)
		} else {
			inline := make([]byte, 4)
			copy(inline, p.entry.payload)
			out.Write(inline)
		}
	}
	binary.Write(out, binary.LittleEndian, uint32(0)) // no further IFDs

	return out.Bytes()
}

// testMaskPixels returns a width x height mask with water at (300, 300).
func testMaskPixels(width, height int) []byte {
	pixels := make([]byte, width*height)
	pixels[300*width+300] = 1
	return pixels
}

func defaultGeoOptions() maskTIFFOptions {
	return maskTIFFOptions{
		tileWidth:  256,
		tileHeight: 256,
		geo:        true,
		originX:    0,
		originY:    512,
		scaleX:     1,
		scaleY:     -1,
		epsg:       4326,
	}
}

func TestOpenTiled(t *testing.T) {
	data := buildMaskTIFF(t, testMaskPixels(512, 512), 512, 512, defaultGeoOptions())

	g, err := geotiff.Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	width, height := g.Dimensions()
	if width != 512 || height != 512 {
		t.Errorf("Dimensions() = %dx%d, want 512x512", width, height)
	}
	if g.EPSG() != 4326 {
		t.Errorf("EPSG() = %d, want 4326", g.EPSG())
	}

	gt, err := g.GeoTransform()
	if err != nil {
		t.Fatalf("GeoTransform: %v", err)
	}
	if gt != [6]float64{0, 1, 0, 512, 0, -1} {
		t.Errorf("GeoTransform() = %v", gt)
	}
}

func TestReadBlockSinglePixel(t *testing.T) {
	data := buildMaskTIFF(t, testMaskPixels(512, 512), 512, 512, defaultGeoOptions())
	g, err := geotiff.Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	buf := make([]byte, 1)
	if err := g.ReadBlock(1, 300, 300, 1, 1, buf, 1, 1); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if buf[0] != 1 {
		t.Errorf("pixel (300, 300) = %d, want 1", buf[0])
	}

	if err := g.ReadBlock(1, 0, 0, 1, 1, buf, 1, 1); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if buf[0] != 0 {
		t.Errorf("pixel (0, 0) = %d, want 0", buf[0])
	}
}

func TestReadBlockAcrossTiles(t *testing.T) {
	// A window straddling the internal 256-pixel tile boundary.
	data := buildMaskTIFF(t, testMaskPixels(512, 512), 512, 512, defaultGeoOptions())
	g, err := geotiff.Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	const size = 100
	buf := make([]byte, size*size)
	if err := g.ReadBlock(1, 250, 250, size, size, buf, size, size); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	for i, v := range buf {
		x, y := 250+i%size, 250+i/size
		want := byte(0)
		if x == 300 && y == 300 {
			want = 1
		}
		if v != want {
			t.Fatalf("pixel (%d, %d) = %d, want %d", x, y, v, want)
		}
	}
}

func TestReadBlockLeavesPaddingUntouched(t *testing.T) {
	opts := defaultGeoOptions()
	opts.tileWidth, opts.tileHeight = 64, 64

	pixels := make([]byte, 100*100)
	for i := range pixels {
		pixels[i] = 1
	}
	data := buildMaskTIFF(t, pixels, 100, 100, opts)
	g, err := geotiff.Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Clamped edge read: 36x36 valid pixels into a 64x64 destination the
	// caller pre-filled. Everything outside the window must survive.
	buf := bytes.Repeat([]byte{0xEE}, 64*64)
	if err := g.ReadBlock(1, 64, 64, 36, 36, buf, 64, 64); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			want := byte(0xEE)
			if x < 36 && y < 36 {
				want = 1
			}
			if buf[y*64+x] != want {
				t.Fatalf("dst (%d, %d) = %#x, want %#x", x, y, buf[y*64+x], want)
			}
		}
	}
}

func TestReadBlockBounds(t *testing.T) {
	data := buildMaskTIFF(t, testMaskPixels(512, 512), 512, 512, defaultGeoOptions())
	g, err := geotiff.Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	buf := make([]byte, 256*256)
	if err := g.ReadBlock(1, 512, 0, 1, 1, buf, 1, 1); err == nil {
		t.Error("read past the right edge must fail")
	}
	if err := g.ReadBlock(1, -1, 0, 1, 1, buf, 1, 1); err == nil {
		t.Error("negative offset must fail")
	}
	if err := g.ReadBlock(1, 0, 0, 300, 1, buf, 256, 256); err == nil {
		t.Error("window wider than the destination must fail")
	}
	if err := g.ReadBlock(2, 0, 0, 1, 1, buf, 1, 1); err == nil {
		t.Error("band 2 must fail for a single-band mask")
	}
}

func TestReadBlockDeflate(t *testing.T) {
	opts := defaultGeoOptions()
	opts.compress = true
	data := buildMaskTIFF(t, testMaskPixels(512, 512), 512, 512, opts)

	g, err := geotiff.Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	buf := make([]byte, 1)
	if err := g.ReadBlock(1, 300, 300, 1, 1, buf, 1, 1); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if buf[0] != 1 {
		t.Errorf("pixel (300, 300) = %d, want 1", buf[0])
	}
}

func TestReadBlockStripped(t *testing.T) {
	const width, height = 40, 50
	pixels := make([]byte, width*height)
	for y := 0; y < height; y++ {
		pixels[y*width+(y%width)] = 1 // one water pixel per row, moving diagonally
	}
	data := buildMaskTIFF(t, pixels, width, height, maskTIFFOptions{rowsPerStrip: 20})

	g, err := geotiff.Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Window crossing two strip boundaries, including the short last strip.
	buf := make([]byte, width*height)
	if err := g.ReadBlock(1, 0, 10, width, 40, buf, width, 40); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	for y := 0; y < 40; y++ {
		for x := 0; x < width; x++ {
			want := byte(0)
			if x == (y+10)%width {
				want = 1
			}
			if buf[y*width+x] != want {
				t.Fatalf("pixel (%d, %d) = %d, want %d", x, y+10, buf[y*width+x], want)
			}
		}
	}
}

func TestOpenNoGeoreference(t *testing.T) {
	pixels := make([]byte, 16*16)
	data := buildMaskTIFF(t, pixels, 16, 16, maskTIFFOptions{tileWidth: 16, tileHeight: 16})

	g, err := geotiff.Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if g.EPSG() != 4326 {
		t.Errorf("EPSG() = %d, want the 4326 default", g.EPSG())
	}
	if _, err := g.GeoTransform(); !errors.Is(err, geotiff.ErrNoGeoreference) {
		t.Fatalf("GeoTransform returned %v, want ErrNoGeoreference", err)
	}
}

func TestOpenRejects(t *testing.T) {
	t.Run("bad magic", func(t *testing.T) {
		if _, err := geotiff.Open(bytes.NewReader([]byte("not a tiff at all"))); err == nil {
			t.Fatal("Open should reject a non-TIFF stream")
		}
	})

	t.Run("16-bit samples", func(t *testing.T) {
		opts := defaultGeoOptions()
		opts.tileWidth, opts.tileHeight = 16, 16
		opts.bitsPerSample = 16
		data := buildMaskTIFF(t, make([]byte, 16*16), 16, 16, opts)
		if _, err := geotiff.Open(bytes.NewReader(data)); err == nil {
			t.Fatal("Open should reject 16-bit samples")
		}
	})
}
