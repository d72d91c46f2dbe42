package geotiff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// directory holds the decoded entries of the first image file directory.
type directory struct {
	byteOrder binary.ByteOrder
	isBigTIFF bool
	entries   map[tag]entryValue
}

// entryValue is one decoded directory entry. Integer-like field types land
// in ints, floating types in floats, ASCII in str.
type entryValue struct {
	ftype  fieldType
	ints   []uint64
	floats []float64
	str    string
}

// header is the fixed-size TIFF preamble.
type header struct {
	byteOrder binary.ByteOrder
	isBigTIFF bool
	ifdOffset uint64
}

func readHeader(r io.Reader) (header, error) {
	var h header

	var order uint16
	if err := binary.Read(r, binary.BigEndian, &order); err != nil {
		return h, err
	}
	switch order {
	case orderLittleEndian:
		h.byteOrder = binary.LittleEndian
	case orderBigEndian:
		h.byteOrder = binary.BigEndian
	default:
		return h, fmt.Errorf("invalid byte order marker %#x", order)
	}

	var identifier uint16
	if err := binary.Read(r, h.byteOrder, &identifier); err != nil {
		return h, err
	}
	switch identifier {
	case tiffIdentifier:
		var offset32 uint32
		if err := binary.Read(r, h.byteOrder, &offset32); err != nil {
			return h, err
		}
		h.ifdOffset = uint64(offset32)
	case bigTiffIdentifier:
		h.isBigTIFF = true
		var bytesize, reserved uint16
		if err := binary.Read(r, h.byteOrder, &bytesize); err != nil {
			return h, err
		}
		if bytesize != bigTiffBytesize {
			return h, fmt.Errorf("invalid BigTIFF bytesize %d", bytesize)
		}
		if err := binary.Read(r, h.byteOrder, &reserved); err != nil {
			return h, err
		}
		if err := binary.Read(r, h.byteOrder, &h.ifdOffset); err != nil {
			return h, err
		}
	default:
		return h, fmt.Errorf("invalid tiff identifier %d", identifier)
	}
	return h, nil
}

// readDirectory parses the header and the first IFD. Subsequent IFDs hold
// overviews and are deliberately ignored.
func readDirectory(r io.ReadSeeker) (*directory, error) {
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if h.ifdOffset == 0 {
		return nil, errors.New("file contains no IFDs")
	}
	if _, err := r.Seek(int64(h.ifdOffset), io.SeekStart); err != nil {
		return nil, err
	}

	var numEntries uint64
	if h.isBigTIFF {
		if err := binary.Read(r, h.byteOrder, &numEntries); err != nil {
			return nil, err
		}
	} else {
		var n16 uint16
		if err := binary.Read(r, h.byteOrder, &n16); err != nil {
			return nil, err
		}
		numEntries = uint64(n16)
	}

	entryLen := 12
	inlineSize := uint64(4)
	if h.isBigTIFF {
		entryLen = 20
		inlineSize = 8
	}
	block := make([]byte, entryLen*int(numEntries))
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, fmt.Errorf("reading IFD block: %w", err)
	}

	dir := &directory{
		byteOrder: h.byteOrder,
		isBigTIFF: h.isBigTIFF,
		entries:   make(map[tag]entryValue, numEntries),
	}

	for i := uint64(0); i < numEntries; i++ {
		entry := block[i*uint64(entryLen) : (i+1)*uint64(entryLen)]
		id := tag(h.byteOrder.Uint16(entry[0:2]))
		ftype := fieldType(h.byteOrder.Uint16(entry[2:4]))

		size := fieldTypeSize[ftype]
		if size == 0 {
			continue // unrecognized field type, skip the entry
		}

		var count, valueOffset uint64
		var inline []byte
		if h.isBigTIFF {
			count = h.byteOrder.Uint64(entry[4:12])
			valueOffset = h.byteOrder.Uint64(entry[12:20])
			inline = entry[12:20]
		} else {
			count = uint64(h.byteOrder.Uint32(entry[4:8]))
			valueOffset = uint64(h.byteOrder.Uint32(entry[8:12]))
			inline = entry[8:12]
		}

		var valueReader io.Reader
		if total := size * count; total <= inlineSize {
			valueReader = bytes.NewReader(inline[:total])
		} else {
			readerAt, ok := r.(io.ReaderAt)
			if !ok {
				return nil, errors.New("reader does not implement io.ReaderAt")
			}
			valueReader = io.NewSectionReader(readerAt, int64(valueOffset), int64(total))
		}

		value, err := decodeEntry(valueReader, ftype, count, h.byteOrder)
		if err != nil {
			return nil, fmt.Errorf("decoding tag %d: %w", id, err)
		}
		dir.entries[id] = value
	}
	return dir, nil
}

// decodeEntry reads count values of the given field type into a normalized
// entryValue.
func decodeEntry(r io.Reader, ftype fieldType, count uint64, order binary.ByteOrder) (entryValue, error) {
	v := entryValue{ftype: ftype}
	switch ftype {
	case typeByte, typeUndefined:
		p := make([]uint8, count)
		if err := binary.Read(r, order, p); err != nil {
			return v, err
		}
		v.ints = make([]uint64, count)
		for i, b := range p {
			v.ints[i] = uint64(b)
		}
	case typeASCII:
		p := make([]uint8, count)
		if err := binary.Read(r, order, p); err != nil {
			return v, err
		}
		v.str = string(bytes.Trim(p, "\x00"))
	case typeShort:
		p := make([]uint16, count)
		if err := binary.Read(r, order, p); err != nil {
			return v, err
		}
		v.ints = make([]uint64, count)
		for i, s := range p {
			v.ints[i] = uint64(s)
		}
	case typeLong:
		p := make([]uint32, count)
		if err := binary.Read(r, order, p); err != nil {
			return v, err
		}
		v.ints = make([]uint64, count)
		for i, l := range p {
			v.ints[i] = uint64(l)
		}
	case typeLong8, typeIFD8:
		v.ints = make([]uint64, count)
		if err := binary.Read(r, order, v.ints); err != nil {
			return v, err
		}
	case typeFloat:
		p := make([]float32, count)
		if err := binary.Read(r, order, p); err != nil {
			return v, err
		}
		v.floats = make([]float64, count)
		for i, f := range p {
			v.floats[i] = float64(f)
		}
	case typeDouble:
		v.floats = make([]float64, count)
		if err := binary.Read(r, order, v.floats); err != nil {
			return v, err
		}
	default:
		// Signed and rational types never occur in mask rasters; keep the
		// entry present but empty so lookups simply miss.
	}
	return v, nil
}

// uintValue returns the first integer value of the tag.
func (d *directory) uintValue(id tag) (uint64, bool) {
	v, ok := d.entries[id]
	if !ok || len(v.ints) == 0 {
		return 0, false
	}
	return v.ints[0], true
}

// uintSlice returns all integer values of the tag.
func (d *directory) uintSlice(id tag) ([]uint64, bool) {
	v, ok := d.entries[id]
	if !ok || len(v.ints) == 0 {
		return nil, false
	}
	return v.ints, true
}

// floatSlice returns all floating-point values of the tag.
func (d *directory) floatSlice(id tag) ([]float64, bool) {
	v, ok := d.entries[id]
	if !ok || len(v.floats) == 0 {
		return nil, false
	}
	return v.floats, true
}
