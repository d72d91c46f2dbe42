package geotiff

// TIFF header magic values.
const (
	orderLittleEndian = 0x4949 // "II"
	orderBigEndian    = 0x4D4D // "MM"

	tiffIdentifier    = 42
	bigTiffIdentifier = 43
	bigTiffBytesize   = 8
)

// tag identifies a TIFF/GeoTIFF directory entry.
type tag uint16

const (
	tagImageWidth      tag = 256
	tagImageLength     tag = 257
	tagBitsPerSample   tag = 258
	tagCompression     tag = 259
	tagStripOffsets    tag = 273
	tagSamplesPerPixel tag = 277
	tagRowsPerStrip    tag = 278
	tagStripByteCounts tag = 279
	tagPredictor       tag = 317
	tagTileWidth       tag = 322
	tagTileLength      tag = 323
	tagTileOffsets     tag = 324
	tagTileByteCounts  tag = 325
	tagSampleFormat    tag = 339

	tagModelPixelScale tag = 33550
	tagModelTiepoint   tag = 33922
	tagGeoKeyDirectory tag = 34735
	tagGeoDoubleParams tag = 34736
	tagGeoASCIIParams  tag = 34737
	tagGDALNoData      tag = 42113
)

// GeoKey identifiers carried inside the GeoKeyDirectory tag.
const (
	geoKeyGeographicType  = 2048
	geoKeyProjectedCSType = 3072
)

// Compression schemes supported for mask tiles.
const (
	compressionNone       = 1
	compressionDeflate    = 8
	compressionDeflateOld = 32946
)

// Predictor schemes applied before compression.
const (
	predictorNone       = 1
	predictorHorizontal = 2
)

// fieldType is the on-disk data type of a directory entry.
type fieldType uint16

const (
	typeByte      fieldType = 1
	typeASCII     fieldType = 2
	typeShort     fieldType = 3
	typeLong      fieldType = 4
	typeRational  fieldType = 5
	typeSByte     fieldType = 6
	typeUndefined fieldType = 7
	typeSShort    fieldType = 8
	typeSLong     fieldType = 9
	typeSRational fieldType = 10
	typeFloat     fieldType = 11
	typeDouble    fieldType = 12
	typeLong8     fieldType = 16
	typeSLong8    fieldType = 17
	typeIFD8      fieldType = 18
)

// fieldTypeSize maps a field type to its size in bytes, 0 when unknown.
var fieldTypeSize = map[fieldType]uint64{
	typeByte:      1,
	typeASCII:     1,
	typeShort:     2,
	typeLong:      4,
	typeRational:  8,
	typeSByte:     1,
	typeUndefined: 1,
	typeSShort:    2,
	typeSLong:     4,
	typeSRational: 8,
	typeFloat:     4,
	typeDouble:    8,
	typeLong8:     8,
	typeSLong8:    8,
	typeIFD8:      8,
}
