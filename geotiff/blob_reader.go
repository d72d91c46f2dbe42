package geotiff

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"gocloud.dev/blob"
)

// BlobReader exposes a mask file stored in an object-store bucket (S3, GCS,
// Azure, ...) as an io.ReadSeeker and io.ReaderAt via gocloud.dev range
// reads.
type BlobReader struct {
	ctx    context.Context
	bucket *blob.Bucket
	key    string
	size   int64

	// mu guards offset for the sequential Read/Seek pair.
	mu     sync.Mutex
	offset int64
}

// NewBlobReader resolves the object's size and returns a range reader over
// it.
func NewBlobReader(ctx context.Context, bucket *blob.Bucket, key string) (*BlobReader, error) {
	attrs, err := bucket.Attributes(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reading attributes of %s: %w", key, err)
	}
	return &BlobReader{ctx: ctx, bucket: bucket, key: key, size: attrs.Size}, nil
}

// Read performs a sequential read at the current offset.
func (r *BlobReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.offset >= r.size {
		return 0, io.EOF
	}
	n, err := r.readRange(p, r.offset)
	r.offset += int64(n)
	return n, err
}

// Seek updates the offset for the next sequential Read.
func (r *BlobReader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = r.offset + offset
	case io.SeekEnd:
		next = r.size + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if next < 0 {
		return 0, errors.New("cannot seek to negative offset")
	}
	r.offset = next
	return r.offset, nil
}

// ReadAt implements io.ReaderAt for stateless, concurrency-safe reads.
func (r *BlobReader) ReadAt(p []byte, off int64) (int, error) {
	return r.readRange(p, off)
}

func (r *BlobReader) readRange(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("invalid offset %d", off)
	}
	if off >= r.size {
		return 0, io.EOF
	}

	length := int64(len(p))
	if off+length > r.size {
		length = r.size - off
	}

	reader, err := r.bucket.NewRangeReader(r.ctx, r.key, off, length, nil)
	if err != nil {
		return 0, fmt.Errorf("creating range reader: %w", err)
	}
	defer reader.Close()

	return io.ReadFull(reader, p[:length])
}
