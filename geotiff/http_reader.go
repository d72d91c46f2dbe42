package geotiff

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// HTTPReader exposes a remote mask file as an io.ReadSeeker and
// io.ReaderAt using HTTP range requests, so rasters can be queried straight
// off a web server without downloading them.
type HTTPReader struct {
	url    string
	client *http.Client
	size   int64

	// mu guards offset for the sequential Read/Seek pair; ReadAt is
	// stateless and bypasses it.
	mu     sync.Mutex
	offset int64
}

// NewHTTPReader probes url with a HEAD request and returns a range reader
// over it. The server must advertise byte-range support.
func NewHTTPReader(url string, client *http.Client) (*HTTPReader, error) {
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Head(url)
	if err != nil {
		return nil, fmt.Errorf("head request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status for head request: %s", resp.Status)
	}
	if resp.Header.Get("Accept-Ranges") != "bytes" {
		return nil, errors.New("server does not accept byte range requests")
	}
	if resp.ContentLength <= 0 {
		return nil, errors.New("could not determine content length or file is empty")
	}

	return &HTTPReader{url: url, client: client, size: resp.ContentLength}, nil
}

// Read performs a sequential read at the current offset. The lock is held
// for the whole network round trip, so concurrent access should go through
// ReadAt instead.
func (h *HTTPReader) Read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.offset >= h.size {
		return 0, io.EOF
	}
	n, err := h.readRange(p, h.offset)
	h.offset += int64(n)
	return n, err
}

// Seek updates the offset for the next sequential Read.
func (h *HTTPReader) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = h.offset + offset
	case io.SeekEnd:
		next = h.size + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if next < 0 {
		return 0, errors.New("cannot seek to negative offset")
	}
	h.offset = next
	return h.offset, nil
}

// ReadAt implements io.ReaderAt for stateless, concurrency-safe reads; the
// block-fetch path uses this.
func (h *HTTPReader) ReadAt(p []byte, off int64) (int, error) {
	return h.readRange(p, off)
}

func (h *HTTPReader) readRange(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("invalid offset %d", off)
	}
	if off >= h.size {
		return 0, io.EOF
	}

	length := int64(len(p))
	if off+length > h.size {
		length = h.size - off
	}

	req, err := http.NewRequest(http.MethodGet, h.url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+length-1))

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("expected status 206 Partial Content, got: %s", resp.Status)
	}
	return io.ReadFull(resp.Body, p[:length])
}
