// Package gunzip decompresses whole gzip streams into exactly sized buffers.
//
// A gzip stream ends with ISIZE, the uncompressed length modulo 2^32 as a
// little-endian uint32 (RFC 1952). Decompress allocates an output buffer of
// that size up front and fills it in a single pass, so a stream whose
// content disagrees with its footer is reported instead of truncated.
package gunzip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/meigma/pkgcas/internal/castype"
)

const (
	// DefaultMaxSize is the default limit on the decompressed size (1GB).
	DefaultMaxSize = 1 << 30

	footerSize = 4
	// minStreamSize is a 10-byte member header plus the 8-byte trailer.
	minStreamSize = 18
)

var defaultPool = NewPool()

type config struct {
	maxSize uint64
	pool    *Pool
}

// Option configures Decompress.
type Option func(*config)

// WithMaxSize rejects streams whose footer declares more than limit bytes.
// Set to 0 to disable the limit.
func WithMaxSize(limit uint64) Option {
	return func(c *config) {
		c.maxSize = limit
	}
}

// WithPool sets the reader pool. A nil pool allocates a reader per call.
func WithPool(p *Pool) Option {
	return func(c *config) {
		c.pool = p
	}
}

// Decompress returns the decompressed contents of the gzip stream in data.
// All failures wrap castype.ErrDecompress.
func Decompress(data []byte, opts ...Option) ([]byte, error) {
	cfg := config{
		maxSize: DefaultMaxSize,
		pool:    defaultPool,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(data) < footerSize {
		return nil, fmt.Errorf("%w: %d bytes is too short for a gzip footer", castype.ErrDecompress, len(data))
	}
	if len(data) < minStreamSize {
		return nil, fmt.Errorf("%w: %d bytes is too short for a gzip stream", castype.ErrDecompress, len(data))
	}
	size := binary.LittleEndian.Uint32(data[len(data)-footerSize:])
	if cfg.maxSize > 0 && uint64(size) > cfg.maxSize {
		return nil, fmt.Errorf("%w: declared size %d exceeds limit %d", castype.ErrDecompress, size, cfg.maxSize)
	}

	zr, release, err := cfg.pool.Get(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", castype.ErrDecompress, err)
	}
	defer release()

	out := make([]byte, size)
	n, err := io.ReadFull(zr, out)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: stream ended after %d of %d bytes", castype.ErrDecompress, n, size)
		}
		return nil, fmt.Errorf("%w: %v", castype.ErrDecompress, err)
	}
	if err := ensureNoExtra(zr); err != nil {
		return nil, err
	}
	return out, nil
}

// ensureNoExtra reads from r and returns an error if any data is available.
// Reaching EOF also makes the gzip reader verify the member checksum.
func ensureNoExtra(r io.Reader) error {
	var scratch [1]byte
	n, err := r.Read(scratch[:])
	if n > 0 {
		return fmt.Errorf("%w: stream is longer than its declared size", castype.ErrDecompress)
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: %v", castype.ErrDecompress, err)
}
