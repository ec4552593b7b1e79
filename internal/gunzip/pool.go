package gunzip

import (
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// Pool manages reusable gzip readers to reduce allocation overhead.
type Pool struct {
	pool sync.Pool
}

// NewPool creates an empty reader pool.
func NewPool() *Pool {
	return &Pool{}
}

// Get returns a reader positioned at the start of the gzip stream in r.
// The caller must call the returned release function when done.
// If an error is returned, no release function needs to be called.
func (p *Pool) Get(r io.Reader) (*gzip.Reader, func(), error) {
	if p == nil {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() { _ = zr.Close() }, nil
	}

	zr, ok := p.pool.Get().(*gzip.Reader)
	if !ok {
		zr = new(gzip.Reader)
	}
	if err := zr.Reset(r); err != nil {
		// A reader that failed Reset holds no useful state; let it go.
		return nil, nil, err
	}
	return zr, func() {
		_ = zr.Close()
		p.pool.Put(zr)
	}, nil
}
