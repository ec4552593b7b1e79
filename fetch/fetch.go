// Package fetch retrieves package archives over the network.
//
// Fetchers return the complete response body or an error wrapping
// castype.ErrNetwork. They never retry; retry policy belongs to the caller.
package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/meigma/pkgcas/internal/castype"
)

// DefaultMaxBodySize is the default limit on a fetched archive (512MB).
const DefaultMaxBodySize = 512 << 20

// Fetcher retrieves the body at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Func adapts a function to the Fetcher interface.
type Func func(ctx context.Context, url string) ([]byte, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// Mux dispatches to a Fetcher by URL scheme.
type Mux struct {
	schemes map[string]Fetcher
}

// NewMux returns a Mux that serves http and https URLs with h and oci URLs
// with o. Either may be nil to leave its schemes unhandled.
func NewMux(h *HTTP, o *OCI) *Mux {
	m := &Mux{schemes: make(map[string]Fetcher)}
	if h != nil {
		m.Handle("http", h)
		m.Handle("https", h)
	}
	if o != nil {
		m.Handle(OCIScheme, o)
	}
	return m
}

// Handle registers f for scheme, replacing any previous fetcher.
func (m *Mux) Handle(scheme string, f Fetcher) {
	m.schemes[strings.ToLower(scheme)] = f
}

// Fetch routes rawURL to the fetcher registered for its scheme.
func (m *Mux) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse url: %v", castype.ErrNetwork, err)
	}
	f, ok := m.schemes[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported url scheme %q", castype.ErrNetwork, u.Scheme)
	}
	return f.Fetch(ctx, rawURL)
}
