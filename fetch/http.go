package fetch

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"sync"

	"github.com/meigma/pkgcas/internal/castype"
)

const defaultUserAgent = "pkgcas/1.0"

// sharedClient is the process-wide client used when none is configured.
// It is built on first use and never modified afterwards, so every fetch
// shares one connection pool.
var sharedClient = sync.OnceValue(func() *nethttp.Client {
	transport := nethttp.DefaultTransport.(*nethttp.Transport).Clone() //nolint:forcetypeassert // stdlib default
	transport.MaxIdleConnsPerHost = 32
	return &nethttp.Client{Transport: transport}
})

// HTTP fetches archives with plain GET requests.
type HTTP struct {
	client      *nethttp.Client
	headers     nethttp.Header
	userAgent   string
	maxBodySize int64
}

// HTTPOption configures an HTTP fetcher.
type HTTPOption func(*HTTP)

// WithClient sets the HTTP client used for requests.
// By default a lazily built process-wide client is used.
func WithClient(client *nethttp.Client) HTTPOption {
	return func(h *HTTP) {
		h.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers nethttp.Header) HTTPOption {
	return func(h *HTTP) {
		if headers == nil {
			return
		}
		h.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) HTTPOption {
	return func(h *HTTP) {
		if h.headers == nil {
			h.headers = make(nethttp.Header)
		}
		h.headers.Set(key, value)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(h *HTTP) {
		h.userAgent = ua
	}
}

// WithMaxBodySize limits the size of a fetched body.
// Set to 0 to disable the limit.
func WithMaxBodySize(limit int64) HTTPOption {
	return func(h *HTTP) {
		h.maxBodySize = limit
	}
}

// NewHTTP creates an HTTP fetcher.
func NewHTTP(opts ...HTTPOption) *HTTP {
	h := &HTTP{
		userAgent:   defaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Fetch issues a GET for url and returns the whole body. Any non-2xx status
// is an error.
func (h *HTTP) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", castype.ErrNetwork, err)
	}
	for key, values := range h.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", h.userAgent)
	}
	// The body must reach the verifier byte for byte.
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}

	client := h.client
	if client == nil {
		client = sharedClient()
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", castype.ErrNetwork, url, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: GET %s: %s", castype.ErrNetwork, url, resp.Status)
	}
	if h.maxBodySize > 0 && resp.ContentLength > h.maxBodySize {
		return nil, fmt.Errorf("%w: GET %s: body of %d bytes exceeds limit %d", castype.ErrNetwork, url, resp.ContentLength, h.maxBodySize)
	}

	var body io.Reader = resp.Body
	if h.maxBodySize > 0 {
		body = io.LimitReader(resp.Body, h.maxBodySize+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: read body: %w", castype.ErrNetwork, url, err)
	}
	if h.maxBodySize > 0 && int64(len(data)) > h.maxBodySize {
		return nil, fmt.Errorf("%w: GET %s: body exceeds limit %d", castype.ErrNetwork, url, h.maxBodySize)
	}
	return data, nil
}
