package pkgcas

import (
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/meigma/pkgcas/fetch"
	"github.com/meigma/pkgcas/internal/castype"
	"github.com/meigma/pkgcas/internal/gunzip"
	"github.com/meigma/pkgcas/store"
)

// DefaultStoreDir is the store root used when none is configured.
const DefaultStoreDir = "pnpm-store"

// Index maps file paths inside a package, without the archive's root
// directory, to store paths relative to the store root.
type Index = castype.Index

// Client fetches package tarballs into a store.
//
// A Client is safe for concurrent use. Fetches wait on the network without
// limit; the verify, decompress and extract phase of each fetch runs under a
// worker limit shared by all fetches on the client.
type Client struct {
	storeDir  string
	storeOpts []store.Option
	store     *store.Store

	fetcher  fetch.Fetcher
	httpOpts []fetch.HTTPOption
	ociOpts  []fetch.OCIOption

	workers         int
	extractWorkers  int
	timeout         time.Duration
	maxArchiveSize  int64
	maxUnpackedSize uint64
	logger          *slog.Logger

	cpu     *semaphore.Weighted
	readers *gunzip.Pool
}

// NewClient creates a client with the given options.
//
// Without [WithStoreDir] or [WithStore], the store is rooted at
// [DefaultStoreDir] in the working directory. Without [WithFetcher], http,
// https and oci:// URLs are supported.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		storeDir:        DefaultStoreDir,
		maxArchiveSize:  fetch.DefaultMaxBodySize,
		maxUnpackedSize: gunzip.DefaultMaxSize,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.workers < 1 {
		c.workers = runtime.GOMAXPROCS(0)
	}
	if c.store == nil {
		st, err := store.New(c.storeDir, c.storeOpts...)
		if err != nil {
			return nil, err
		}
		c.store = st
	}
	if c.fetcher == nil {
		httpOpts := append([]fetch.HTTPOption{fetch.WithMaxBodySize(c.maxArchiveSize)}, c.httpOpts...)
		ociOpts := append([]fetch.OCIOption{fetch.WithOCIMaxBodySize(c.maxArchiveSize)}, c.ociOpts...)
		c.fetcher = fetch.NewMux(fetch.NewHTTP(httpOpts...), fetch.NewOCI(ociOpts...))
	}
	c.cpu = semaphore.NewWeighted(int64(c.workers))
	c.readers = gunzip.NewPool()
	return c, nil
}

// Store returns the store the client writes into.
func (c *Client) Store() *store.Store {
	return c.store
}

// log returns the logger, falling back to a discard logger if nil.
func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}
