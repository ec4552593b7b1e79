package pkgcas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/meigma/pkgcas/integrity"
	"github.com/meigma/pkgcas/internal/castype"
	"github.com/meigma/pkgcas/internal/extract"
	"github.com/meigma/pkgcas/internal/gunzip"
	"github.com/meigma/pkgcas/internal/index"
)

var defaultClient = sync.OnceValues(func() (*Client, error) {
	return NewClient()
})

// FetchTarball fetches url into the default store using a client created
// on first use with default options. See [Client.FetchTarball].
func FetchTarball(ctx context.Context, url, expectedIntegrity string) (Index, error) {
	c, err := defaultClient()
	if err != nil {
		return nil, err
	}
	return c.FetchTarball(ctx, url, expectedIntegrity)
}

// FetchTarball downloads the gzip-compressed tarball at url, verifies it
// against expectedIntegrity, and unpacks its regular files into the store.
// It returns the package index and persists it under the path derived from
// expectedIntegrity.
//
// The stages run strictly in order and the first failure ends the call.
// No store write happens before verification succeeds. Calling again with
// the same arguments is safe and writes no new content objects.
func (c *Client) FetchTarball(ctx context.Context, url, expectedIntegrity string) (Index, error) {
	log := c.log().With(slog.String("url", url))
	log.Info("fetching tarball")

	start := time.Now()
	data, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	log.Debug("fetched tarball",
		slog.Int("bytes", len(data)),
		slog.Duration("elapsed", time.Since(start)))

	if err := c.cpu.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.cpu.Release(1)

	return c.ingest(ctx, log, data, expectedIntegrity)
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	data, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		if !errors.Is(err, castype.ErrNetwork) {
			err = fmt.Errorf("%w: %w", castype.ErrNetwork, err)
		}
		return nil, err
	}
	return data, nil
}

// ingest runs the CPU-bound stages on fetched bytes.
func (c *Client) ingest(ctx context.Context, log *slog.Logger, data []byte, expectedIntegrity string) (Index, error) {
	start := time.Now()

	if err := integrity.Check(data, expectedIntegrity); err != nil {
		log.Warn("tarball failed verification", slog.Any("error", err))
		return nil, err
	}
	pkg, err := integrity.Parse(expectedIntegrity)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tarData, err := gunzip.Decompress(data,
		gunzip.WithMaxSize(c.maxUnpackedSize),
		gunzip.WithPool(c.readers))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx, stats, err := extract.Extract(ctx, tarData, c.store,
		extract.WithWorkers(c.extractWorkers),
		extract.WithLogger(log))
	if err != nil {
		return nil, err
	}

	indexPath, err := index.Write(c.store, pkg.Hex(), idx)
	if err != nil {
		return nil, err
	}

	log.Debug("stored tarball",
		slog.String("index", indexPath),
		slog.Int("files", stats.Files),
		slog.Int("written", stats.Written),
		slog.Int("deduplicated", stats.Deduplicated),
		slog.Int("skipped", stats.Skipped),
		slog.Int64("bytes", stats.Bytes),
		slog.Duration("elapsed", time.Since(start)))
	return idx, nil
}

// Lookup returns the index persisted by an earlier fetch of the package
// with the given integrity, without touching the network. It reports false
// if the package has not been fetched into this store.
func (c *Client) Lookup(expectedIntegrity string) (Index, bool, error) {
	pkg, err := integrity.Parse(expectedIntegrity)
	if err != nil {
		return nil, false, err
	}
	return index.Read(c.store, pkg.Hex())
}
