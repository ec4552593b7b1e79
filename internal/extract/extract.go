// Package extract unpacks tar archives into a content-addressable store.
package extract

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/pkgcas/integrity"
	"github.com/meigma/pkgcas/internal/castype"
	"github.com/meigma/pkgcas/store"
)

// DefaultMaxEntrySize is the default maximum size of a single entry (256MB).
const DefaultMaxEntrySize = 256 << 20

// Stats reports the work done by one extraction.
type Stats struct {
	Files        int   // regular files indexed
	Written      int   // objects newly written to the store
	Deduplicated int   // objects already present in the store
	Skipped      int   // directories, links and other non-regular entries
	Bytes        int64 // total size of regular file contents
}

type config struct {
	workers      int
	maxEntrySize int64
	logger       *slog.Logger
}

// Option configures Extract.
type Option func(*config)

// WithWorkers sets how many entries are hashed and stored concurrently.
// Values < 1 use runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithMaxEntrySize sets the maximum size of a single entry.
// Set to 0 to disable the limit.
func WithMaxEntrySize(limit int64) Option {
	return func(c *config) {
		c.maxEntrySize = limit
	}
}

// WithLogger sets the logger used to report skipped entries.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// result is filled in by the worker that stores one entry.
type result struct {
	name    string
	kind    store.Kind
	size    int64
	rel     string
	written bool
}

// Extract walks the tar archive in data and writes every regular file into
// st, addressed by the SHA-512 digest of its contents. It returns an index
// from entry path, with the archive's root segment stripped, to store path.
//
// Entries are read sequentially; hashing and writing run on a bounded set
// of workers. Objects stored before a failure remain in the store, which is
// harmless because each one is independently addressed by its content.
func Extract(ctx context.Context, data []byte, st *store.Store, opts ...Option) (castype.Index, Stats, error) {
	cfg := config{maxEntrySize: DefaultMaxEntrySize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.workers < 1 {
		cfg.workers = runtime.GOMAXPROCS(0)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}

	var stats Stats
	var results []*result

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers)

	tr := tar.NewReader(bytes.NewReader(data))
	readErr := func() error {
		for {
			if err := gctx.Err(); err != nil {
				return err
			}
			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("%w: read header: %v", castype.ErrArchive, err)
			}
			if hdr.Typeflag != tar.TypeReg {
				stats.Skipped++
				cfg.logger.Debug("skipping entry",
					slog.String("name", hdr.Name),
					slog.String("type", string(hdr.Typeflag)))
				continue
			}

			name, err := StripRoot(hdr.Name)
			if err != nil {
				return err
			}
			if name == "" {
				return fmt.Errorf("%w: entry %q has no path below the archive root", castype.ErrArchive, hdr.Name)
			}
			if hdr.Size < 0 || (cfg.maxEntrySize > 0 && hdr.Size > cfg.maxEntrySize) {
				return fmt.Errorf("%w: entry %q has unsupported size %d", castype.ErrArchive, hdr.Name, hdr.Size)
			}

			buf := make([]byte, hdr.Size)
			if n, err := io.ReadFull(tr, buf); err != nil {
				return fmt.Errorf("%w: entry %q truncated after %d of %d bytes: %v", castype.ErrArchive, hdr.Name, n, hdr.Size, err)
			}

			r := &result{name: name, kind: store.KindForMode(hdr.Mode), size: hdr.Size}
			results = append(results, r)
			g.Go(func() error {
				rel, written, err := st.Put(r.kind, integrity.ContentHex(buf), buf)
				if err != nil {
					return fmt.Errorf("store %s: %w", r.name, err)
				}
				r.rel = rel
				r.written = written
				return nil
			})
		}
	}()

	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}
	if readErr != nil {
		return nil, Stats{}, readErr
	}

	idx := make(castype.Index, len(results))
	for _, r := range results {
		idx[r.name] = r.rel
		stats.Files++
		stats.Bytes += r.size
		if r.written {
			stats.Written++
		} else {
			stats.Deduplicated++
		}
	}
	return idx, stats, nil
}

// StripRoot removes the first component of a slash-separated entry name.
// Registry tarballs wrap every file in a single top-level directory that
// carries no meaning. It returns "" if nothing remains and an error if the
// name contains a ".." element.
func StripRoot(name string) (string, error) {
	for _, elem := range strings.Split(name, "/") {
		if elem == ".." {
			return "", fmt.Errorf("%w: entry %q escapes the archive root", castype.ErrArchive, name)
		}
	}
	cleaned := path.Clean(strings.TrimLeft(name, "/"))
	_, rest, ok := strings.Cut(cleaned, "/")
	if !ok {
		return "", nil
	}
	return rest, nil
}
