package pkgcas

import (
	"errors"
	"log/slog"
	nethttp "net/http"
	"os"
	"time"

	"github.com/meigma/pkgcas/fetch"
	"github.com/meigma/pkgcas/store"
)

// Option configures a Client.
type Option func(*Client) error

// --- Store Options ---

// WithStoreDir roots the store at dir, creating it if needed.
func WithStoreDir(dir string) Option {
	return func(c *Client) error {
		if dir == "" {
			return errors.New("store dir is empty")
		}
		c.storeDir = dir
		return nil
	}
}

// WithStoreDirPerm sets the permissions used for store directories.
func WithStoreDirPerm(mode os.FileMode) Option {
	return func(c *Client) error {
		c.storeOpts = append(c.storeOpts, store.WithDirPerm(mode))
		return nil
	}
}

// WithStore uses an existing store, for example one shared by several
// clients. It takes precedence over [WithStoreDir].
func WithStore(st *store.Store) Option {
	return func(c *Client) error {
		if st == nil {
			return errors.New("store is nil")
		}
		c.store = st
		return nil
	}
}

// --- Transport Options ---

// WithFetcher replaces the default fetcher. Transport options such as
// [WithHTTPClient] have no effect when a custom fetcher is set.
func WithFetcher(f fetch.Fetcher) Option {
	return func(c *Client) error {
		if f == nil {
			return errors.New("fetcher is nil")
		}
		c.fetcher = f
		return nil
	}
}

// WithHTTPClient sets the HTTP client used for http, https and registry
// requests. By default a process-wide client is shared by all fetches.
func WithHTTPClient(client *nethttp.Client) Option {
	return func(c *Client) error {
		c.httpOpts = append(c.httpOpts, fetch.WithClient(client))
		c.ociOpts = append(c.ociOpts, fetch.WithOCIHTTPClient(client))
		return nil
	}
}

// WithHeader sets a header on every http and https request, such as an
// Authorization header for a private registry.
func WithHeader(key, value string) Option {
	return func(c *Client) error {
		c.httpOpts = append(c.httpOpts, fetch.WithHeader(key, value))
		return nil
	}
}

// WithUserAgent sets the User-Agent header for all requests.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.httpOpts = append(c.httpOpts, fetch.WithUserAgent(ua))
		c.ociOpts = append(c.ociOpts, fetch.WithOCIUserAgent(ua))
		return nil
	}
}

// WithPlainHTTP enables plain HTTP (no TLS) for oci:// registries.
// This is useful for local development registries.
func WithPlainHTTP(enabled bool) Option {
	return func(c *Client) error {
		c.ociOpts = append(c.ociOpts, fetch.WithPlainHTTP(enabled))
		return nil
	}
}

// WithDockerConfig enables reading oci:// registry credentials from
// ~/.docker/config.json.
func WithDockerConfig() Option {
	return func(c *Client) error {
		c.ociOpts = append(c.ociOpts, fetch.WithDockerConfig())
		return nil
	}
}

// WithRegistryCredentials sets static username/password credentials for an
// oci:// registry host.
func WithRegistryCredentials(host, username, password string) Option {
	return func(c *Client) error {
		c.ociOpts = append(c.ociOpts, fetch.WithStaticCredentials(host, username, password))
		return nil
	}
}

// WithTimeout bounds the fetch stage of each call. Zero means no timeout
// beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return errors.New("timeout must be non-negative")
		}
		c.timeout = d
		return nil
	}
}

// --- Limits ---

// WithMaxArchiveSize limits the size of a fetched archive.
// Set to 0 to disable the limit.
func WithMaxArchiveSize(limit int64) Option {
	return func(c *Client) error {
		if limit < 0 {
			return errors.New("max archive size must be non-negative")
		}
		c.maxArchiveSize = limit
		return nil
	}
}

// WithMaxUnpackedSize limits the decompressed size of an archive.
// Set to 0 to disable the limit.
func WithMaxUnpackedSize(limit uint64) Option {
	return func(c *Client) error {
		c.maxUnpackedSize = limit
		return nil
	}
}

// --- Concurrency ---

// WithWorkers limits how many fetches may be verifying, decompressing or
// extracting at once. Network waits do not count against the limit.
// Defaults to runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(c *Client) error {
		if n < 0 {
			return errors.New("workers must be non-negative")
		}
		c.workers = n
		return nil
	}
}

// WithExtractWorkers sets how many files of one archive are hashed and
// stored concurrently. Defaults to runtime.GOMAXPROCS(0).
func WithExtractWorkers(n int) Option {
	return func(c *Client) error {
		if n < 0 {
			return errors.New("extract workers must be non-negative")
		}
		c.extractWorkers = n
		return nil
	}
}

// --- Logging ---

// WithLogger sets a logger for the client.
// If nil, a discard logger is used (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}
