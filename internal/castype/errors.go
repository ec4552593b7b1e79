// Package castype defines shared types used across the pkgcas package and its
// internal packages. This avoids circular imports between pkgcas and the
// pipeline stages.
package castype

import "errors"

// Sentinel errors, one per pipeline stage.
var (
	// ErrNetwork is returned when fetching the archive fails.
	ErrNetwork = errors.New("pkgcas: network failure")

	// ErrIntegrity is returned when the archive does not match its expected digest.
	ErrIntegrity = errors.New("pkgcas: integrity verification failed")

	// ErrDecompress is returned when the gzip stream cannot be decompressed.
	ErrDecompress = errors.New("pkgcas: decompression failed")

	// ErrArchive is returned when the tar stream is malformed or truncated.
	ErrArchive = errors.New("pkgcas: malformed archive")

	// ErrIO is returned when the store cannot be read or written.
	ErrIO = errors.New("pkgcas: store i/o failure")
)
