package pkgcas

import (
	"github.com/meigma/pkgcas/integrity"
	"github.com/meigma/pkgcas/internal/castype"
)

// Errors re-exported from castype.
var (
	// ErrNetwork is returned when the archive cannot be fetched.
	ErrNetwork = castype.ErrNetwork

	// ErrIntegrity is returned when the archive does not match the expected digest.
	ErrIntegrity = castype.ErrIntegrity

	// ErrDecompress is returned when the gzip stream is malformed.
	ErrDecompress = castype.ErrDecompress

	// ErrArchive is returned when the tar stream is malformed or truncated.
	ErrArchive = castype.ErrArchive

	// ErrIO is returned when the store cannot be read or written.
	ErrIO = castype.ErrIO
)

// IntegrityError carries the expected and computed digests of a rejected
// archive. It matches [ErrIntegrity].
type IntegrityError = integrity.Error
