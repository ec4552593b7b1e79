// Package integrity verifies package archives against SRI-style integrity
// strings such as "sha512-<base64>" or the legacy "sha1-<hex>" shasum form.
//
// Exactly two algorithms are supported. A string tagged sha1 is checked with
// SHA-1; every other string is checked with SHA-512.
package integrity

import (
	"crypto/sha1" //nolint:gosec // legacy registry shasums are SHA-1
	_ "crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/pkgcas/internal/castype"
)

// Algorithm identifies the hash used for an integrity string.
type Algorithm uint8

const (
	// SHA512 is the strong hash used for SRI strings and content addressing.
	SHA512 Algorithm = iota
	// SHA1 is the weak legacy hash used by old registry shasums.
	SHA1
)

func (a Algorithm) String() string {
	if a == SHA1 {
		return "sha1"
	}
	return "sha512"
}

func (a Algorithm) size() int {
	if a == SHA1 {
		return sha1.Size
	}
	return 64
}

// AlgorithmFor selects the algorithm for an expected integrity string.
func AlgorithmFor(expected string) Algorithm {
	if strings.HasPrefix(expected, "sha1") {
		return SHA1
	}
	return SHA512
}

// Compute returns the canonical integrity string of data for alg:
// "sha1-<hex>" for SHA1 and "sha512-<base64>" for SHA512.
func Compute(data []byte, alg Algorithm) string {
	if alg == SHA1 {
		sum := sha1.Sum(data) //nolint:gosec // see import
		return "sha1-" + hex.EncodeToString(sum[:])
	}
	raw, _ := hex.DecodeString(digest.SHA512.FromBytes(data).Encoded()) //nolint:errcheck // go-digest emits valid hex
	return "sha512-" + base64.StdEncoding.EncodeToString(raw)
}

// ContentHex returns the lowercase hex SHA-512 digest of data, the form used
// to address content objects in the store.
func ContentHex(data []byte) string {
	return digest.SHA512.FromBytes(data).Encoded()
}

// Verify computes the digest of data with the algorithm named by expected
// and compares it byte for byte with expected. On mismatch it also returns
// the computed value.
func Verify(data []byte, expected string) (ok bool, actual string) {
	computed := Compute(data, AlgorithmFor(expected))
	if computed == expected {
		return true, ""
	}
	return false, computed
}

// Check is like Verify but reports a mismatch as an *Error.
func Check(data []byte, expected string) error {
	if ok, actual := Verify(data, expected); !ok {
		return &Error{Expected: expected, Actual: actual}
	}
	return nil
}

// Error reports an integrity mismatch. It matches castype.ErrIntegrity.
type Error struct {
	Expected string
	Actual   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: expected %s, got %s", castype.ErrIntegrity, e.Expected, e.Actual)
}

// Unwrap returns castype.ErrIntegrity.
func (e *Error) Unwrap() error {
	return castype.ErrIntegrity
}

// Digest is a parsed integrity string.
type Digest struct {
	Algorithm Algorithm
	sum       []byte
}

// Parse decodes an integrity string. For a multi-hash string, the first
// hash is used. SRI option suffixes ("?...") are ignored. SHA-1 values may
// be hex or base64; SHA-512 values must be base64.
func Parse(s string) (Digest, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Digest{}, fmt.Errorf("%w: empty integrity string", castype.ErrIntegrity)
	}
	tag, value, ok := strings.Cut(fields[0], "-")
	if !ok {
		return Digest{}, fmt.Errorf("%w: %q has no algorithm tag", castype.ErrIntegrity, fields[0])
	}
	value, _, _ = strings.Cut(value, "?")

	var alg Algorithm
	switch tag {
	case "sha1":
		alg = SHA1
	case "sha512":
		alg = SHA512
	default:
		return Digest{}, fmt.Errorf("%w: unsupported algorithm %q", castype.ErrIntegrity, tag)
	}

	var sum []byte
	if alg == SHA1 && len(value) == hex.EncodedLen(sha1.Size) {
		if b, err := hex.DecodeString(value); err == nil {
			sum = b
		}
	}
	if sum == nil {
		b, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return Digest{}, fmt.Errorf("%w: decode %s value: %v", castype.ErrIntegrity, tag, err)
		}
		sum = b
	}
	if len(sum) != alg.size() {
		return Digest{}, fmt.Errorf("%w: %s digest is %d bytes, want %d", castype.ErrIntegrity, tag, len(sum), alg.size())
	}
	return Digest{Algorithm: alg, sum: sum}, nil
}

// Hex returns the lowercase hex encoding of the digest value.
func (d Digest) Hex() string {
	return hex.EncodeToString(d.sum)
}

// String returns the canonical integrity string, as produced by Compute.
func (d Digest) String() string {
	if d.Algorithm == SHA1 {
		return "sha1-" + hex.EncodeToString(d.sum)
	}
	return "sha512-" + base64.StdEncoding.EncodeToString(d.sum)
}
