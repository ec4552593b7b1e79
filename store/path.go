package store

import (
	"errors"
	"path"
)

// Kind identifies the type of object addressed by a store path.
type Kind uint8

const (
	KindFile Kind = iota
	KindExec
	KindIndex
)

const shardPrefixLen = 2

// ErrInvalidDigest is returned when a digest is not a usable hex string.
var ErrInvalidDigest = errors.New("store: invalid hex digest")

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindExec:
		return "exec"
	case KindIndex:
		return "index"
	default:
		return "unknown"
	}
}

func (k Kind) suffix() string {
	switch k {
	case KindExec:
		return "-exec"
	case KindIndex:
		return "-index.json"
	default:
		return ""
	}
}

// KindForMode returns KindExec if any execute bit is set in mode, KindFile otherwise.
func KindForMode(mode int64) Kind {
	if mode&0o111 != 0 {
		return KindExec
	}
	return KindFile
}

// ContentPath returns the slash-separated path, relative to the store root,
// of the object with the given kind and lowercase hex digest.
//
// The first two hex characters become a shard directory and the rest,
// plus a kind suffix, become the file name. The result depends only on
// its arguments.
func ContentPath(kind Kind, hexDigest string) (string, error) {
	if len(hexDigest) <= shardPrefixLen {
		return "", ErrInvalidDigest
	}
	for i := range len(hexDigest) {
		c := hexDigest[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", ErrInvalidDigest
		}
	}
	return path.Join(hexDigest[:shardPrefixLen], hexDigest[shardPrefixLen:]+kind.suffix()), nil
}
