// Package store provides the on-disk content-addressable store that package
// files and package indexes are written into.
//
// Objects live at <root>/<hex[:2]>/<hex[2:]><suffix>. Writes go to a
// temporary file in the shard directory and are renamed into place, so an
// object is never observable at its final path until it is complete.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/pkgcas/internal/castype"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
	defaultExecPerm = 0o755

	tempPattern = ".pkgcas-*"
)

// Store is a content-addressable store rooted at a directory.
// It is safe for concurrent use, including by multiple processes sharing
// the same root.
type Store struct {
	dir      string
	dirPerm  os.FileMode
	filePerm os.FileMode
	execPerm os.FileMode

	inflight singleflight.Group
}

// Option configures a Store.
type Option func(*Store)

// WithDirPerm sets the permissions used for store directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(s *Store) {
		s.dirPerm = mode
	}
}

// WithFilePerm sets the permissions of regular objects and index files.
func WithFilePerm(mode os.FileMode) Option {
	return func(s *Store) {
		s.filePerm = mode
	}
}

// WithExecPerm sets the permissions of executable objects.
func WithExecPerm(mode os.FileMode) Option {
	return func(s *Store) {
		s.execPerm = mode
	}
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("store dir is empty")
	}
	s := &Store{
		dir:      dir,
		dirPerm:  defaultDirPerm,
		filePerm: defaultFilePerm,
		execPerm: defaultExecPerm,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return nil, ioError("create", dir, err)
	}
	return s, nil
}

// Dir returns the store root.
func (s *Store) Dir() string {
	return s.dir
}

// Abs converts a store path to a filesystem path under the root.
func (s *Store) Abs(rel string) string {
	return filepath.Join(s.dir, filepath.FromSlash(rel))
}

// Has reports whether an object exists at rel.
func (s *Store) Has(rel string) bool {
	_, err := os.Stat(s.Abs(rel))
	return err == nil
}

// ReadFile returns the contents of the object at rel.
func (s *Store) ReadFile(rel string) ([]byte, error) {
	data, err := os.ReadFile(s.Abs(rel)) //nolint:gosec // path is derived from a digest
	if err != nil {
		return nil, ioError("read", rel, err)
	}
	return data, nil
}

// Put stores data under the path derived from kind and hexDigest unless an
// object already exists there. It returns the store path and whether this
// call wrote the object.
//
// Existing objects are never rewritten or compared; equal digests are
// treated as equal content.
func (s *Store) Put(kind Kind, hexDigest string, data []byte) (rel string, written bool, err error) {
	rel, err = ContentPath(kind, hexDigest)
	if err != nil {
		return "", false, err
	}
	perm := s.filePerm
	if kind == KindExec {
		perm = s.execPerm
	}

	ran := false
	_, err, _ = s.inflight.Do(rel, func() (any, error) {
		ran = true
		if s.Has(rel) {
			ran = false
			return nil, nil
		}
		return nil, s.writeAtomic(rel, data, perm)
	})
	if err != nil {
		return "", false, err
	}
	return rel, ran, nil
}

// Replace writes data at rel, replacing any existing object atomically.
func (s *Store) Replace(rel string, data []byte) error {
	return s.writeAtomic(rel, data, s.filePerm)
}

func (s *Store) writeAtomic(rel string, data []byte, perm os.FileMode) error {
	path := s.Abs(rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return ioError("create", dir, err)
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return ioError("create", rel, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return ioError("write", rel, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return ioError("chmod", rel, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return ioError("write", rel, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		if _, statErr := os.Stat(path); statErr == nil {
			return nil
		}
		return ioError("rename", rel, err)
	}
	return nil
}

func isTemp(name string) bool {
	return strings.HasPrefix(name, ".pkgcas-")
}

func ioError(op, path string, err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		err = pathErr.Err
	}
	return fmt.Errorf("%w: %s %s: %w", castype.ErrIO, op, path, err)
}
