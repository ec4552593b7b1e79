package store

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/pkgcas/internal/castype"
)

func hexOf(data []byte) string {
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:])
}

func TestStorePut(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	content := []byte("hello")
	h := hexOf(content)

	rel, written, err := s.Put(KindFile, h, content)
	require.NoError(t, err)
	assert.True(t, written)
	assert.Equal(t, h[:2]+"/"+h[2:], rel)
	assert.True(t, s.Has(rel))

	got, err := os.ReadFile(filepath.Join(dir, h[:2], h[2:]))
	require.NoError(t, err)
	assert.Equal(t, content, got)

	rel2, written, err := s.Put(KindFile, h, content)
	require.NoError(t, err)
	assert.False(t, written, "second Put must not rewrite")
	assert.Equal(t, rel, rel2)
}

func TestStorePutNeverOverwrites(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	require.NoError(t, err)

	h := hexOf([]byte("original"))
	rel, _, err := s.Put(KindFile, h, []byte("original"))
	require.NoError(t, err)

	_, written, err := s.Put(KindFile, h, []byte("impostor"))
	require.NoError(t, err)
	assert.False(t, written)

	got, err := s.ReadFile(rel)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
}

func TestStorePutExecPerm(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	require.NoError(t, err)

	content := []byte("#!/bin/sh\necho hi\n")
	rel, _, err := s.Put(KindExec, hexOf(content), content)
	require.NoError(t, err)
	assert.Equal(t, "-exec", rel[len(rel)-5:])

	info, err := os.Stat(s.Abs(rel))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(defaultExecPerm), info.Mode().Perm())

	rel, _, err = s.Put(KindFile, hexOf([]byte("plain")), []byte("plain"))
	require.NoError(t, err)
	info, err = os.Stat(s.Abs(rel))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(defaultFilePerm), info.Mode().Perm())
}

func TestStorePutConcurrent(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	require.NoError(t, err)

	content := []byte("shared content")
	h := hexOf(content)

	const goroutines = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		writes  int
		errs    []error
		results = make(map[string]struct{})
	)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rel, written, err := s.Put(KindFile, h, content)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if written {
				writes++
			}
			results[rel] = struct{}{}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, results, 1)
	assert.LessOrEqual(t, writes, 1)

	usage, err := s.Usage()
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Objects)
}

func TestStorePutInvalidDigest(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, _, err = s.Put(KindFile, "nothex!", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidDigest)
}

func TestStoreReplace(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	require.NoError(t, err)

	rel, err := ContentPath(KindIndex, hexOf([]byte("pkg")))
	require.NoError(t, err)

	require.NoError(t, s.Replace(rel, []byte(`{"a":"b"}`)))
	require.NoError(t, s.Replace(rel, []byte(`{"c":"d"}`)))

	got, err := s.ReadFile(rel)
	require.NoError(t, err)
	assert.Equal(t, `{"c":"d"}`, string(got))
}

func TestStoreReadFileMissing(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.ReadFile("ab/cdef")
	require.Error(t, err)
	assert.ErrorIs(t, err, castype.ErrIO)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStoreWriteFailure(t *testing.T) {
	t.Parallel()

	if os.Getuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	_, _, err = s.Put(KindFile, hexOf([]byte("x")), []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, castype.ErrIO))
}

func TestStoreUsage(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, _, err = s.Put(KindFile, hexOf([]byte("one")), []byte("one"))
	require.NoError(t, err)
	_, _, err = s.Put(KindExec, hexOf([]byte("two")), []byte("two"))
	require.NoError(t, err)
	rel, err := ContentPath(KindIndex, hexOf([]byte("pkg")))
	require.NoError(t, err)
	require.NoError(t, s.Replace(rel, []byte("{}")))

	// A leftover temp file from an interrupted write is ignored.
	tmp := filepath.Join(s.Dir(), "ff", ".pkgcas-123")
	require.NoError(t, os.MkdirAll(filepath.Dir(tmp), 0o755))
	require.NoError(t, os.WriteFile(tmp, []byte("partial"), 0o600))

	u, err := s.Usage()
	require.NoError(t, err)
	assert.Equal(t, 2, u.Objects)
	assert.Equal(t, 1, u.Indexes)
	assert.Equal(t, int64(len("one")+len("two")+len("{}")), u.Bytes)
}

func TestNewEmptyDir(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("New() error = nil, want error")
	}
}
