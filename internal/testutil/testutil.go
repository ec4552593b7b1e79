// Package testutil builds package tarballs and fake fetchers for tests.
package testutil

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// Entry describes one tar entry. A zero Type means a regular file and a
// zero Mode means 0o644.
type Entry struct {
	Name     string
	Body     string
	Mode     int64
	Type     byte
	Linkname string
}

// File returns a regular file entry.
func File(name, body string) Entry {
	return Entry{Name: name, Body: body}
}

// Exec returns an executable file entry.
func Exec(name, body string) Entry {
	return Entry{Name: name, Body: body, Mode: 0o755}
}

// Dir returns a directory entry.
func Dir(name string) Entry {
	return Entry{Name: name, Type: tar.TypeDir, Mode: 0o755}
}

// Symlink returns a symbolic link entry.
func Symlink(name, target string) Entry {
	return Entry{Name: name, Type: tar.TypeSymlink, Linkname: target, Mode: 0o777}
}

// Tar returns an uncompressed tar archive of entries, in order.
func Tar(tb testing.TB, entries ...Entry) []byte {
	tb.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		typ := e.Type
		if typ == 0 {
			typ = tar.TypeReg
		}
		mode := e.Mode
		if mode == 0 {
			mode = 0o644
		}
		hdr := &tar.Header{
			Name:     e.Name,
			Typeflag: typ,
			Mode:     mode,
			Linkname: e.Linkname,
		}
		if typ == tar.TypeReg {
			hdr.Size = int64(len(e.Body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			tb.Fatalf("write header %s: %v", e.Name, err)
		}
		if typ == tar.TypeReg {
			if _, err := tw.Write([]byte(e.Body)); err != nil {
				tb.Fatalf("write body %s: %v", e.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		tb.Fatalf("close tar: %v", err)
	}
	return buf.Bytes()
}

// Gzip compresses data as a single gzip member.
func Gzip(tb testing.TB, data []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		tb.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// Tarball returns a gzip-compressed tar archive of entries.
func Tarball(tb testing.TB, entries ...Entry) []byte {
	tb.Helper()
	return Gzip(tb, Tar(tb, entries...))
}

// SRI returns the sha512 integrity string of data.
func SRI(data []byte) string {
	sum := sha512.Sum512(data)
	return "sha512-" + base64.StdEncoding.EncodeToString(sum[:])
}

// Fetcher serves fixed bodies by URL and counts requests.
type Fetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	calls  int
}

// NewFetcher returns a Fetcher serving bodies.
func NewFetcher(bodies map[string][]byte) *Fetcher {
	return &Fetcher{bodies: bodies}
}

// Fetch returns the body registered for url.
func (f *Fetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	body, ok := f.bodies[url]
	if !ok {
		return nil, fmt.Errorf("testutil: no body for %s", url)
	}
	return bytes.Clone(body), nil
}

// Calls returns the number of Fetch calls so far.
func (f *Fetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
