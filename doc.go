// Package pkgcas fetches package tarballs into a content-addressable store.
//
// A fetch downloads a gzip-compressed tar archive, verifies it against an
// SRI integrity string, decompresses it, and writes every regular file into
// a store shared by all packages, addressed by the SHA-512 digest of its
// contents. The resulting index, from file path inside the package to store
// path, is persisted next to the content so it can be looked up later by
// integrity alone.
//
// # Quick Start
//
//	c, err := pkgcas.NewClient(pkgcas.WithStoreDir("/var/lib/pkgcas"))
//	if err != nil {
//	    return err
//	}
//	idx, err := c.FetchTarball(ctx,
//	    "https://registry.npmjs.org/left-pad/-/left-pad-1.3.0.tgz",
//	    integrity, // "sha512-..." from the registry metadata
//	)
//	if err != nil {
//	    return err
//	}
//	obj := idx["index.js"] // e.g. "3f/9a1c...", relative to the store root
//
// # Store Layout
//
//	<root>/<hex[:2]>/<hex[2:]>             content object
//	<root>/<hex[:2]>/<hex[2:]>-exec        executable content object
//	<root>/<hex[:2]>/<hex[2:]>-index.json  package index, keyed by package digest
//
// Objects are written once and never modified. Concurrent fetches, including
// fetches from other processes sharing the root, may write the same object;
// writes are atomic renames, so readers never see a partial file.
//
// # Errors
//
// Each stage fails with its own sentinel: [ErrNetwork], [ErrIntegrity],
// [ErrDecompress], [ErrArchive] or [ErrIO]. Use errors.Is to tell them apart.
// Nothing is written to the store until the archive has been verified.
package pkgcas
