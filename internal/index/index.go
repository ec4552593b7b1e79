// Package index persists package indexes into the store.
//
// A package index is a flat JSON object from archive-relative file path to
// store path. It is stored under the path derived from the package's own
// integrity digest, so a later lookup needs only that digest.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/meigma/pkgcas/internal/castype"
	"github.com/meigma/pkgcas/store"
)

// Encode serializes idx as a flat JSON object.
func Encode(idx castype.Index) ([]byte, error) {
	if idx == nil {
		idx = castype.Index{}
	}
	data, err := json.Marshal(idx)
	if err != nil {
		return nil, fmt.Errorf("%w: encode index: %v", castype.ErrIO, err)
	}
	return data, nil
}

// Decode parses an index produced by Encode.
func Decode(data []byte) (castype.Index, error) {
	var idx castype.Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("%w: decode index: %v", castype.ErrIO, err)
	}
	if idx == nil {
		return nil, fmt.Errorf("%w: decode index: not an object", castype.ErrIO)
	}
	return idx, nil
}

// Write stores idx under the index path for the package digest pkgHex and
// returns that path. An existing index for the same package is replaced.
func Write(st *store.Store, pkgHex string, idx castype.Index) (string, error) {
	rel, err := store.ContentPath(store.KindIndex, pkgHex)
	if err != nil {
		return "", fmt.Errorf("%w: %v", castype.ErrIO, err)
	}
	data, err := Encode(idx)
	if err != nil {
		return "", err
	}
	if err := st.Replace(rel, data); err != nil {
		return "", err
	}
	return rel, nil
}

// Read loads the index stored for the package digest pkgHex. It reports
// false, with no error, if no index has been written.
func Read(st *store.Store, pkgHex string) (castype.Index, bool, error) {
	rel, err := store.ContentPath(store.KindIndex, pkgHex)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", castype.ErrIO, err)
	}
	data, err := st.ReadFile(rel)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	idx, err := Decode(data)
	if err != nil {
		return nil, false, err
	}
	return idx, true, nil
}
