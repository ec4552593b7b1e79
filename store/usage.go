package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Usage summarizes the contents of a store.
type Usage struct {
	Objects int   // content objects, executable or not
	Indexes int   // package index files
	Bytes   int64 // total size of objects and indexes
}

// Usage walks the store and reports what it holds. In-progress temporary
// files are not counted.
func (s *Store) Usage() (Usage, error) {
	var u Usage
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || isTemp(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if strings.HasSuffix(d.Name(), KindIndex.suffix()) {
			u.Indexes++
		} else {
			u.Objects++
		}
		u.Bytes += info.Size()
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return Usage{}, nil
	}
	if err != nil {
		return Usage{}, ioError("walk", s.dir, err)
	}
	return u, nil
}
