package storage

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Entry is one path below the output directory.
type Entry struct {
	Path  string
	IsDir bool
	Size  int64
}

// Snapshot lists everything below the output directory in lexical order.
// A missing output directory yields an empty snapshot.
func (s *Store) Snapshot() ([]Entry, error) {
	entries := []Entry{}
	exists, err := afero.Exists(s.fs, s.baseDir)
	if err != nil || !exists {
		return entries, err
	}

	err = afero.Walk(s.fs, s.baseDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == s.baseDir {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, p)
		if err != nil {
			return err
		}
		e := Entry{Path: filepath.ToSlash(rel), IsDir: info.IsDir()}
		if !e.IsDir {
			e.Size = info.Size()
		}
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

// ReadHeader returns the first line of the file at rel, without the newline.
func (s *Store) ReadHeader(rel string) (string, error) {
	data, err := afero.ReadFile(s.fs, filepath.Join(s.baseDir, rel))
	if err != nil {
		return "", err
	}
	for i, b := range data {
		if b == '\n' {
			return string(data[:i]), nil
		}
	}
	return string(data), nil
}
