// Package files lists and serves what the downloader wrote to disk.
package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrOutsideRoot = errors.New("path is outside the allowed root")
)

// File is one downloaded file
type File struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// List returns the regular files directly inside dir, newest first. A
// missing directory lists as empty.
func List(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []File{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	files := make([]File, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		files = append(files, File{Name: e.Name(), Size: info.Size(), Modified: info.ModTime().UTC()})
	}

	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].Modified.Equal(files[j].Modified) {
			return files[i].Modified.After(files[j].Modified)
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}

// ListWithin lists dir after checking that it lies under root. Relative
// dirs are taken from root; absolute ones, as returned by Browse, must
// already point inside it.
func ListWithin(root, dir string) ([]File, error) {
	if filepath.IsAbs(dir) {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(absRoot, filepath.Clean(dir))
		if err != nil {
			return nil, ErrOutsideRoot
		}
		dir = rel
	}

	full, err := within(root, dir)
	if err != nil {
		return nil, err
	}
	return List(full)
}

// Resolve maps a request path to a regular file inside root
func Resolve(root, name string) (string, error) {
	full, err := within(root, name)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(full)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return full, nil
}

// within joins name onto root and rejects results that escape it
func within(root, name string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}

	full := filepath.Join(absRoot, filepath.FromSlash(name))
	rel, err := filepath.Rel(absRoot, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return full, nil
}
