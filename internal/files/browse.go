package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Dir is a directory offered by the folder picker
type Dir struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Listing is one level of the folder picker
type Listing struct {
	Path        string `json:"path"`
	Parent      string `json:"parent,omitempty"`
	Directories []Dir  `json:"directories"`
}

// Browse lists the visible sub-directories of path, which must lie under
// root. Relative paths are taken from root. An empty path browses root
// itself. Parent is empty at root.
func Browse(root, path string) (*Listing, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	target := absRoot
	if path != "" {
		abs := filepath.Clean(path)
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(absRoot, abs)
		}
		rel, err := filepath.Rel(absRoot, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, ErrOutsideRoot
		}
		target = abs
	}

	entries, err := os.ReadDir(target)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}

	listing := &Listing{Path: target, Directories: []Dir{}}
	if target != absRoot {
		listing.Parent = filepath.Dir(target)
	}

	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		listing.Directories = append(listing.Directories, Dir{
			Name: e.Name(),
			Path: filepath.Join(target, e.Name()),
		})
	}

	sort.Slice(listing.Directories, func(i, j int) bool {
		return strings.ToLower(listing.Directories[i].Name) < strings.ToLower(listing.Directories[j].Name)
	})
	return listing, nil
}
