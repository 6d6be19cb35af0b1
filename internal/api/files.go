package api

import (
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	apperrors "github.com/svtfetch/backend/internal/errors"
	"github.com/svtfetch/backend/internal/files"
)

type FileHandlers struct {
	downloadDir string
	browseRoot  string
}

func NewFileHandlers(downloadDir, browseRoot string) *FileHandlers {
	if browseRoot == "" {
		browseRoot = "/"
	}
	return &FileHandlers{downloadDir: downloadDir, browseRoot: browseRoot}
}

type FilesResponse struct {
	Files []files.File `json:"files"`
}

// List handles GET /api/downloads/files. ?dir= lists another directory
// under the browse root.
func (h *FileHandlers) List(w http.ResponseWriter, r *http.Request) error {
	var (
		list []files.File
		err  error
	)
	if dir := r.URL.Query().Get("dir"); dir != "" {
		list, err = files.ListWithin(h.browseRoot, dir)
	} else {
		list, err = files.List(h.downloadDir)
	}
	if errors.Is(err, files.ErrOutsideRoot) {
		return apperrors.Forbidden(err.Error())
	}
	if err != nil {
		return apperrors.InternalError("failed to list files").WithCause(err)
	}
	return writeJSON(w, r, http.StatusOK, FilesResponse{Files: list})
}

// Serve handles GET /downloads/{file}
func (h *FileHandlers) Serve(w http.ResponseWriter, r *http.Request) error {
	path, err := files.Resolve(h.downloadDir, r.PathValue("file"))
	switch {
	case errors.Is(err, files.ErrOutsideRoot):
		return apperrors.Forbidden(err.Error())
	case err != nil:
		return apperrors.FileNotFound()
	}

	f, err := os.Open(path)
	if err != nil {
		return apperrors.FileNotFound()
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return apperrors.InternalError("failed to read file").WithCause(err)
	}

	name := filepath.Base(path)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
	return nil
}

// Browse handles GET /api/browse
func (h *FileHandlers) Browse(w http.ResponseWriter, r *http.Request) error {
	listing, err := files.Browse(h.browseRoot, r.URL.Query().Get("path"))
	switch {
	case errors.Is(err, files.ErrOutsideRoot):
		return apperrors.Forbidden(err.Error())
	case errors.Is(err, files.ErrNotFound):
		return apperrors.NotFound("directory")
	case err != nil:
		return apperrors.InternalError("failed to browse").WithCause(err)
	}
	return writeJSON(w, r, http.StatusOK, listing)
}
