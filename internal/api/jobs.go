package api

import (
	"errors"
	"net/http"

	"github.com/svtfetch/backend/internal/download"
	apperrors "github.com/svtfetch/backend/internal/errors"
)

type JobHandlers struct {
	downloads *download.Service
}

func NewJobHandlers(downloads *download.Service) *JobHandlers {
	return &JobHandlers{downloads: downloads}
}

// SubmitRequest is the body of the submission endpoints. Kind is only read
// by the generic endpoint.
type SubmitRequest struct {
	URL     string        `json:"url"`
	Kind    download.Kind `json:"kind,omitempty"`
	Options SubmitOptions `json:"options"`
}

// SubmitOptions are the optional per-job settings
type SubmitOptions struct {
	DownloadDir string `json:"download_dir,omitempty"`
	Quality     string `json:"quality,omitempty"`
	Subtitle    *bool  `json:"subtitle,omitempty"`
	Token       string `json:"token,omitempty"`
}

// SubmitResponse acknowledges a created job
type SubmitResponse struct {
	JobID  string          `json:"job_id"`
	Status download.Status `json:"status"`
}

// SnapshotResponse is the body of GET /api/downloads
type SnapshotResponse struct {
	Jobs []*download.Job `json:"jobs"`
}

// SubmitSingle handles POST /api/download
func (h *JobHandlers) SubmitSingle(w http.ResponseWriter, r *http.Request) error {
	return h.submit(w, r, download.KindSingle)
}

// SubmitSeason handles POST /api/download/season
func (h *JobHandlers) SubmitSeason(w http.ResponseWriter, r *http.Request) error {
	return h.submit(w, r, download.KindSeason)
}

// Submit handles POST /api/jobs, where the body names the kind
func (h *JobHandlers) Submit(w http.ResponseWriter, r *http.Request) error {
	return h.submit(w, r, "")
}

func (h *JobHandlers) submit(w http.ResponseWriter, r *http.Request, kind download.Kind) error {
	var req SubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	if kind == "" {
		kind = req.Kind
	}
	if req.URL == "" {
		return apperrors.ValidationError("url is required")
	}
	if !kind.Valid() {
		return apperrors.ValidationError("kind must be single or season")
	}

	job, err := h.downloads.Submit(r.Context(), download.SubmitRequest{
		URL:  req.URL,
		Kind: kind,
		Options: download.SubmitOptions{
			DownloadDir: req.Options.DownloadDir,
			Quality:     req.Options.Quality,
			Subtitle:    req.Options.Subtitle,
			Token:       req.Options.Token,
		},
	})
	if err != nil {
		return submitError(err)
	}

	return writeJSON(w, r, http.StatusCreated, SubmitResponse{JobID: job.ID, Status: job.Status})
}

func submitError(err error) error {
	switch {
	case errors.Is(err, download.ErrEmptyURL), errors.Is(err, download.ErrInvalidKind):
		return apperrors.ValidationError(err.Error())
	case errors.Is(err, download.ErrRunnerStopped):
		return apperrors.Unavailable("the download runner is not accepting jobs")
	}
	return apperrors.InternalError("failed to create download job").WithCause(err)
}

// List handles GET /api/downloads. Jobs are returned in submission order.
func (h *JobHandlers) List(w http.ResponseWriter, r *http.Request) error {
	jobs := h.downloads.Snapshot()
	if jobs == nil {
		jobs = []*download.Job{}
	}
	return writeJSON(w, r, http.StatusOK, SnapshotResponse{Jobs: jobs})
}

// Get handles GET /api/downloads/{id}
func (h *JobHandlers) Get(w http.ResponseWriter, r *http.Request) error {
	job, err := h.downloads.GetJob(r.PathValue("id"))
	if errors.Is(err, download.ErrJobNotFound) {
		return apperrors.JobNotFound()
	}
	if err != nil {
		return apperrors.InternalError("failed to read job").WithCause(err)
	}
	return writeJSON(w, r, http.StatusOK, job)
}
