package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/svtfetch/backend/internal/cache"
	"github.com/svtfetch/backend/internal/download"
	apperrors "github.com/svtfetch/backend/internal/errors"
	"github.com/svtfetch/backend/internal/svtplay"
	"github.com/svtfetch/backend/internal/validators"
)

// Prober inspects a URL without downloading it
type Prober interface {
	Episodes(ctx context.Context, url string, opts download.Options) ([]string, error)
	Info(ctx context.Context, url string) (json.RawMessage, error)
}

type ProbeHandlers struct {
	prober   Prober
	cache    *cache.Cache
	registry *validators.Registry
}

func NewProbeHandlers(prober Prober, c *cache.Cache, registry *validators.Registry) *ProbeHandlers {
	return &ProbeHandlers{prober: prober, cache: c, registry: registry}
}

type InfoResponse struct {
	Info json.RawMessage `json:"info"`
}

type EpisodesResponse struct {
	Episodes []string `json:"episodes"`
	Count    int      `json:"count"`
	Cached   bool     `json:"cached"`
}

// Info handles POST /api/info
func (h *ProbeHandlers) Info(w http.ResponseWriter, r *http.Request) error {
	var req urlRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	if req.URL == "" {
		return apperrors.ValidationError("url is required")
	}

	info, err := h.prober.Info(r.Context(), req.URL)
	if err != nil {
		return probeError(err)
	}
	return writeJSON(w, r, http.StatusOK, InfoResponse{Info: info})
}

// Episodes handles POST /api/episodes. Lists fetched without a token are
// cached when a cache is configured; a token can change what is visible.
func (h *ProbeHandlers) Episodes(w http.ResponseWriter, r *http.Request) error {
	var req urlRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	if req.URL == "" {
		return apperrors.ValidationError("url is required")
	}

	opts := download.Options{Token: req.Token}
	probe := func(ctx context.Context, url string) ([]string, error) {
		return h.prober.Episodes(ctx, url, opts)
	}

	var (
		episodes []string
		cached   bool
		err      error
	)
	if h.cache != nil && req.Token == "" {
		episodes, cached, err = h.cache.Episodes(r.Context(), req.URL, probe)
	} else {
		episodes, err = probe(r.Context(), req.URL)
	}
	if err != nil {
		return probeError(err)
	}
	if episodes == nil {
		episodes = []string{}
	}

	return writeJSON(w, r, http.StatusOK, EpisodesResponse{Episodes: episodes, Count: len(episodes), Cached: cached})
}

// Validate handles POST /api/validate
func (h *ProbeHandlers) Validate(w http.ResponseWriter, r *http.Request) error {
	var req urlRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	if req.URL == "" {
		return apperrors.ValidationError("url is required")
	}
	return writeJSON(w, r, http.StatusOK, h.registry.Validate(req.URL))
}

// probeError maps tool failures onto HTTP errors
func probeError(err error) error {
	switch {
	case errors.Is(err, svtplay.ErrInvalidURL):
		return apperrors.ValidationError(err.Error())
	case errors.Is(err, svtplay.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return apperrors.ExternalTimeout("svtplay-dl").WithCause(err)
	case errors.Is(err, svtplay.ErrBinaryNotFound):
		return apperrors.Unavailable("svtplay-dl is not installed").WithCause(err)
	}

	var dlErr *svtplay.DownloadError
	if errors.As(err, &dlErr) {
		msg := dlErr.Summary()
		if msg == "" {
			msg = dlErr.Message
		}
		return apperrors.DownloadError(msg).WithCause(err)
	}
	return apperrors.InternalError("probe failed").WithCause(err)
}
