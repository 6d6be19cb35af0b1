package api

import (
	"net/http"

	"github.com/svtfetch/backend/internal/cache"
	"github.com/svtfetch/backend/internal/download"
	apperrors "github.com/svtfetch/backend/internal/errors"
	"github.com/svtfetch/backend/internal/health"
	"github.com/svtfetch/backend/internal/logger"
	"github.com/svtfetch/backend/internal/metrics"
	"github.com/svtfetch/backend/internal/middleware"
	"github.com/svtfetch/backend/internal/profile"
	"github.com/svtfetch/backend/internal/validators"
)

// Config holds the collaborators the router dispatches to. Health,
// Metrics, ProbeCache and RateLimiter are optional.
type Config struct {
	Downloads   *download.Service
	Prober      Prober
	ProbeCache  *cache.Cache
	Profiles    *profile.Manager
	Validators  *validators.Registry
	Health      *health.Handler
	Metrics     *metrics.Metrics
	RateLimiter *middleware.RateLimiter
	DownloadDir string
	BrowseRoot  string
}

type Router struct {
	mux      *http.ServeMux
	jobs     *JobHandlers
	probes   *ProbeHandlers
	files    *FileHandlers
	profiles *ProfileHandlers
	health   *health.Handler
	metrics  *metrics.Metrics
	limiter  *middleware.RateLimiter
	log      *logger.Logger
}

func NewRouter(cfg *Config) *Router {
	registry := cfg.Validators
	if registry == nil {
		registry = validators.DefaultRegistry()
	}

	r := &Router{
		mux:      http.NewServeMux(),
		jobs:     NewJobHandlers(cfg.Downloads),
		probes:   NewProbeHandlers(cfg.Prober, cfg.ProbeCache, registry),
		files:    NewFileHandlers(cfg.DownloadDir, cfg.BrowseRoot),
		profiles: NewProfileHandlers(cfg.Profiles),
		health:   cfg.Health,
		metrics:  cfg.Metrics,
		limiter:  cfg.RateLimiter,
		log:      logger.Default().WithComponent("api"),
	}
	r.setupRoutes()
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) setupRoutes() {
	if r.health != nil {
		r.mux.HandleFunc("GET /health", r.health.HealthHandler)
		r.mux.HandleFunc("GET /health/live", r.health.LivenessHandler)
		r.mux.HandleFunc("GET /health/ready", r.health.ReadinessHandler)
	}
	if r.metrics != nil {
		r.mux.Handle("GET /metrics", r.metrics.Handler())
	}

	// Probes
	r.mux.Handle("POST /api/info", r.handle(r.probes.Info))
	r.mux.Handle("POST /api/episodes", r.handle(r.probes.Episodes))
	r.mux.Handle("POST /api/validate", r.handle(r.probes.Validate))

	// Submissions
	r.mux.Handle("POST /api/download", r.limited(r.handle(r.jobs.SubmitSingle)))
	r.mux.Handle("POST /api/download/season", r.limited(r.handle(r.jobs.SubmitSeason)))
	r.mux.Handle("POST /api/jobs", r.limited(r.handle(r.jobs.Submit)))

	// Snapshots
	r.mux.Handle("GET /api/downloads", r.handle(r.jobs.List))
	r.mux.Handle("GET /api/downloads/files", r.handle(r.files.List))
	r.mux.Handle("GET /api/downloads/{id}", r.handle(r.jobs.Get))
	r.mux.Handle("GET /downloads/{file}", r.handle(r.files.Serve))

	// Profiles
	r.mux.Handle("GET /api/profiles", r.handle(r.profiles.List))
	r.mux.Handle("GET /api/profiles/{id}", r.handle(r.profiles.Get))
	r.mux.Handle("POST /api/profiles", r.handle(r.profiles.Save))
	r.mux.Handle("DELETE /api/profiles/{id}", r.handle(r.profiles.Delete))

	r.mux.Handle("GET /api/browse", r.handle(r.files.Browse))
}

func (r *Router) handle(h apperrors.Handler) http.Handler {
	return errorLogging(r.log, h)
}

func (r *Router) limited(h http.Handler) http.Handler {
	if r.limiter == nil {
		return h
	}
	return r.limiter.Middleware(h)
}
