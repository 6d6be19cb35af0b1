// Package reconciler keeps a client-side view of the job list in sync with
// a server by polling its snapshot endpoints.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/svtfetch/backend/internal/download"
	"github.com/svtfetch/backend/internal/files"
	"github.com/svtfetch/backend/internal/logger"
)

// DefaultInterval is the polling cadence
const DefaultInterval = 5 * time.Second

// Source provides snapshots. *Client is the HTTP implementation.
type Source interface {
	Jobs(ctx context.Context) ([]*download.Job, error)
	Files(ctx context.Context) ([]files.File, error)
}

// Config holds reconciler options
type Config struct {
	Interval time.Duration
	// Files also polls the output file listing
	Files bool
}

// Reconciler polls a Source and re-renders the whole view on every tick.
// Ticks, refreshes and renders all run on the goroutine calling Run, so
// renders never interleave. A tick that comes due while one is still in
// progress is dropped.
type Reconciler struct {
	source   Source
	renderer Renderer
	interval time.Duration
	files    bool
	refresh  chan struct{}
	now      func() time.Time
	log      *logger.Logger

	mu       sync.RWMutex
	view     *View
	failures int
	dropped  int
}

func New(source Source, renderer Renderer, cfg *Config) *Reconciler {
	if cfg == nil {
		cfg = &Config{}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Reconciler{
		source:   source,
		renderer: renderer,
		interval: interval,
		files:    cfg.Files,
		refresh:  make(chan struct{}, 1),
		now:      time.Now,
		log:      logger.Default().WithComponent("reconciler"),
		view:     &View{},
	}
}

// Run ticks immediately and then every interval until ctx is done
func (r *Reconciler) Run(ctx context.Context) error {
	r.Tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-r.refresh:
		}

		r.Tick(ctx)

		// a tick that fired meanwhile is stale
		select {
		case <-ticker.C:
			r.mu.Lock()
			r.dropped++
			r.mu.Unlock()
		default:
		}
	}
}

// Refresh asks Run for an out-of-band tick. Requests made while one is
// pending coalesce.
func (r *Reconciler) Refresh() {
	select {
	case r.refresh <- struct{}{}:
	default:
	}
}

// View returns the most recently rendered view
func (r *Reconciler) View() *View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view
}

// Tick fetches a fresh snapshot, replaces the view and renders it. On a
// failed fetch the previous view is rendered again with the error attached.
func (r *Reconciler) Tick(ctx context.Context) {
	view, err := r.fetch(ctx)

	r.mu.Lock()
	if err != nil {
		r.failures++
		prev := *r.view
		prev.LastError = err
		prev.Failures = r.failures
		view = &prev
	} else {
		r.failures = 0
	}
	view.Dropped = r.dropped
	r.view = view
	r.mu.Unlock()

	if err != nil {
		r.log.Warn(ctx, "snapshot fetch failed", map[string]interface{}{
			"error":    err.Error(),
			"failures": view.Failures,
		})
	}

	if err := r.renderer.Render(view); err != nil {
		r.log.Error(ctx, "render failed", err)
	}
}

func (r *Reconciler) fetch(ctx context.Context) (*View, error) {
	jobs, err := r.source.Jobs(ctx)
	if err != nil {
		return nil, err
	}

	var fs []files.File
	if r.files {
		fs, err = r.source.Files(ctx)
		if err != nil {
			return nil, err
		}
	}

	return NewView(jobs, fs, r.now()), nil
}
