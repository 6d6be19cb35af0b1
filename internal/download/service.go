package download

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/svtfetch/backend/internal/logger"
)

// Service provides download job management functionality
type Service struct {
	store    *Store
	runner   *Runner
	mirror   *Mirror
	defaults Options
	recorder Recorder
	log      *logger.Logger
}

// ServiceConfig holds configuration for the download service
type ServiceConfig struct {
	WorkerCount int
	JobTimeout  time.Duration
	// Defaults fill in options a submission leaves empty
	Defaults   Options
	Mirror     *Mirror
	Recorder   Recorder
	OnComplete CompletionHook
}

// SubmitRequest is one user submission
type SubmitRequest struct {
	URL     string
	Kind    Kind
	Options SubmitOptions
}

// SubmitOptions are the optional per-submission settings. Nil fields take
// the service defaults.
type SubmitOptions struct {
	DownloadDir string
	Quality     string
	Subtitle    *bool
	Token       string
}

var ErrEmptyURL = errors.New("url is required")

// NewService creates a new download service
func NewService(config *ServiceConfig, fetcher Fetcher) *Service {
	if config == nil {
		config = &ServiceConfig{}
	}

	store := NewStore()
	recorder := config.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	runner := NewRunner(store, fetcher, &RunnerConfig{
		WorkerCount: config.WorkerCount,
		JobTimeout:  config.JobTimeout,
		Recorder:    recorder,
		OnComplete:  config.OnComplete,
	})

	if config.Mirror != nil {
		store.Observe(config.Mirror.Observe)
	}

	return &Service{
		store:    store,
		runner:   runner,
		mirror:   config.Mirror,
		defaults: config.Defaults,
		recorder: recorder,
		log:      logger.Default().WithComponent("download"),
	}
}

// Start restores persisted jobs, then starts the runner
func (s *Service) Start(ctx context.Context) error {
	if s.mirror != nil {
		if err := s.restore(ctx); err != nil {
			return err
		}
	}
	s.runner.Start()
	return nil
}

// restore loads the persisted registry. Jobs that were still in flight when
// the previous process exited can never finish, so they are failed.
func (s *Service) restore(ctx context.Context) error {
	jobs, err := s.mirror.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore jobs: %w", err)
	}

	restored := s.store.Restore(jobs)
	interrupted := 0
	for _, job := range jobs {
		if job.IsTerminal() {
			continue
		}
		_, err := s.store.Update(job.ID, func(j *Job) error {
			return j.Fail(MsgInterrupted, "the server restarted before the job finished")
		})
		if err != nil {
			s.log.Error(ctx, "failed to close interrupted job", err, map[string]interface{}{"job_id": job.ID})
			continue
		}
		interrupted++
	}

	s.log.Info(ctx, "restored jobs", map[string]interface{}{
		"restored":    restored,
		"interrupted": interrupted,
	})
	return nil
}

// Stop gracefully stops the service
func (s *Service) Stop(ctx context.Context) error {
	err := s.runner.Stop(ctx)
	if err != nil {
		s.log.Error(ctx, "runner stop error", err)
	}
	if s.mirror != nil {
		if cerr := s.mirror.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Submit creates a queued job and hands it to the runner
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	if req.URL == "" {
		return nil, ErrEmptyURL
	}

	opts := s.resolveOptions(req.Options)
	job, err := s.store.Create(req.URL, req.Kind, opts)
	if err != nil {
		return nil, err
	}
	s.recorder.IncCounter("jobs_submitted")

	if err := s.runner.Enqueue(ctx, job.ID, req.Options.Token); err != nil {
		// the record must not stay queued forever
		if _, ferr := s.store.Update(job.ID, func(j *Job) error {
			return j.Fail(failedMessage(j.Kind), fmt.Sprintf("could not schedule job: %v", err))
		}); ferr != nil {
			s.log.Error(ctx, "failed to fail unscheduled job", ferr, map[string]interface{}{"job_id": job.ID})
		}
		return nil, err
	}

	s.log.Info(ctx, "job submitted", map[string]interface{}{
		"job_id": job.ID,
		"kind":   string(job.Kind),
		"url":    job.URL,
	})
	return job, nil
}

func (s *Service) resolveOptions(in SubmitOptions) Options {
	opts := Options{
		DownloadDir: in.DownloadDir,
		Quality:     in.Quality,
		Subtitle:    s.defaults.Subtitle,
		Token:       in.Token,
	}
	if opts.DownloadDir == "" {
		opts.DownloadDir = s.defaults.DownloadDir
	}
	if opts.Quality == "" {
		opts.Quality = s.defaults.Quality
	}
	if in.Subtitle != nil {
		opts.Subtitle = *in.Subtitle
	}
	return opts
}

// GetJob retrieves a job by ID
func (s *Service) GetJob(id string) (*Job, error) {
	return s.store.Get(id)
}

// Snapshot returns an immutable copy of every job in insertion order
func (s *Service) Snapshot() []*Job {
	return s.store.List()
}

// Store returns the underlying job store
func (s *Service) Store() *Store {
	return s.store
}

// QueueLength returns the number of jobs waiting for a worker
func (s *Service) QueueLength() int64 {
	return s.runner.QueueLength()
}

// IsRunning returns whether the runner is accepting jobs
func (s *Service) IsRunning() bool {
	return s.runner.IsRunning()
}
