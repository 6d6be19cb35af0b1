package download

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/svtfetch/backend/internal/logger"
)

const (
	// Default configuration values
	DefaultWorkerCount = 3
	DefaultJobTimeout  = 2 * time.Hour

	// MsgCanceled is set when shutdown interrupts a running job
	MsgCanceled = "Download interrupted"
)

var ErrRunnerStopped = errors.New("runner is not running")

// Recorder receives job counters and gauges
type Recorder interface {
	IncCounter(name string)
	SetGauge(name string, value float64)
}

// Summarizer is implemented by errors that carry a short user-facing summary
type Summarizer interface {
	Summary() string
}

// CompletionHook runs after a job completes successfully
type CompletionHook func(ctx context.Context, job *Job)

type task struct {
	id    string
	token string
}

// Runner dispatches queued jobs to a bounded pool of workers
type Runner struct {
	store       *Store
	fetcher     Fetcher
	workerCount int
	jobTimeout  time.Duration
	recorder    Recorder
	onComplete  CompletionHook
	log         *logger.Logger

	incoming chan task
	work     chan task
	pending  atomic.Int64
	active   atomic.Int64

	wg       sync.WaitGroup
	stopChan chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.RWMutex
	running  bool
}

// RunnerConfig holds configuration for the runner
type RunnerConfig struct {
	WorkerCount int
	JobTimeout  time.Duration
	Recorder    Recorder
	OnComplete  CompletionHook
}

// NewRunner creates a runner that executes jobs from store with fetcher
func NewRunner(store *Store, fetcher Fetcher, config *RunnerConfig) *Runner {
	if config == nil {
		config = &RunnerConfig{}
	}

	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}

	jobTimeout := config.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}

	recorder := config.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Runner{
		store:       store,
		fetcher:     fetcher,
		workerCount: workerCount,
		jobTimeout:  jobTimeout,
		recorder:    recorder,
		onComplete:  config.OnComplete,
		log:         logger.Default().WithComponent("download"),
		stopChan:    make(chan struct{}),
	}
}

// Start launches the dispatcher and the workers
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}

	r.running = true
	r.stopChan = make(chan struct{})
	r.incoming = make(chan task)
	r.work = make(chan task)
	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.wg.Add(1)
	go r.dispatch()

	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.log.Info(r.ctx, "runner started", map[string]interface{}{"workers": r.workerCount})
}

// Stop stops accepting jobs and waits for running ones. If ctx expires
// first, running jobs are canceled and fail.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	close(r.stopChan)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		r.log.Info(ctx, "runner stopped gracefully")
		return nil
	case <-ctx.Done():
		r.cancel()
		r.log.Warn(ctx, "runner shutdown timed out, canceling running jobs")
		<-done
		return ctx.Err()
	}
}

// IsRunning returns whether the runner is accepting jobs
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// QueueLength returns the number of jobs waiting for a worker
func (r *Runner) QueueLength() int64 {
	return r.pending.Load()
}

// ActiveJobs returns the number of jobs currently being processed
func (r *Runner) ActiveJobs() int64 {
	return r.active.Load()
}

// Enqueue hands a queued job to the dispatcher. The token is passed to the
// tool and never stored.
func (r *Runner) Enqueue(ctx context.Context, jobID, token string) error {
	r.mu.RLock()
	running := r.running
	incoming, stop := r.incoming, r.stopChan
	r.mu.RUnlock()

	if !running {
		return ErrRunnerStopped
	}

	select {
	case incoming <- task{id: jobID, token: token}:
		return nil
	case <-stop:
		return ErrRunnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch buffers submitted tasks and hands them to idle workers in order
func (r *Runner) dispatch() {
	defer r.wg.Done()

	var pending []task
	for {
		var out chan task
		var next task
		if len(pending) > 0 {
			out = r.work
			next = pending[0]
		}

		select {
		case t := <-r.incoming:
			pending = append(pending, t)
		case out <- next:
			pending = pending[1:]
		case <-r.stopChan:
			if len(pending) > 0 {
				r.log.Warn(r.ctx, "runner stopped with queued jobs", map[string]interface{}{"queued": len(pending)})
			}
			return
		}

		r.pending.Store(int64(len(pending)))
		r.recorder.SetGauge("jobs_queued", float64(len(pending)))
	}
}

// worker is the main loop for a single worker
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopChan:
			return
		case t := <-r.work:
			r.processJob(id, t)
		}
	}
}

// processJob drives one job from queued to a terminal state
func (r *Runner) processJob(workerID int, t task) {
	ctx := r.ctx
	fields := map[string]interface{}{"worker": workerID, "job_id": t.id}

	job, err := r.store.Get(t.id)
	if err != nil {
		r.log.Error(ctx, "job vanished before dispatch", err, fields)
		return
	}
	fields["kind"] = string(job.Kind)

	if err := r.fetcher.Validate(job.URL); err != nil {
		r.fail(ctx, job.ID, err, fields)
		return
	}

	if _, err := r.store.Update(job.ID, (*Job).Start); err != nil {
		r.log.Error(ctx, "failed to start job", err, fields)
		return
	}

	r.recorder.SetGauge("jobs_active", float64(r.active.Add(1)))
	defer func() { r.recorder.SetGauge("jobs_active", float64(r.active.Add(-1))) }()

	r.log.Info(ctx, "processing job", fields)

	jobCtx, cancel := context.WithTimeout(ctx, r.jobTimeout)
	defer cancel()

	opts := Options{
		DownloadDir: job.DownloadDir,
		Quality:     job.Quality,
		Subtitle:    job.Subtitle,
		Token:       t.token,
	}

	if job.Kind == KindSeason {
		urls, err := r.fetcher.Episodes(jobCtx, job.URL, opts)
		if err != nil {
			r.fail(ctx, job.ID, err, fields)
			return
		}
		if len(urls) == 0 {
			r.fail(ctx, job.ID, &noEpisodesError{url: job.URL}, fields)
			return
		}
		if _, err := r.store.Update(job.ID, func(j *Job) error { return j.DiscoverEpisodes(urls) }); err != nil {
			r.fail(ctx, job.ID, err, fields)
			return
		}
		r.log.Debug(ctx, "episodes discovered", map[string]interface{}{"job_id": job.ID, "episodes": len(urls)})
	}

	var totalChecked bool
	events := func(ev Event) {
		if ev.Type == EventEpisode && !totalChecked && job.Kind == KindSeason {
			totalChecked = true
			r.checkEpisodeTotal(ctx, job.ID, ev.Total)
		}
		if _, err := r.store.Update(job.ID, func(j *Job) error { return applyEvent(j, ev) }); err != nil {
			r.log.Warn(ctx, "dropped progress event", map[string]interface{}{
				"job_id":  job.ID,
				"episode": ev.Episode,
				"error":   err.Error(),
			})
		}
	}

	req := FetchRequest{URL: job.URL, Kind: job.Kind, Options: opts}
	if err := r.fetcher.Fetch(jobCtx, req, events); err != nil {
		r.fail(ctx, job.ID, err, fields)
		return
	}

	done, err := r.store.Update(job.ID, func(j *Job) error {
		j.FinishEpisodes()
		return j.Complete()
	})
	if err != nil {
		r.log.Error(ctx, "failed to complete job", err, fields)
		return
	}

	r.recorder.IncCounter("jobs_completed")
	r.log.Info(ctx, "job completed", map[string]interface{}{
		"job_id":    done.ID,
		"message":   done.Message,
		"completed": done.CompletedEpisodes,
		"skipped":   done.SkippedEpisodes,
	})

	if r.onComplete != nil {
		r.onComplete(ctx, done)
	}
}

// checkEpisodeTotal warns once when the tool's episode count disagrees
// with the episodes discovered before the download started
func (r *Runner) checkEpisodeTotal(ctx context.Context, jobID string, reported int) {
	job, err := r.store.Get(jobID)
	if err != nil || reported <= 0 || reported == job.TotalEpisodes {
		return
	}
	r.log.Warn(ctx, "episode total differs from discovered episodes", map[string]interface{}{
		"job_id":     jobID,
		"reported":   reported,
		"discovered": job.TotalEpisodes,
	})
}

// fail records a job failure on the job itself
func (r *Runner) fail(ctx context.Context, jobID string, jobErr error, fields map[string]interface{}) {
	r.log.Warn(ctx, "job failed", map[string]interface{}{
		"job_id": jobID,
		"kind":   fields["kind"],
		"error":  jobErr.Error(),
	})

	_, err := r.store.Update(jobID, func(j *Job) error {
		text := jobErr.Error()
		if j.Kind == KindSeason && j.CurrentEpisode > 0 {
			text = fmt.Sprintf("episode %d: %s", j.CurrentEpisode, text)
		}
		return j.Fail(failureMessage(j.Kind, jobErr), text)
	})
	if err != nil {
		r.log.Error(ctx, "failed to record job failure", err, fields)
		return
	}
	r.recorder.IncCounter("jobs_failed")
}

// failureMessage picks the summary shown for a failed job
func failureMessage(kind Kind, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return MsgTimedOut
	case errors.Is(err, context.Canceled):
		return MsgCanceled
	}

	var s Summarizer
	if errors.As(err, &s) && s.Summary() != "" {
		return s.Summary()
	}
	return failedMessage(kind)
}

type noEpisodesError struct {
	url string
}

func (e *noEpisodesError) Error() string {
	return "no episodes found at " + e.url
}

func (e *noEpisodesError) Summary() string {
	return MsgNoEpisodes
}

type nopRecorder struct{}

func (nopRecorder) IncCounter(string)        {}
func (nopRecorder) SetGauge(string, float64) {}
