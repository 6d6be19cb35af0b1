package download

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrInvalidKind = errors.New("invalid job kind")
)

// Observer is notified with a private copy of every published job.
// created is true only for the first publication of a job.
type Observer func(job *Job, created bool)

// record holds one job. Writers serialize on mu; readers load the
// published pointer and never block.
type record struct {
	mu  sync.Mutex
	cur atomic.Pointer[Job]
}

// Store is the registry of all jobs, in insertion order
type Store struct {
	mu    sync.RWMutex
	order []*record
	byID  map[string]*record

	observers []Observer
	now       func() time.Time
}

// NewStore creates an empty job store
func NewStore() *Store {
	return &Store{
		byID: make(map[string]*record),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Observe registers fn to receive every published job
func (s *Store) Observe(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Create allocates a fresh queued job
func (s *Store) Create(url string, kind Kind, opts Options) (*Job, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	job := &Job{
		ID:          uuid.New().String(),
		URL:         url,
		Kind:        kind,
		Status:      StatusQueued,
		Message:     queuedMessage(kind),
		StartedAt:   s.now(),
		DownloadDir: opts.DownloadDir,
		Quality:     opts.Quality,
		Subtitle:    opts.Subtitle,
	}

	rec := &record{}
	rec.cur.Store(job)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	s.mu.Lock()
	s.order = append(s.order, rec)
	s.byID[job.ID] = rec
	observers := s.observers
	s.mu.Unlock()

	notify(observers, job, true)
	return job.Clone(), nil
}

// Restore inserts previously persisted jobs, keeping their order.
// Jobs whose id is already present are skipped.
func (s *Store) Restore(jobs []*Job) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for _, job := range jobs {
		if job == nil || job.ID == "" {
			continue
		}
		if _, exists := s.byID[job.ID]; exists {
			continue
		}
		j := job.Clone()
		j.recount()
		rec := &record{}
		rec.cur.Store(j)
		s.order = append(s.order, rec)
		s.byID[j.ID] = rec
		restored++
	}
	return restored
}

// Get returns a copy of the job with the given id
func (s *Store) Get(id string) (*Job, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return rec.cur.Load().Clone(), nil
}

// List returns copies of all jobs in insertion order. Later changes to the
// store never affect a returned slice.
func (s *Store) List() []*Job {
	s.mu.RLock()
	recs := make([]*record, len(s.order))
	copy(recs, s.order)
	s.mu.RUnlock()

	jobs := make([]*Job, 0, len(recs))
	for _, rec := range recs {
		jobs = append(jobs, rec.cur.Load().Clone())
	}
	return jobs
}

// CountByStatus returns how many jobs are in each status. Every status is
// present, with zero counts included.
func (s *Store) CountByStatus() map[Status]int {
	s.mu.RLock()
	recs := make([]*record, len(s.order))
	copy(recs, s.order)
	s.mu.RUnlock()

	counts := make(map[Status]int, len(Statuses()))
	for _, st := range Statuses() {
		counts[st] = 0
	}
	for _, rec := range recs {
		counts[rec.cur.Load().Status]++
	}
	return counts
}

// Len returns the number of jobs in the store
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Update applies fn to a copy of the job and publishes the result as one
// unit. If fn fails or the result breaks a job invariant nothing changes.
func (s *Store) Update(id string, fn func(job *Job) error) (*Job, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	prev := rec.cur.Load()
	if prev.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrJobFinished, id, prev.Status)
	}

	next := prev.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.recount()
	if err := validateUpdate(prev, next); err != nil {
		return nil, err
	}

	rec.cur.Store(next)

	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()
	notify(observers, next, false)

	return next.Clone(), nil
}

func (s *Store) lookup(id string) (*record, error) {
	s.mu.RLock()
	rec, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return rec, nil
}

func notify(observers []Observer, job *Job, created bool) {
	for _, fn := range observers {
		fn(job.Clone(), created)
	}
}
