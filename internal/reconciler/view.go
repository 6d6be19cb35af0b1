package reconciler

import (
	"sort"
	"time"

	"github.com/svtfetch/backend/internal/download"
	"github.com/svtfetch/backend/internal/files"
)

// View is what one tick renders. It is rebuilt from scratch every time.
type View struct {
	Jobs      []*download.Job
	Files     []files.File
	UpdatedAt time.Time

	// LastError is the most recent failed fetch, cleared by a good one
	LastError error
	Failures  int
	Dropped   int
}

// NewView builds a view from a snapshot, newest job first
func NewView(jobs []*download.Job, fs []files.File, now time.Time) *View {
	v := &View{
		Jobs:      append([]*download.Job(nil), jobs...),
		Files:     append([]files.File(nil), fs...),
		UpdatedAt: now,
	}
	SortJobs(v.Jobs)
	sort.SliceStable(v.Files, func(i, j int) bool {
		return v.Files[i].Modified.After(v.Files[j].Modified)
	})
	return v
}

// SortJobs orders jobs by started_at descending, then by id
func SortJobs(jobs []*download.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		a, b := jobs[i], jobs[j]
		if !a.StartedAt.Equal(b.StartedAt) {
			return a.StartedAt.After(b.StartedAt)
		}
		return a.ID < b.ID
	})
}
