package download

import (
	"sort"
	"time"
)

// Kind identifies what a job downloads
type Kind string

const (
	KindSingle Kind = "single"
	KindSeason Kind = "season"
)

// Valid reports whether k is a known job kind
func (k Kind) Valid() bool {
	return k == KindSingle || k == KindSeason
}

// Status is the lifecycle state of a job
type Status string

// Job status constants representing the job lifecycle
const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Statuses lists every job status in lifecycle order
func Statuses() []Status {
	return []Status{StatusQueued, StatusDownloading, StatusCompleted, StatusFailed}
}

// IsTerminal returns true if no further transition is allowed out of s
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// EpisodeStatus is the state of a single episode within a season job
type EpisodeStatus string

const (
	EpisodePending     EpisodeStatus = "pending"
	EpisodeDownloading EpisodeStatus = "downloading"
	EpisodeCompleted   EpisodeStatus = "completed"
	EpisodeSkipped     EpisodeStatus = "skipped"
)

// EpisodeStatuses lists every episode status in lifecycle order
func EpisodeStatuses() []EpisodeStatus {
	return []EpisodeStatus{EpisodePending, EpisodeDownloading, EpisodeCompleted, EpisodeSkipped}
}

// IsTerminal returns true once the episode is completed or skipped
func (s EpisodeStatus) IsTerminal() bool {
	return s == EpisodeCompleted || s == EpisodeSkipped
}

// Job messages
const (
	MsgQueued             = "Queued for download"
	MsgQueuedSeason       = "Queued for season download"
	MsgDownloading        = "Downloading..."
	MsgDownloadingSeason  = "Downloading season..."
	MsgCompleted          = "Download completed"
	MsgFailed             = "Download failed"
	MsgFailedSeason       = "Season download failed"
	MsgTimedOut           = "Download timed out"
	MsgNoEpisodes         = "No videos found"
	MsgInterrupted        = "Interrupted by server restart"
	MsgAlreadyExists      = "File already exists"
	msgEpisodeProgressFmt = "Processing episode %d of %d"
	msgSeasonDoneFmt      = "Season download completed: %d downloaded, %d skipped (already existed)"
)

// Episode tracks one episode of a season job
type Episode struct {
	Number   int           `json:"number"`
	Status   EpisodeStatus `json:"status"`
	URL      string        `json:"url,omitempty"`
	Filename string        `json:"filename,omitempty"`
}

// Options are the tool settings a job was submitted with
type Options struct {
	DownloadDir string `json:"download_dir"`
	Quality     string `json:"quality,omitempty"`
	Subtitle    bool   `json:"subtitle"`
	// Token is handed to the tool but never stored on the job
	Token string `json:"-"`
}

// Job represents one submitted download, a single video or a whole season
type Job struct {
	ID             string          `json:"id"`
	URL            string          `json:"url"`
	Kind           Kind            `json:"kind"`
	Status         Status          `json:"status"`
	Message        string          `json:"message"`
	Error          string          `json:"error,omitempty"`
	Progress       int             `json:"progress"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
	DownloadDir    string          `json:"download_dir"`
	Quality        string          `json:"quality,omitempty"`
	Subtitle       bool            `json:"subtitle"`
	OutputFile     string          `json:"output_file,omitempty"`
	CurrentEpisode int             `json:"current_episode,omitempty"`
	Episodes       map[int]Episode `json:"episodes,omitempty"`

	TotalEpisodes     int `json:"total_episodes"`
	CompletedEpisodes int `json:"completed_episodes"`
	SkippedEpisodes   int `json:"skipped_episodes"`
}

// IsTerminal returns true if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// Clone returns a deep copy of the job
func (j *Job) Clone() *Job {
	c := *j
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	if j.Episodes != nil {
		c.Episodes = make(map[int]Episode, len(j.Episodes))
		for n, ep := range j.Episodes {
			c.Episodes[n] = ep
		}
	}
	return &c
}

// SortedEpisodes returns the episodes ordered by number
func (j *Job) SortedEpisodes() []Episode {
	eps := make([]Episode, 0, len(j.Episodes))
	for _, ep := range j.Episodes {
		eps = append(eps, ep)
	}
	sort.Slice(eps, func(a, b int) bool { return eps[a].Number < eps[b].Number })
	return eps
}

// AllEpisodesTerminal reports whether every episode is completed or skipped
func (j *Job) AllEpisodesTerminal() bool {
	for _, ep := range j.Episodes {
		if !ep.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// recount derives the aggregate counters from the episode map
func (j *Job) recount() {
	if j.Kind != KindSeason {
		return
	}
	j.TotalEpisodes = len(j.Episodes)
	j.CompletedEpisodes = 0
	j.SkippedEpisodes = 0
	for _, ep := range j.Episodes {
		switch ep.Status {
		case EpisodeCompleted:
			j.CompletedEpisodes++
		case EpisodeSkipped:
			j.SkippedEpisodes++
		}
	}
	if j.TotalEpisodes > 0 {
		j.Progress = (j.CompletedEpisodes + j.SkippedEpisodes) * 100 / j.TotalEpisodes
	}
}

func queuedMessage(kind Kind) string {
	if kind == KindSeason {
		return MsgQueuedSeason
	}
	return MsgQueued
}

func downloadingMessage(kind Kind) string {
	if kind == KindSeason {
		return MsgDownloadingSeason
	}
	return MsgDownloading
}

func failedMessage(kind Kind) string {
	if kind == KindSeason {
		return MsgFailedSeason
	}
	return MsgFailed
}
