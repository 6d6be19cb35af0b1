package download

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrJobFinished       = errors.New("job already finished")
	ErrEpisodeConflict   = errors.New("episode data inconsistency")
	ErrInvalidJob        = errors.New("job invariant violated")
)

var allowedTransitions = map[Status]map[Status]bool{
	StatusQueued: {
		StatusDownloading: true,
		StatusFailed:      true,
	},
	StatusDownloading: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
}

var allowedEpisodeTransitions = map[EpisodeStatus]map[EpisodeStatus]bool{
	EpisodePending: {
		EpisodeDownloading: true,
		EpisodeCompleted:   true,
		EpisodeSkipped:     true,
	},
	EpisodeDownloading: {
		EpisodeCompleted: true,
		EpisodeSkipped:   true,
	},
}

// CanTransition reports whether a job may move from one status to another
func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

// CanTransitionEpisode reports whether an episode may move between the given states
func CanTransitionEpisode(from, to EpisodeStatus) bool {
	return allowedEpisodeTransitions[from][to]
}

// Start moves a queued job to downloading
func (j *Job) Start() error {
	return j.transition(StatusDownloading, downloadingMessage(j.Kind), "")
}

// Complete moves a downloading job to completed. A season job completes
// only once every episode is completed or skipped.
func (j *Job) Complete() error {
	msg := MsgCompleted
	if j.Kind == KindSeason {
		if !j.AllEpisodesTerminal() {
			return fmt.Errorf("%w: season has unfinished episodes", ErrInvalidTransition)
		}
		j.recount()
		msg = fmt.Sprintf(msgSeasonDoneFmt, j.CompletedEpisodes, j.SkippedEpisodes)
	}
	j.Progress = 100
	return j.transition(StatusCompleted, msg, "")
}

// Fail moves the job to failed with a summary message and error text
func (j *Job) Fail(message, errText string) error {
	if message == "" {
		message = failedMessage(j.Kind)
	}
	if errText == "" {
		errText = message
	}
	return j.transition(StatusFailed, message, errText)
}

func (j *Job) transition(to Status, message, errText string) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	j.Message = message
	j.Error = errText
	if to.IsTerminal() {
		now := time.Now().UTC()
		j.FinishedAt = &now
	}
	return nil
}

// DiscoverEpisodes populates the episode map with one pending episode per URL,
// numbered from 1 in source order. Discovery happens once per job.
func (j *Job) DiscoverEpisodes(urls []string) error {
	if j.Kind != KindSeason {
		return fmt.Errorf("%w: %s job has no episodes", ErrEpisodeConflict, j.Kind)
	}
	if len(j.Episodes) > 0 {
		return fmt.Errorf("%w: episodes already discovered", ErrEpisodeConflict)
	}
	j.Episodes = make(map[int]Episode, len(urls))
	for i, u := range urls {
		j.Episodes[i+1] = Episode{Number: i + 1, Status: EpisodePending, URL: u}
	}
	j.recount()
	return nil
}

// UpdateEpisode applies fn to episode n. Unknown numbers are a data inconsistency.
func (j *Job) UpdateEpisode(n int, fn func(ep *Episode)) error {
	ep, ok := j.Episodes[n]
	if !ok {
		return fmt.Errorf("%w: episode %d of %d", ErrEpisodeConflict, n, len(j.Episodes))
	}
	fn(&ep)
	ep.Number = n
	j.Episodes[n] = ep
	j.recount()
	return nil
}

// SetEpisodeStatus moves episode n to status, ignoring a repeat of the current status
func (j *Job) SetEpisodeStatus(n int, status EpisodeStatus) error {
	ep, ok := j.Episodes[n]
	if !ok {
		return fmt.Errorf("%w: episode %d of %d", ErrEpisodeConflict, n, len(j.Episodes))
	}
	if ep.Status == status {
		return nil
	}
	if !CanTransitionEpisode(ep.Status, status) {
		return fmt.Errorf("%w: episode %d %q -> %q", ErrInvalidTransition, n, ep.Status, status)
	}
	return j.UpdateEpisode(n, func(ep *Episode) { ep.Status = status })
}

// FinishEpisodes marks every unfinished episode completed
func (j *Job) FinishEpisodes() {
	for n, ep := range j.Episodes {
		if !ep.Status.IsTerminal() {
			ep.Status = EpisodeCompleted
			j.Episodes[n] = ep
		}
	}
	j.recount()
}

// validateUpdate checks that next is a legal successor of prev
func validateUpdate(prev, next *Job) error {
	if prev.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobFinished, prev.ID, prev.Status)
	}
	if next.ID != prev.ID || next.URL != prev.URL || next.Kind != prev.Kind || !next.StartedAt.Equal(prev.StartedAt) {
		return fmt.Errorf("%w: immutable field changed", ErrInvalidJob)
	}
	if next.Status != prev.Status && !CanTransition(prev.Status, next.Status) {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, prev.Status, next.Status)
	}
	if (next.Status == StatusFailed) != (next.Error != "") {
		return fmt.Errorf("%w: error must be set exactly when failed", ErrInvalidJob)
	}
	if next.Message == "" {
		return fmt.Errorf("%w: empty message", ErrInvalidJob)
	}

	if next.Kind == KindSingle {
		if len(next.Episodes) > 0 {
			return fmt.Errorf("%w: single job has episodes", ErrInvalidJob)
		}
		return nil
	}

	if len(prev.Episodes) > 0 && len(next.Episodes) != len(prev.Episodes) {
		return fmt.Errorf("%w: episode count changed from %d to %d", ErrEpisodeConflict, len(prev.Episodes), len(next.Episodes))
	}
	for n, ep := range next.Episodes {
		if n < 1 || n > len(next.Episodes) || ep.Number != n {
			return fmt.Errorf("%w: bad episode number %d", ErrEpisodeConflict, n)
		}
		if old, ok := prev.Episodes[n]; ok && old.Status != ep.Status && !CanTransitionEpisode(old.Status, ep.Status) {
			return fmt.Errorf("%w: episode %d %q -> %q", ErrInvalidTransition, n, old.Status, ep.Status)
		}
	}
	if next.Status == StatusCompleted && !next.AllEpisodesTerminal() {
		return fmt.Errorf("%w: season completed with unfinished episodes", ErrInvalidJob)
	}
	return nil
}
