package download

import (
	"context"
	"errors"
	"fmt"
)

// EventType identifies a progress report from the download tool
type EventType int

const (
	// EventEpisode reports that the tool moved on to episode Episode of Total
	EventEpisode EventType = iota
	// EventEpisodeURL reports the source URL of the current episode
	EventEpisodeURL
	// EventFilename reports the destination file name
	EventFilename
	// EventAlreadyExists reports that the destination file already existed
	EventAlreadyExists
	// EventDownloading reports that data is being fetched
	EventDownloading
	// EventProgress reports a completion percentage
	EventProgress
)

// Event is one progress report. Episode is 0 for single-video jobs.
type Event struct {
	Type    EventType
	Episode int
	Total   int
	Value   string
	Percent float64
}

// FetchRequest describes one tool invocation
type FetchRequest struct {
	URL     string
	Kind    Kind
	Options Options
}

// Fetcher runs the external download tool
type Fetcher interface {
	// Validate rejects URLs the tool cannot resolve
	Validate(url string) error
	// Episodes lists the episode URLs of a season in source order
	Episodes(ctx context.Context, url string, opts Options) ([]string, error)
	// Fetch downloads the request, reporting progress through events
	Fetch(ctx context.Context, req FetchRequest, events func(Event)) error
}

// applyEvent folds one tool event into the job
func applyEvent(job *Job, ev Event) error {
	if job.Kind == KindSingle {
		switch ev.Type {
		case EventFilename:
			job.OutputFile = ev.Value
		case EventAlreadyExists:
			job.Message = MsgAlreadyExists
		case EventProgress:
			p := int(ev.Percent)
			if p > job.Progress && p <= 100 {
				job.Progress = p
			}
		}
		return nil
	}

	if ev.Type != EventEpisode && ev.Episode == 0 {
		// output before the first episode header
		return nil
	}

	switch ev.Type {
	case EventEpisode:
		if ev.Episode < 1 || ev.Episode > len(job.Episodes) {
			return fmt.Errorf("%w: episode %d reported, %d discovered", ErrEpisodeConflict, ev.Episode, len(job.Episodes))
		}
		// the tool works through episodes in order, so the previous one is done
		if prev, ok := job.Episodes[job.CurrentEpisode]; ok && prev.Status == EpisodeDownloading && job.CurrentEpisode != ev.Episode {
			if err := job.SetEpisodeStatus(job.CurrentEpisode, EpisodeCompleted); err != nil {
				return err
			}
		}
		job.CurrentEpisode = ev.Episode
		job.Message = fmt.Sprintf(msgEpisodeProgressFmt, ev.Episode, len(job.Episodes))
		return nil
	case EventEpisodeURL:
		return job.UpdateEpisode(ev.Episode, func(ep *Episode) { ep.URL = ev.Value })
	case EventFilename:
		return job.UpdateEpisode(ev.Episode, func(ep *Episode) { ep.Filename = ev.Value })
	case EventAlreadyExists:
		return job.SetEpisodeStatus(ev.Episode, EpisodeSkipped)
	case EventDownloading:
		err := job.SetEpisodeStatus(ev.Episode, EpisodeDownloading)
		if errors.Is(err, ErrInvalidTransition) {
			// progress lines keep arriving after the episode settled
			return nil
		}
		return err
	}
	return nil
}
