package svtplay

import (
	"bytes"
	"regexp"
	"strconv"

	"github.com/svtfetch/backend/internal/download"
)

var (
	episodePattern     = regexp.MustCompile(`(?i)Episode\s+(\d+)\s+of\s+(\d+)`)
	urlPattern         = regexp.MustCompile(`(?i)Url:\s+(https?://\S+)`)
	outfilePattern     = regexp.MustCompile(`(?i)Outfile:\s+(.+)`)
	existsPattern      = regexp.MustCompile(`(?i)already exists`)
	downloadingPattern = regexp.MustCompile(`(?i)downloading`)
	// progress bar: [012/345][====>      ] ETA: 0:01:02
	progressPattern = regexp.MustCompile(`\[(\d+)/(\d+)\]`)
)

// lineParser turns svtplay-dl stderr lines into progress events. Lines
// after an "Episode N of T" header belong to episode N.
type lineParser struct {
	current int
}

func (p *lineParser) parse(line string) []download.Event {
	var events []download.Event

	if m := episodePattern.FindStringSubmatch(line); m != nil {
		n, _ := strconv.Atoi(m[1])
		total, _ := strconv.Atoi(m[2])
		p.current = n
		events = append(events, download.Event{Type: download.EventEpisode, Episode: n, Total: total})
	}

	if m := urlPattern.FindStringSubmatch(line); m != nil {
		events = append(events, download.Event{Type: download.EventEpisodeURL, Episode: p.current, Value: m[1]})
	}

	if m := outfilePattern.FindStringSubmatch(line); m != nil {
		events = append(events, download.Event{Type: download.EventFilename, Episode: p.current, Value: m[1]})
	}

	if existsPattern.MatchString(line) {
		events = append(events, download.Event{Type: download.EventAlreadyExists, Episode: p.current})
	} else if downloadingPattern.MatchString(line) {
		events = append(events, download.Event{Type: download.EventDownloading, Episode: p.current})
	}

	if m := progressPattern.FindStringSubmatch(line); m != nil {
		done, _ := strconv.ParseFloat(m[1], 64)
		total, _ := strconv.ParseFloat(m[2], 64)
		if total > 0 {
			events = append(events, download.Event{Type: download.EventProgress, Episode: p.current, Percent: done * 100 / total})
		}
	}

	return events
}

// scanLinesOrCR splits on \n and on bare \r, which the tool uses to redraw
// its progress bar in place.
func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
