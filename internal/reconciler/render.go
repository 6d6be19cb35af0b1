package reconciler

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/svtfetch/backend/internal/download"
)

// Renderer draws a view. Render is never called concurrently.
type Renderer interface {
	Render(v *View) error
}

const (
	clearScreen   = "\033[H\033[2J"
	maxMessageLen = 60
)

// TextRenderer writes the view as aligned text tables
type TextRenderer struct {
	out   io.Writer
	texts *Texts
	now   func() time.Time

	// Clear redraws from the top of the terminal on every render
	Clear bool
	// Files adds the downloaded files table
	Files bool
	// Episodes lists each episode under its season job
	Episodes bool
}

func NewTextRenderer(out io.Writer, texts *Texts) *TextRenderer {
	return &TextRenderer{out: out, texts: texts, now: time.Now}
}

func (r *TextRenderer) Render(v *View) error {
	var b strings.Builder
	if r.Clear {
		b.WriteString(clearScreen)
	}

	now := r.now()
	if !v.UpdatedAt.IsZero() {
		fmt.Fprintln(&b, r.texts.sprintf(keyUpdated, v.UpdatedAt.Local().Format(time.TimeOnly)))
	}
	if v.LastError != nil {
		fmt.Fprintln(&b, r.texts.sprintf(keyFetchError, v.Failures, v.LastError))
	}
	b.WriteString("\n")

	if len(v.Jobs) == 0 {
		fmt.Fprintln(&b, r.texts.sprintf(keyNoJobs))
	} else {
		r.writeJobs(&b, v.Jobs, now)
	}

	if r.Files {
		b.WriteString("\n")
		fmt.Fprintln(&b, r.texts.sprintf(keyFiles))
		tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		for _, f := range v.Files {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Name, humanize.Bytes(uint64(f.Size)), humanize.RelTime(f.Modified, now, "ago", "from now"))
		}
		tw.Flush()
	}

	_, err := io.WriteString(r.out, b.String())
	return err
}

func (r *TextRenderer) writeJobs(b *strings.Builder, jobs []*download.Job, now time.Time) {
	tw := tabwriter.NewWriter(b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tPROGRESS\tSTARTED\tMESSAGE")
	for _, job := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(job.ID),
			job.Kind,
			r.texts.Status(job.Status),
			r.progress(job),
			humanize.RelTime(job.StartedAt, now, "ago", "from now"),
			truncate(jobMessage(job), maxMessageLen),
		)
		if r.Episodes && job.Kind == download.KindSeason {
			for _, ep := range job.SortedEpisodes() {
				fmt.Fprintf(tw, "\t\t  %d\t%s\t\t%s\n", ep.Number, r.texts.EpisodeStatus(ep.Status), ep.Filename)
			}
		}
	}
	tw.Flush()
}

func (r *TextRenderer) progress(job *download.Job) string {
	if job.Kind == download.KindSeason && job.TotalEpisodes > 0 {
		return r.texts.sprintf(keyEpisodes, job.CompletedEpisodes+job.SkippedEpisodes, job.TotalEpisodes)
	}
	return fmt.Sprintf("%d%%", job.Progress)
}

func jobMessage(job *download.Job) string {
	if job.Status == download.StatusFailed && job.Error != "" {
		return job.Message + ": " + job.Error
	}
	return job.Message
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
