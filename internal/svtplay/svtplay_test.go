package svtplay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/svtfetch/backend/internal/download"
	apperrors "github.com/svtfetch/backend/internal/errors"
)

// useFakeTool makes execCommand re-run the test binary as svtplay-dl,
// playing the named scenario from TestHelperProcess.
func useFakeTool(t *testing.T, scenario string) *[]string {
	t.Helper()

	var gotArgs []string
	original := execCommand
	execCommand = func(ctx context.Context, name string, arg ...string) *exec.Cmd {
		gotArgs = arg
		cs := []string{"-test.run=TestHelperProcess", "--", name}
		cs = append(cs, arg...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = []string{"GO_WANT_HELPER_PROCESS=1", "SVTPLAY_SCENARIO=" + scenario}
		return cmd
	}
	t.Cleanup(func() { execCommand = original })
	return &gotArgs
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("SVTPLAY_SCENARIO") {
	case "season":
		for _, line := range []string{
			"INFO: Episode 1 of 3",
			"INFO: Url: https://www.svtplay.se/video/ep1",
			"INFO: Outfile: show.s01e01.mp4",
			"INFO: Downloading video",
			"INFO: Episode 2 of 3",
			"INFO: Outfile: show.s01e02.mp4",
			"ERROR: File (show.s01e02.mp4) already exists. Use --force to overwrite",
			"INFO: Episode 3 of 3",
			"INFO: Outfile: show.s01e03.mp4",
			"INFO: Downloading video",
		} {
			fmt.Fprintln(os.Stderr, line)
		}
		os.Exit(0)
	case "single":
		fmt.Fprintln(os.Stderr, "INFO: Outfile: film.mp4")
		fmt.Fprint(os.Stderr, "[01/04][=   ]\r[02/04][==  ]\r[04/04][====]\n")
		os.Exit(0)
	case "token-clean-exit":
		fmt.Fprintln(os.Stderr, "ERROR: This content needs a token")
		os.Exit(0)
	case "no-videos":
		fmt.Fprintln(os.Stderr, "ERROR: No videos found")
		os.Exit(1)
	case "drm":
		fmt.Fprintln(os.Stderr, "ERROR: This video is DRM protected.")
		os.Exit(1)
	case "crash":
		fmt.Fprintln(os.Stderr, "Traceback: something broke")
		os.Exit(2)
	case "slow":
		time.Sleep(10 * time.Second)
		os.Exit(0)
	case "list":
		fmt.Println("INFO: Found 2 episodes")
		fmt.Println("https://www.svtplay.se/video/ep1")
		fmt.Println("  https://www.svtplay.se/video/ep2  ")
		os.Exit(0)
	case "info":
		fmt.Println(`{"title": "Show", "season": 1}`)
		os.Exit(0)
	case "throttled":
		fmt.Fprintln(os.Stderr, "ERROR: HTTP Error 429: Too Many Requests")
		os.Exit(1)
	case "long-lines":
		fmt.Fprintln(os.Stderr, strings.Repeat("a", 200*1024))
		fmt.Fprintln(os.Stderr, "INFO: Outfile: after.mp4")
		// too long for any scanner, followed by more than a pipe buffer
		fmt.Fprintln(os.Stderr, strings.Repeat("b", 2<<20))
		fmt.Fprintln(os.Stderr, strings.Repeat("c\n", 256*1024))
		os.Exit(0)
	case "info-garbage":
		fmt.Println("not json")
		os.Exit(0)
	}
	os.Exit(1)
}

func testService() *Service {
	return newService(&Config{
		BinaryPath:   "svtplay-dl",
		ProbeTimeout: 5 * time.Second,
		ProbeRetry:   &apperrors.RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1},
	})
}

func TestFetch_SeasonEvents(t *testing.T) {
	useFakeTool(t, "season")
	s := testService()

	var events []download.Event
	err := s.Fetch(context.Background(), download.FetchRequest{
		URL:     "https://www.svtplay.se/show",
		Kind:    download.KindSeason,
		Options: download.Options{DownloadDir: t.TempDir()},
	}, func(ev download.Event) { events = append(events, ev) })
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	var skipped, headers int
	for _, ev := range events {
		switch ev.Type {
		case download.EventAlreadyExists:
			skipped++
			if ev.Episode != 2 {
				t.Errorf("skip reported for episode %d", ev.Episode)
			}
		case download.EventEpisode:
			headers++
		}
	}
	if headers != 3 || skipped != 1 {
		t.Errorf("expected 3 episode headers and 1 skip, got %d and %d", headers, skipped)
	}
}

func TestFetch_SingleProgress(t *testing.T) {
	useFakeTool(t, "single")
	s := testService()

	var last float64
	var file string
	err := s.Fetch(context.Background(), download.FetchRequest{
		URL:     "https://www.svtplay.se/video/abc",
		Kind:    download.KindSingle,
		Options: download.Options{DownloadDir: t.TempDir()},
	}, func(ev download.Event) {
		switch ev.Type {
		case download.EventProgress:
			last = ev.Percent
		case download.EventFilename:
			file = ev.Value
		}
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if last != 100 || file != "film.mp4" {
		t.Errorf("got progress %v file %q", last, file)
	}
}

func TestFetch_LongOutputLines(t *testing.T) {
	useFakeTool(t, "long-lines")
	s := testService()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var file string
	err := s.Fetch(ctx, download.FetchRequest{
		URL:     "https://www.svtplay.se/video/abc",
		Kind:    download.KindSingle,
		Options: download.Options{DownloadDir: t.TempDir()},
	}, func(ev download.Event) {
		if ev.Type == download.EventFilename {
			file = ev.Value
		}
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if file != "after.mp4" {
		t.Errorf("expected filename after a 200 KiB line, got %q", file)
	}
}

func TestFetch_FailureCategories(t *testing.T) {
	tests := []struct {
		scenario string
		want     error
		summary  string
	}{
		{"token-clean-exit", ErrTokenRequired, "Token required or expired"},
		{"no-videos", ErrNoVideos, "No videos found"},
		{"drm", ErrDRMProtected, "DRM protected content"},
		{"crash", ErrDownloadFailed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			useFakeTool(t, tt.scenario)
			s := testService()

			err := s.Fetch(context.Background(), download.FetchRequest{
				URL:     "https://www.tv4play.se/program/x",
				Kind:    download.KindSingle,
				Options: download.Options{DownloadDir: t.TempDir()},
			}, nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}

			var dlErr *DownloadError
			if !errors.As(err, &dlErr) {
				t.Fatalf("expected *DownloadError, got %T", err)
			}
			if dlErr.Summary() != tt.summary {
				t.Errorf("Summary() = %q, want %q", dlErr.Summary(), tt.summary)
			}
		})
	}
}

func TestFetch_CrashKeepsToolOutput(t *testing.T) {
	useFakeTool(t, "crash")
	s := testService()

	err := s.Fetch(context.Background(), download.FetchRequest{
		URL:     "https://www.svtplay.se/show",
		Kind:    download.KindSeason,
		Options: download.Options{DownloadDir: t.TempDir()},
	}, nil)
	if err == nil || !strings.Contains(err.Error(), "something broke") {
		t.Errorf("expected tool output in error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "season download failed") {
		t.Errorf("expected season message, got %v", err)
	}
}

func TestFetch_Timeout(t *testing.T) {
	useFakeTool(t, "slow")
	s := testService()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := s.Fetch(ctx, download.FetchRequest{
		URL:     "https://www.svtplay.se/video/abc",
		Kind:    download.KindSingle,
		Options: download.Options{DownloadDir: t.TempDir()},
	}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestEpisodes_ParsesURLs(t *testing.T) {
	args := useFakeTool(t, "list")
	s := testService()

	eps, err := s.Episodes(context.Background(), "https://www.svtplay.se/show", download.Options{Token: "tok"})
	if err != nil {
		t.Fatalf("Episodes: %v", err)
	}
	if len(eps) != 2 || eps[1] != "https://www.svtplay.se/video/ep2" {
		t.Errorf("unexpected episodes %q", eps)
	}
	if strings.Join(*args, " ") != "--list-episodes --token tok https://www.svtplay.se/show" {
		t.Errorf("unexpected args %q", *args)
	}
}

func TestInfo(t *testing.T) {
	useFakeTool(t, "info")
	s := testService()

	raw, err := s.Info(context.Background(), "https://www.svtplay.se/video/abc")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if !strings.Contains(string(raw), `"title": "Show"`) {
		t.Errorf("unexpected info %s", raw)
	}

	useFakeTool(t, "info-garbage")
	if _, err := s.Info(context.Background(), "https://www.svtplay.se/video/abc"); !errors.Is(err, ErrBadOutput) {
		t.Errorf("expected ErrBadOutput, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	s := testService()

	tests := []struct {
		url   string
		valid bool
	}{
		{"https://www.svtplay.se/video/abc", true},
		{"http://www.tv4play.se/program/x", true},
		{"ftp://example.com/file", false},
		{"https://", false},
		{"::not a url", false},
	}

	for _, tt := range tests {
		err := s.Validate(tt.url)
		if (err == nil) != tt.valid {
			t.Errorf("Validate(%q) = %v, want valid=%v", tt.url, err, tt.valid)
		}
		if err != nil && !errors.Is(err, ErrInvalidURL) {
			t.Errorf("Validate(%q) returned %v, want ErrInvalidURL", tt.url, err)
		}
	}
}

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name string
		req  download.FetchRequest
		want string
	}{
		{
			name: "season with everything",
			req: download.FetchRequest{
				URL:  "https://x/show",
				Kind: download.KindSeason,
				Options: download.Options{
					DownloadDir: "/data",
					Quality:     "720p",
					Subtitle:    true,
					Token:       "abc",
				},
			},
			want: "--all-episodes -q 720 --subtitle --token abc -o /data/ https://x/show",
		},
		{
			name: "single best quality",
			req: download.FetchRequest{
				URL:     "https://x/video",
				Kind:    download.KindSingle,
				Options: download.Options{DownloadDir: "/data/", Quality: "best"},
			},
			want: "-o /data/ https://x/video",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := strings.Join(buildArgs(tt.req), " "); got != tt.want {
				t.Errorf("buildArgs = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeQuality(t *testing.T) {
	tests := map[string]string{
		"":      "",
		"best":  "",
		"BEST":  "",
		"1080p": "1080",
		"480":   "480",
		" 720P": "720",
	}
	for in, want := range tests {
		if got := NormalizeQuality(in); got != want {
			t.Errorf("NormalizeQuality(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedactArgs(t *testing.T) {
	got := redactArgs([]string{"--token", "secret", "-o", "/x/"})
	if got[1] != "[REDACTED]" {
		t.Errorf("token not redacted: %q", got)
	}
}

func TestEpisodes_RetriesThrottledProbe(t *testing.T) {
	useFakeTool(t, "throttled")
	calls := 0
	fake := execCommand
	execCommand = func(ctx context.Context, name string, arg ...string) *exec.Cmd {
		calls++
		return fake(ctx, name, arg...)
	}
	s := testService()

	_, err := s.Episodes(context.Background(), "https://www.svtplay.se/show", download.Options{})
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestInfo_CrashIsNotRetried(t *testing.T) {
	useFakeTool(t, "crash")
	calls := 0
	fake := execCommand
	execCommand = func(ctx context.Context, name string, arg ...string) *exec.Cmd {
		calls++
		return fake(ctx, name, arg...)
	}
	s := testService()

	if _, err := s.Info(context.Background(), "https://www.svtplay.se/video/abc"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}
