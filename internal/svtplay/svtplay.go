package svtplay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/svtfetch/backend/internal/download"
	apperrors "github.com/svtfetch/backend/internal/errors"
	"github.com/svtfetch/backend/internal/logger"
)

// execCommand is replaced in tests
var execCommand = exec.CommandContext

const (
	defaultProbeTimeout = 30 * time.Second
	maxErrorOutput      = 2000
	// longest single output line the scanners accept
	maxLineLength = 1 << 20
)

// Config holds configuration for the svtplay-dl service
type Config struct {
	// BinaryPath is the path to svtplay-dl binary (default: "svtplay-dl")
	BinaryPath string
	// ProbeTimeout bounds info and episode listing calls, retries included (default: 30s)
	ProbeTimeout time.Duration
	// ProbeRetry controls retries of throttled probes (default: apperrors.ProbeRetryConfig)
	ProbeRetry *apperrors.RetryConfig
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		BinaryPath:   "svtplay-dl",
		ProbeTimeout: defaultProbeTimeout,
		ProbeRetry:   apperrors.ProbeRetryConfig(),
	}
}

// Service wraps svtplay-dl
type Service struct {
	cfg *Config
	log *logger.Logger
}

// New creates a new svtplay-dl service
func New(cfg *Config) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "svtplay-dl"
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.ProbeRetry == nil {
		cfg.ProbeRetry = apperrors.ProbeRetryConfig()
	}

	// Verify svtplay-dl is available
	if _, err := exec.LookPath(cfg.BinaryPath); err != nil {
		return nil, ErrBinaryNotFound
	}

	return newService(cfg), nil
}

func newService(cfg *Config) *Service {
	if cfg.ProbeRetry == nil {
		cfg.ProbeRetry = apperrors.ProbeRetryConfig()
	}
	return &Service{cfg: cfg, log: logger.Default().WithComponent("svtplay")}
}

// BinaryPath returns the configured tool binary
func (s *Service) BinaryPath() string {
	return s.cfg.BinaryPath
}

// Validate checks that the URL is something the tool can be pointed at
func (s *Service) Validate(sourceURL string) error {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return &DownloadError{URL: sourceURL, Message: "invalid url", Err: ErrInvalidURL}
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &DownloadError{URL: sourceURL, Message: "invalid url scheme", Err: ErrInvalidURL}
	}

	if parsed.Host == "" {
		return &DownloadError{URL: sourceURL, Message: "missing host", Err: ErrInvalidURL}
	}

	return nil
}

// Episodes lists the episode URLs of a series in source order. An empty
// result means the URL points at a single video.
func (s *Service) Episodes(ctx context.Context, sourceURL string, opts download.Options) ([]string, error) {
	if err := s.Validate(sourceURL); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	args := []string{"--list-episodes"}
	if opts.Token != "" {
		args = append(args, "--token", opts.Token)
	}
	args = append(args, sourceURL)

	stdout, err := s.run(ctx, sourceURL, args)
	if err != nil {
		return nil, err
	}

	var episodes []string
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "http") {
			episodes = append(episodes, line)
		}
	}
	return episodes, nil
}

// Info returns the tool's JSON description of a URL without downloading
func (s *Service) Info(ctx context.Context, sourceURL string) (json.RawMessage, error) {
	if err := s.Validate(sourceURL); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	stdout, err := s.run(ctx, sourceURL, []string{"--json-info", sourceURL})
	if err != nil {
		return nil, err
	}

	raw := json.RawMessage(strings.TrimSpace(stdout))
	if !json.Valid(raw) {
		return nil, &DownloadError{URL: sourceURL, Message: "failed to parse video information", Err: ErrBadOutput}
	}
	return raw, nil
}

// run executes a short probe command and returns its stdout. Throttling
// and connection failures reported by the tool are retried.
func (s *Service) run(ctx context.Context, sourceURL string, args []string) (string, error) {
	attempt := 0
	return apperrors.RetryWithResult(ctx, s.cfg.ProbeRetry, func(ctx context.Context) (string, error) {
		attempt++
		out, err := s.runOnce(ctx, sourceURL, args)
		if err != nil && attempt > 1 {
			s.log.Debug(ctx, "probe retry failed", map[string]interface{}{"url": sourceURL, "attempt": attempt})
		}
		return out, err
	})
}

func (s *Service) runOnce(ctx context.Context, sourceURL string, args []string) (string, error) {
	cmd := execCommand(ctx, s.cfg.BinaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &DownloadError{URL: sourceURL, Message: "probe timed out", Err: ErrTimeout}
		}
		return "", s.categorizeError(sourceURL, download.KindSingle, err, stderr.String())
	}
	return stdout.String(), nil
}

// Fetch downloads a single video or a whole season, reporting progress
// parsed from the tool's stderr.
func (s *Service) Fetch(ctx context.Context, req download.FetchRequest, events func(download.Event)) error {
	if err := s.Validate(req.URL); err != nil {
		return err
	}

	if err := os.MkdirAll(req.Options.DownloadDir, 0755); err != nil {
		return &DownloadError{URL: req.URL, Message: "failed to create download directory", Err: err}
	}

	args := buildArgs(req)
	s.log.Debug(ctx, "running svtplay-dl", map[string]interface{}{
		"url":  req.URL,
		"kind": string(req.Kind),
		"args": redactArgs(args),
	})

	cmd := execCommand(ctx, s.cfg.BinaryPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &DownloadError{URL: req.URL, Message: "failed to create stdout pipe", Err: err}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &DownloadError{URL: req.URL, Message: "failed to create stderr pipe", Err: err}
	}

	if err := cmd.Start(); err != nil {
		return s.categorizeError(req.URL, req.Kind, err, "")
	}

	// Drain stdout in the background; markers may appear on either stream
	var stdoutOutput strings.Builder
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), maxLineLength)
		for scanner.Scan() {
			stdoutOutput.WriteString(scanner.Text())
			stdoutOutput.WriteString("\n")
		}
		if err := scanner.Err(); err != nil {
			s.log.Warn(ctx, "stopped reading tool stdout", map[string]interface{}{"url": req.URL, "error": err.Error()})
			io.Copy(io.Discard, stdout)
		}
	}()

	var stderrOutput strings.Builder
	parser := &lineParser{}
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)
	scanner.Split(scanLinesOrCR)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		stderrOutput.WriteString(line)
		stderrOutput.WriteString("\n")
		if events != nil {
			for _, ev := range parser.parse(line) {
				events(ev)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		// keep the pipe empty so the tool can run to completion
		s.log.Warn(ctx, "stopped parsing tool progress", map[string]interface{}{"url": req.URL, "error": err.Error()})
		io.Copy(io.Discard, stderr)
	}

	wg.Wait()
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return &DownloadError{URL: req.URL, Message: "download interrupted", Err: ctxErr}
	}

	// the tool exits cleanly for some failures, so inspect the output either way
	output := stdoutOutput.String() + "\n" + stderrOutput.String()
	if err := detectFailure(req.URL, output); err != nil {
		return err
	}
	if waitErr != nil {
		return s.categorizeError(req.URL, req.Kind, waitErr, output)
	}
	return nil
}

// buildArgs assembles the svtplay-dl command line for a request
func buildArgs(req download.FetchRequest) []string {
	var args []string
	if req.Kind == download.KindSeason {
		args = append(args, "--all-episodes")
	}
	if q := NormalizeQuality(req.Options.Quality); q != "" {
		args = append(args, "-q", q)
	}
	if req.Options.Subtitle {
		args = append(args, "--subtitle")
	}
	if req.Options.Token != "" {
		args = append(args, "--token", req.Options.Token)
	}
	dir := req.Options.DownloadDir
	if !strings.HasSuffix(dir, string(os.PathSeparator)) {
		dir += string(os.PathSeparator)
	}
	args = append(args, "-o", dir, req.URL)
	return args
}

// NormalizeQuality converts a quality setting to the value svtplay-dl
// accepts. Some services reject a "p" suffix, and "best" is the tool's
// default so it maps to no flag at all.
func NormalizeQuality(quality string) string {
	q := strings.ToLower(strings.TrimSpace(quality))
	if q == "" || q == "best" {
		return ""
	}
	return strings.TrimSuffix(q, "p")
}

func redactArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		if out[i] == "--token" {
			out[i+1] = "[REDACTED]"
		}
	}
	return out
}

// detectFailure looks for failure markers in the tool output
func detectFailure(sourceURL, output string) error {
	lower := strings.ToLower(output)

	switch {
	case strings.Contains(lower, "token") &&
		(strings.Contains(lower, "need") || strings.Contains(lower, "require")):
		return &DownloadError{URL: sourceURL, Message: "Token required or expired", Err: ErrTokenRequired}

	case strings.Contains(lower, "no videos found"):
		return &DownloadError{URL: sourceURL, Message: "No videos found", Err: ErrNoVideos}
	}
	return nil
}

// categorizeError converts svtplay-dl errors into specific error types
func (s *Service) categorizeError(sourceURL string, kind download.Kind, err error, output string) error {
	if detected := detectFailure(sourceURL, output); detected != nil {
		return detected
	}

	lower := strings.ToLower(output)
	if strings.Contains(lower, "drm") && strings.Contains(lower, "protected") {
		return &DownloadError{URL: sourceURL, Message: "DRM protected content", Err: ErrDRMProtected}
	}

	if errors.Is(err, exec.ErrNotFound) {
		return &DownloadError{URL: sourceURL, Message: "svtplay-dl unavailable", Err: ErrBinaryNotFound}
	}

	detail := strings.TrimSpace(output)
	if detail == "" {
		detail = err.Error()
	}
	if len(detail) > maxErrorOutput {
		detail = detail[len(detail)-maxErrorOutput:]
	}

	msg := "download failed"
	if kind == download.KindSeason {
		msg = "season download failed"
	}
	return &DownloadError{URL: sourceURL, Message: msg, Err: fmt.Errorf("%w: %s", ErrDownloadFailed, detail)}
}
