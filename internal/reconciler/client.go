package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/svtfetch/backend/internal/download"
	"github.com/svtfetch/backend/internal/files"
)

// DefaultTimeout bounds one snapshot request
const DefaultTimeout = 10 * time.Second

// StatusError is a non-success response from the server
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

// Client reads the job and file snapshots from a server. Job snapshots are
// requested conditionally; an unchanged list is served from the last copy.
type Client struct {
	baseURL string
	http    *http.Client

	mu   sync.Mutex
	etag string
	jobs []*download.Job
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// Jobs fetches GET /api/downloads
func (c *Client) Jobs(ctx context.Context) ([]*download.Job, error) {
	c.mu.Lock()
	etag, cached := c.etag, c.jobs
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/downloads", nil)
	if err != nil {
		return nil, err
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jobs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && cached != nil {
		return cached, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var body struct {
		Jobs []*download.Job `json:"jobs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	if body.Jobs == nil {
		body.Jobs = []*download.Job{}
	}

	c.mu.Lock()
	c.etag = resp.Header.Get("ETag")
	c.jobs = body.Jobs
	c.mu.Unlock()

	return body.Jobs, nil
}

// Files fetches GET /api/downloads/files
func (c *Client) Files(ctx context.Context) ([]files.File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/downloads/files", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch files: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var body struct {
		Files []files.File `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode files: %w", err)
	}
	return body.Files, nil
}

func statusError(resp *http.Response) error {
	serr := &StatusError{StatusCode: resp.StatusCode}

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) == nil {
		serr.Code = body.Error.Code
		serr.Message = body.Error.Message
	}
	return serr
}
