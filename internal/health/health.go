package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// HealthResponse represents the full health check response
type HealthResponse struct {
	Status     Status                     `json:"status"`
	Timestamp  string                     `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// CheckerConfig lists what readiness depends on. Nil backends are left out
// of the report.
type CheckerConfig struct {
	DB           *sql.DB
	Redis        *redis.Client
	StorageCheck func(ctx context.Context) error
	ToolPath     string
	DownloadDir  string
	RunnerCheck  func() bool
	Version      string
	Timeout      time.Duration
}

// component is one readiness probe. A failing required component makes the
// service unhealthy; an optional one only degrades it, since jobs keep
// running without the mirror, the archive or the profile database.
type component struct {
	name     string
	required bool
	check    func(ctx context.Context) error
}

// Checker runs the readiness probes
type Checker struct {
	cfg      CheckerConfig
	lookPath func(string) (string, error)
}

func NewChecker(cfg *CheckerConfig) *Checker {
	c := &Checker{cfg: *cfg, lookPath: exec.LookPath}
	if c.cfg.Timeout <= 0 {
		c.cfg.Timeout = 5 * time.Second
	}
	return c
}

func (c *Checker) components() []component {
	list := []component{
		{"svtplay_dl", true, c.checkTool},
		{"download_dir", true, c.checkDownloadDir},
		{"runner", true, c.checkRunner},
	}
	if c.cfg.DB != nil {
		list = append(list, component{"database", false, c.cfg.DB.PingContext})
	}
	if c.cfg.Redis != nil {
		list = append(list, component{"redis", false, func(ctx context.Context) error {
			return c.cfg.Redis.Ping(ctx).Err()
		}})
	}
	if c.cfg.StorageCheck != nil {
		list = append(list, component{"storage", false, c.cfg.StorageCheck})
	}
	return list
}

func (c *Checker) checkTool(context.Context) error {
	if c.cfg.ToolPath == "" {
		return errors.New("download tool not configured")
	}
	if _, err := c.lookPath(c.cfg.ToolPath); err != nil {
		return fmt.Errorf("%s not found", c.cfg.ToolPath)
	}
	return nil
}

func (c *Checker) checkDownloadDir(context.Context) error {
	dir := c.cfg.DownloadDir
	if dir == "" {
		return errors.New("download directory not configured")
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return errors.New("download directory missing")
	}
	f, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return errors.New("download directory not writable")
	}
	f.Close()
	os.Remove(f.Name())
	return nil
}

func (c *Checker) checkRunner(context.Context) error {
	if c.cfg.RunnerCheck == nil || !c.cfg.RunnerCheck() {
		return errors.New("runner not running")
	}
	return nil
}

// CheckDownloadDir verifies the download directory exists and is writable
func (c *Checker) CheckDownloadDir(ctx context.Context) ComponentHealth {
	return c.run(ctx, component{"download_dir", true, c.checkDownloadDir})
}

func (c *Checker) run(ctx context.Context, comp component) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := comp.check(ctx)
	res := ComponentHealth{Status: StatusHealthy, Duration: time.Since(start).String()}
	if err != nil {
		res.Status = StatusDegraded
		if comp.required {
			res.Status = StatusUnhealthy
		}
		// backend errors may carry connection strings
		res.Message = comp.name + " check failed"
		if comp.required {
			res.Message = err.Error()
		}
	}
	return res
}

// Check is the liveness answer: the process is up
func (c *Checker) Check(ctx context.Context) *HealthResponse {
	return &HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   c.cfg.Version,
	}
}

// DeepCheck runs every readiness probe concurrently
func (c *Checker) DeepCheck(ctx context.Context) *HealthResponse {
	resp := c.Check(ctx)
	resp.Components = make(map[string]ComponentHealth)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, comp := range c.components() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := c.run(ctx, comp)
			mu.Lock()
			resp.Components[comp.name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, res := range resp.Components {
		switch {
		case res.Status == StatusUnhealthy:
			resp.Status = StatusUnhealthy
		case res.Status == StatusDegraded && resp.Status == StatusHealthy:
			resp.Status = StatusDegraded
		}
	}
	return resp
}

// Handler serves the health endpoints
type Handler struct {
	checker *Checker
}

func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

func writeResponse(w http.ResponseWriter, resp *HealthResponse) {
	status := http.StatusOK
	if resp.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// LivenessHandler serves /health/live
func (h *Handler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, h.checker.Check(r.Context()))
}

// ReadinessHandler serves /health/ready. A degraded service still answers
// 200 so it keeps receiving traffic.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, h.checker.DeepCheck(r.Context()))
}

// HealthHandler serves /health; ?deep=true runs the readiness checks
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") == "true" {
		h.ReadinessHandler(w, r)
		return
	}
	h.LivenessHandler(w, r)
}
