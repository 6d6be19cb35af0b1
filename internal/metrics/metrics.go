package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// latencyBuckets are the upper bounds, in seconds, of the request histogram
var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

type route struct {
	endpoint string
	method   string
}

// series holds everything recorded for one route
type series struct {
	count   uint64
	sum     float64
	buckets []uint64
	// errors by status class (4, 5)
	errors map[int]uint64
}

func (s *series) observe(seconds float64, status int) {
	s.count++
	s.sum += seconds
	for i, le := range latencyBuckets {
		if seconds <= le {
			s.buckets[i]++
		}
	}
	if status >= 400 {
		s.errors[status/100]++
	}
}

// Metrics is a small Prometheus text-format registry for request latency,
// job lifecycle counters, runner gauges and the job registry size
type Metrics struct {
	mu        sync.Mutex
	routes    map[route]*series
	counters  map[string]uint64
	gauges    map[string]float64
	jobCounts func() map[string]int
	started   time.Time
}

func New() *Metrics {
	return &Metrics{
		routes:   make(map[route]*series),
		counters: make(map[string]uint64),
		gauges:   make(map[string]float64),
		started:  time.Now(),
	}
}

// RecordRequest records one served request
func (m *Metrics) RecordRequest(method, path string, status int, d time.Duration) {
	key := route{endpoint: normalizeEndpoint(path), method: method}

	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.routes[key]
	if s == nil {
		s = &series{buckets: make([]uint64, len(latencyBuckets)), errors: make(map[int]uint64)}
		m.routes[key] = s
	}
	s.observe(d.Seconds(), status)
}

// normalizeEndpoint keeps label cardinality bounded: job ids, numeric ids
// and served file names collapse into placeholders
func normalizeEndpoint(path string) string {
	if strings.HasPrefix(path, "/downloads/") {
		return "/downloads/{file}"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if _, err := uuid.Parse(part); err == nil {
			parts[i] = "{id}"
		} else if _, err := strconv.ParseUint(part, 10, 64); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

// SetJobCounts registers a source of job counts by status, read on
// every scrape
func (m *Metrics) SetJobCounts(fn func() map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobCounts = fn
}

// SetGauge sets a named gauge
func (m *Metrics) SetGauge(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = value
}

// IncCounter increments a named counter
func (m *Metrics) IncCounter(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func header(w io.Writer, name, typ, help string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, typ)
}

// Handler serves the metrics in Prometheus text format
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sb strings.Builder
		m.write(&sb)
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		io.WriteString(w, sb.String())
	}
}

func (m *Metrics) write(w io.Writer) {
	header(w, "svtfetch_uptime_seconds", "gauge", "Time since the server started")
	fmt.Fprintf(w, "svtfetch_uptime_seconds %f\n\n", time.Since(m.started).Seconds())

	m.mu.Lock()
	jobCounts := m.jobCounts
	m.mu.Unlock()

	// read outside the lock; the store has its own
	if jobCounts != nil {
		counts := jobCounts()
		header(w, "svtfetch_jobs", "gauge", "Jobs in the registry by status")
		for _, status := range sortedKeys(counts) {
			fmt.Fprintf(w, "svtfetch_jobs{status=%q} %d\n", status, counts[status])
		}
		fmt.Fprintln(w)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	routes := make([]route, 0, len(m.routes))
	for k := range m.routes {
		routes = append(routes, k)
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].endpoint != routes[j].endpoint {
			return routes[i].endpoint < routes[j].endpoint
		}
		return routes[i].method < routes[j].method
	})

	if len(routes) > 0 {
		header(w, "svtfetch_http_requests_total", "counter", "Total HTTP requests")
		for _, rt := range routes {
			fmt.Fprintf(w, "svtfetch_http_requests_total{endpoint=%q,method=%q} %d\n", rt.endpoint, rt.method, m.routes[rt].count)
		}
		fmt.Fprintln(w)

		header(w, "svtfetch_http_request_duration_seconds", "histogram", "HTTP request latency")
		for _, rt := range routes {
			s := m.routes[rt]
			labels := fmt.Sprintf("endpoint=%q,method=%q", rt.endpoint, rt.method)
			for i, le := range latencyBuckets {
				fmt.Fprintf(w, "svtfetch_http_request_duration_seconds_bucket{%s,le=\"%g\"} %d\n", labels, le, s.buckets[i])
			}
			fmt.Fprintf(w, "svtfetch_http_request_duration_seconds_bucket{%s,le=\"+Inf\"} %d\n", labels, s.count)
			fmt.Fprintf(w, "svtfetch_http_request_duration_seconds_sum{%s} %f\n", labels, s.sum)
			fmt.Fprintf(w, "svtfetch_http_request_duration_seconds_count{%s} %d\n", labels, s.count)
		}
		fmt.Fprintln(w)

		header(w, "svtfetch_http_errors_total", "counter", "Total HTTP errors by status class")
		for _, rt := range routes {
			s := m.routes[rt]
			for _, class := range []int{4, 5} {
				if n := s.errors[class]; n > 0 {
					fmt.Fprintf(w, "svtfetch_http_errors_total{endpoint=%q,method=%q,status_class=\"%dxx\"} %d\n", rt.endpoint, rt.method, class, n)
				}
			}
		}
		fmt.Fprintln(w)
	}

	if len(m.gauges) > 0 {
		header(w, "svtfetch_gauge", "gauge", "Runner gauges")
		for _, name := range sortedKeys(m.gauges) {
			fmt.Fprintf(w, "svtfetch_gauge{name=%q} %g\n", name, m.gauges[name])
		}
		fmt.Fprintln(w)
	}

	if len(m.counters) > 0 {
		header(w, "svtfetch_counter", "counter", "Job lifecycle counters")
		for _, name := range sortedKeys(m.counters) {
			fmt.Fprintf(w, "svtfetch_counter{name=%q} %d\n", name, m.counters[name])
		}
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// MetricsMiddleware records the latency and status of every request
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)
			if sw.status == 0 {
				sw.status = http.StatusOK
			}
			m.RecordRequest(r.Method, r.URL.Path, sw.status, time.Since(start))
		})
	}
}
