package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}
	return rec.Body.String()
}

func assertContains(t *testing.T, body string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(body, w) {
			t.Errorf("expected %s in:\n%s", w, body)
		}
	}
}

func TestMetrics_Requests(t *testing.T) {
	m := New()
	m.RecordRequest("GET", "/api/downloads", 200, 100*time.Millisecond)
	m.RecordRequest("GET", "/api/downloads", 200, 150*time.Millisecond)
	m.RecordRequest("GET", "/api/downloads", 500, 2*time.Second)

	assertContains(t, scrape(t, m),
		"svtfetch_uptime_seconds ",
		`svtfetch_http_requests_total{endpoint="/api/downloads",method="GET"} 3`,
		`svtfetch_http_request_duration_seconds_bucket{endpoint="/api/downloads",method="GET",le="0.25"} 2`,
		`svtfetch_http_request_duration_seconds_bucket{endpoint="/api/downloads",method="GET",le="+Inf"} 3`,
		`svtfetch_http_request_duration_seconds_count{endpoint="/api/downloads",method="GET"} 3`,
		`svtfetch_http_errors_total{endpoint="/api/downloads",method="GET",status_class="5xx"} 1`,
	)
}

func TestMetrics_ErrorClasses(t *testing.T) {
	m := New()
	m.RecordRequest("POST", "/api/download", 400, time.Millisecond)
	m.RecordRequest("POST", "/api/download", 429, time.Millisecond)
	m.RecordRequest("POST", "/api/download", 502, time.Millisecond)

	assertContains(t, scrape(t, m),
		`svtfetch_http_errors_total{endpoint="/api/download",method="POST",status_class="4xx"} 2`,
		`svtfetch_http_errors_total{endpoint="/api/download",method="POST",status_class="5xx"} 1`,
	)
}

func TestMetrics_JobCounts(t *testing.T) {
	m := New()
	m.SetJobCounts(func() map[string]int {
		return map[string]int{"queued": 2, "downloading": 1, "completed": 0, "failed": 4}
	})

	assertContains(t, scrape(t, m),
		`svtfetch_jobs{status="queued"} 2`,
		`svtfetch_jobs{status="downloading"} 1`,
		`svtfetch_jobs{status="completed"} 0`,
		`svtfetch_jobs{status="failed"} 4`,
	)
}

func TestMetrics_CountersAndGauges(t *testing.T) {
	m := New()
	m.IncCounter("jobs_completed")
	m.IncCounter("jobs_completed")
	m.IncCounter("jobs_failed")
	m.SetGauge("jobs_active", 3)

	assertContains(t, scrape(t, m),
		`svtfetch_counter{name="jobs_completed"} 2`,
		`svtfetch_counter{name="jobs_failed"} 1`,
		`svtfetch_gauge{name="jobs_active"} 3`,
	)
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := map[string]string{
		"/api/downloads/123e4567-e89b-12d3-a456-426614174000": "/api/downloads/{id}",
		"/api/profiles/42":                 "/api/profiles/{id}",
		"/downloads/Rapport 19.30.mp4":     "/downloads/{file}",
		"/api/downloads/files":             "/api/downloads/files",
		"/api/downloads/not-a-uuid-at-all": "/api/downloads/not-a-uuid-at-all",
	}
	for in, want := range tests {
		if got := normalizeEndpoint(in); got != want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMetricsMiddleware(t *testing.T) {
	m := New()
	h := MetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/validate" {
			w.Write([]byte("OK"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	for _, path := range []string{"/api/validate", "/api/missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, path, nil))
	}

	body := scrape(t, m)
	assertContains(t, body,
		`svtfetch_http_requests_total{endpoint="/api/validate",method="POST"} 1`,
		`svtfetch_http_errors_total{endpoint="/api/missing",method="POST",status_class="4xx"} 1`,
	)
	if strings.Contains(body, `endpoint="/api/validate",method="POST",status_class`) {
		t.Error("successful request counted as error")
	}
}
