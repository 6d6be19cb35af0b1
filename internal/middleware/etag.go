package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// bufferedResponse holds a handler's output until the validator is known
type bufferedResponse struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (b *bufferedResponse) Write(p []byte) (int, error) { return b.body.Write(p) }
func (b *bufferedResponse) WriteHeader(code int)        { b.status = code }

// ETag gives successful API GET responses a strong validator derived from
// the body and answers matching If-None-Match requests with 304. Job
// snapshots are polled every few seconds and rarely change between polls.
func ETag(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !etagEligible(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		res := &bufferedResponse{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(res, r)

		if res.status != http.StatusOK {
			w.WriteHeader(res.status)
			w.Write(res.body.Bytes())
			return
		}

		tag := bodyETag(res.body.Bytes())
		w.Header().Set("ETag", tag)
		if matchesETag(r.Header.Get("If-None-Match"), tag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Cache-Control", "private, no-cache")
		w.WriteHeader(http.StatusOK)
		w.Write(res.body.Bytes())
	})
}

// etagEligible excludes files, which get validators from http.ServeContent,
// and health and metrics output, which changes on every call
func etagEligible(path string) bool {
	switch {
	case skipBody(path), path == "/metrics", strings.HasPrefix(path, "/health"):
		return false
	}
	return true
}

func bodyETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// matchesETag checks an If-None-Match header, which may list several tags
// or "*". Comparison is weak, so W/ prefixes are ignored.
func matchesETag(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag || candidate == "*" {
			return true
		}
	}
	return false
}
