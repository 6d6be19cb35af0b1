package logger

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// Redactor masks secrets in log fields and messages. Download tokens in
// particular must never reach the log output.
type Redactor struct {
	keys     []string
	patterns []*regexp.Regexp
}

// DefaultRedactor masks token, password, secret and key fields as well as
// anything shaped like a JWT.
func DefaultRedactor() *Redactor {
	return &Redactor{
		keys: []string{"token", "password", "secret", "access_key", "secret_key", "authorization"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`),
		},
	}
}

func (r *Redactor) sensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range r.keys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Redact masks secrets embedded in a string
func (r *Redactor) Redact(s string) string {
	for _, p := range r.patterns {
		s = p.ReplaceAllString(s, redacted)
	}
	return s
}

// RedactFields returns a copy of fields with sensitive values masked
func (r *Redactor) RedactFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		switch {
		case r.sensitive(k):
			out[k] = redacted
		default:
			if s, ok := v.(string); ok {
				v = r.Redact(s)
			}
			out[k] = v
		}
	}
	return out
}
