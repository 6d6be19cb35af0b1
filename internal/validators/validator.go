package validators

import "github.com/svtfetch/backend/internal/download"

// SourceType identifies the platform a URL belongs to
type SourceType string

const (
	SourceSVTPlay SourceType = "svtplay"
	SourceTV4Play SourceType = "tv4play"
	SourceURPlay  SourceType = "urplay"
	SourceDRTV    SourceType = "drtv"
	SourceNRK     SourceType = "nrk"
	SourceUnknown SourceType = "unknown"
)

// ValidationResult contains the result of URL validation
type ValidationResult struct {
	Valid      bool       `json:"valid"`
	SourceType SourceType `json:"source"`
	MediaID    string     `json:"media_id,omitempty"`
	MediaType  string     `json:"media_type,omitempty"` // "video", "clip" or "series"
	// SuggestedKind is the job kind the URL most likely calls for
	SuggestedKind download.Kind `json:"suggested_kind,omitempty"`
	URL           string        `json:"url"`
	Canonical     string        `json:"canonical_url,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// Validator defines the interface for URL validators
type Validator interface {
	// SourceType returns the source type this validator handles
	SourceType() SourceType

	// CanHandle returns true if this validator can handle the given URL
	CanHandle(url string) bool

	// Validate validates the URL and extracts relevant information
	Validate(url string) ValidationResult
}
