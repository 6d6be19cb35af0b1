package validators

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/svtfetch/backend/internal/download"
)

// SVTPlayValidator validates SVT Play URLs. Video and clip pages are single
// downloads; any other programme page is treated as a series.
type SVTPlayValidator struct {
	idPattern *regexp.Regexp
}

func NewSVTPlayValidator() *SVTPlayValidator {
	return &SVTPlayValidator{
		idPattern: regexp.MustCompile(`^[a-zA-Z0-9_-]+$`),
	}
}

func (v *SVTPlayValidator) SourceType() SourceType {
	return SourceSVTPlay
}

func (v *SVTPlayValidator) CanHandle(rawURL string) bool {
	parsed, err := parseLoose(rawURL)
	if err != nil {
		return false
	}

	host := normalizeHost(parsed.Host)
	return host == "svtplay.se" || host == "svt.se" || host == "oppetarkiv.se"
}

func (v *SVTPlayValidator) Validate(rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)

	parsed, err := parseLoose(rawURL)
	if err != nil {
		return invalid(SourceSVTPlay, rawURL, "invalid URL format")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return invalid(SourceSVTPlay, rawURL, "invalid URL scheme")
	}

	segments := pathSegments(parsed.Path)
	if len(segments) == 0 {
		return invalid(SourceSVTPlay, rawURL, "URL does not point at a programme or video")
	}

	result := ValidationResult{
		Valid:      true,
		SourceType: SourceSVTPlay,
		URL:        rawURL,
	}

	switch segments[0] {
	case "video", "klipp":
		if len(segments) < 2 || !v.idPattern.MatchString(segments[1]) {
			return invalid(SourceSVTPlay, rawURL, "missing video id")
		}
		result.MediaID = segments[1]
		result.MediaType = "video"
		if segments[0] == "klipp" {
			result.MediaType = "clip"
		}
		result.SuggestedKind = download.KindSingle
		result.Canonical = "https://www.svtplay.se/" + segments[0] + "/" + segments[1]

	default:
		// /<slug>?id=<video> selects one episode of a series page
		if id := parsed.Query().Get("id"); id != "" && v.idPattern.MatchString(id) {
			result.MediaID = id
			result.MediaType = "video"
			result.SuggestedKind = download.KindSingle
			result.Canonical = "https://www.svtplay.se/" + segments[0] + "?id=" + id
			break
		}
		result.MediaID = segments[0]
		result.MediaType = "series"
		result.SuggestedKind = download.KindSeason
		result.Canonical = "https://www.svtplay.se/" + segments[0]
	}

	if normalizeHost(parsed.Host) != "svtplay.se" {
		// svt.se and the archive keep their own addresses
		result.Canonical = ""
	}
	return result
}

func parseLoose(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	return url.Parse(rawURL)
}

func normalizeHost(host string) string {
	host = strings.ToLower(host)
	host = strings.TrimPrefix(host, "www.")
	return host
}

func pathSegments(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func invalid(source SourceType, rawURL, msg string) ValidationResult {
	return ValidationResult{Valid: false, SourceType: source, URL: rawURL, Error: msg}
}
