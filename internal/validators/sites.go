package validators

import (
	"strings"

	"github.com/svtfetch/backend/internal/download"
)

// Site describes another streaming service svtplay-dl can fetch from
type Site struct {
	Source SourceType
	Hosts  []string
	// VideoPrefixes are path prefixes that address a single video
	VideoPrefixes []string
}

var otherSites = []Site{
	{Source: SourceTV4Play, Hosts: []string{"tv4play.se", "tv4.se"}, VideoPrefixes: []string{"/video/", "/klipp/"}},
	{Source: SourceURPlay, Hosts: []string{"urplay.se"}, VideoPrefixes: []string{"/program/"}},
	{Source: SourceDRTV, Hosts: []string{"dr.dk"}, VideoPrefixes: []string{"/drtv/se/", "/drtv/episode/"}},
	{Source: SourceNRK, Hosts: []string{"tv.nrk.no"}, VideoPrefixes: []string{"/program/"}},
}

// SiteValidator accepts any page on one of the hosts of a Site
type SiteValidator struct {
	site Site
}

func NewSiteValidator(site Site) *SiteValidator {
	return &SiteValidator{site: site}
}

func (v *SiteValidator) SourceType() SourceType {
	return v.site.Source
}

func (v *SiteValidator) CanHandle(rawURL string) bool {
	parsed, err := parseLoose(rawURL)
	if err != nil {
		return false
	}
	host := normalizeHost(parsed.Host)
	for _, h := range v.site.Hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func (v *SiteValidator) Validate(rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)

	parsed, err := parseLoose(rawURL)
	if err != nil {
		return invalid(v.site.Source, rawURL, "invalid URL format")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return invalid(v.site.Source, rawURL, "invalid URL scheme")
	}

	segments := pathSegments(parsed.Path)
	if len(segments) == 0 {
		return invalid(v.site.Source, rawURL, "URL does not point at a programme or video")
	}

	result := ValidationResult{
		Valid:         true,
		SourceType:    v.site.Source,
		URL:           rawURL,
		MediaType:     "series",
		SuggestedKind: download.KindSeason,
	}
	for _, prefix := range v.site.VideoPrefixes {
		if strings.HasPrefix(parsed.Path, prefix) {
			result.MediaType = "video"
			result.SuggestedKind = download.KindSingle
			break
		}
	}
	result.MediaID = segments[len(segments)-1]
	return result
}
