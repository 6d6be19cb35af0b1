package validators

import "strings"

// Registry routes a URL to the first validator that recognises its host.
// It is immutable once built and safe for concurrent use.
type Registry struct {
	validators []Validator
}

// NewRegistry builds a registry that consults validators in order
func NewRegistry(validators ...Validator) *Registry {
	return &Registry{validators: validators}
}

// DefaultRegistry checks SVT Play first, then the other services
// svtplay-dl supports
func DefaultRegistry() *Registry {
	vs := []Validator{NewSVTPlayValidator()}
	for _, site := range otherSites {
		vs = append(vs, NewSiteValidator(site))
	}
	return NewRegistry(vs...)
}

// Validate classifies rawURL. A URL no validator recognises is reported as
// SourceUnknown together with the list of supported services.
func (r *Registry) Validate(rawURL string) ValidationResult {
	for _, v := range r.validators {
		if v.CanHandle(rawURL) {
			return v.Validate(rawURL)
		}
	}

	names := make([]string, 0, len(r.validators))
	for _, s := range r.Sources() {
		names = append(names, string(s))
	}
	return invalid(SourceUnknown, rawURL, "unsupported URL; supported services: "+strings.Join(names, ", "))
}

// Sources lists the registered source types in lookup order
func (r *Registry) Sources() []SourceType {
	sources := make([]SourceType, len(r.validators))
	for i, v := range r.validators {
		sources[i] = v.SourceType()
	}
	return sources
}
