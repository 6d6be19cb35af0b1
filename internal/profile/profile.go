// Package profile stores named download presets for series the user
// downloads repeatedly.
package profile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/svtfetch/backend/internal/download"
	"github.com/svtfetch/backend/internal/logger"
)

var (
	ErrNotFound       = errors.New("profile not found")
	ErrInvalidProfile = errors.New("invalid profile")
)

// Profile is a saved set of download options
type Profile struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	URL         string        `json:"url"`
	DownloadDir string        `json:"download_dir"`
	Quality     string        `json:"quality"`
	Subtitle    bool          `json:"subtitle"`
	Kind        download.Kind `json:"download_type"`
	// Token is handed to svtplay-dl when the profile is used
	Token     string    `json:"token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists profiles by id
type Store interface {
	Get(ctx context.Context, id string) (*Profile, error)
	List(ctx context.Context) ([]*Profile, error)
	Put(ctx context.Context, p *Profile) error
	Delete(ctx context.Context, id string) error
}

// SaveRequest is the user input for creating or replacing a profile
type SaveRequest struct {
	Name        string        `json:"name"`
	URL         string        `json:"url"`
	DownloadDir string        `json:"download_dir"`
	Quality     string        `json:"quality"`
	Subtitle    *bool         `json:"subtitle"`
	Kind        download.Kind `json:"download_type"`
	Token       string        `json:"token"`
}

// Manager applies the profile rules on top of a Store
type Manager struct {
	store Store
	now   func() time.Time
	log   *logger.Logger
}

func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		log:   logger.Default().WithComponent("profile"),
	}
}

// ID derives a profile id from its display name
func ID(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// Save creates the profile or replaces the one with the same id, keeping
// its original creation time.
func (m *Manager) Save(ctx context.Context, req SaveRequest) (*Profile, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}
	if strings.TrimSpace(req.URL) == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidProfile)
	}

	kind := req.Kind
	if kind == "" {
		kind = download.KindSingle
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown download type %q", ErrInvalidProfile, kind)
	}

	quality := req.Quality
	if quality == "" {
		quality = "best"
	}
	subtitle := true
	if req.Subtitle != nil {
		subtitle = *req.Subtitle
	}

	now := m.now()
	p := &Profile{
		ID:          ID(req.Name),
		Name:        strings.TrimSpace(req.Name),
		URL:         strings.TrimSpace(req.URL),
		DownloadDir: req.DownloadDir,
		Quality:     quality,
		Subtitle:    subtitle,
		Kind:        kind,
		Token:       strings.TrimSpace(req.Token),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	existing, err := m.store.Get(ctx, p.ID)
	switch {
	case err == nil:
		p.CreatedAt = existing.CreatedAt
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	if err := m.store.Put(ctx, p); err != nil {
		return nil, err
	}

	m.log.Info(ctx, "profile saved", map[string]interface{}{"profile_id": p.ID})
	return p, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*Profile, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.log.Info(ctx, "profile deleted", map[string]interface{}{"profile_id": id})
	return nil
}

// Search lists profiles whose name contains query, ignoring case. An empty
// query lists every profile.
func (m *Manager) Search(ctx context.Context, query string) ([]*Profile, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]*Profile, 0, len(all))
	for _, p := range all {
		if q == "" || strings.Contains(strings.ToLower(p.Name), q) {
			out = append(out, p)
		}
	}
	return out, nil
}

func sortProfiles(ps []*Profile) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Name != ps[j].Name {
			return ps[i].Name < ps[j].Name
		}
		return ps[i].ID < ps[j].ID
	})
}
