package profile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/svtfetch/backend/internal/download"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "profiles.json")
	store, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	return NewManager(store), path
}

func TestID(t *testing.T) {
	tests := map[string]string{
		"Rapport":           "rapport",
		"Bonusfamiljen S02": "bonusfamiljen_s02",
		"  Agenda  ":        "agenda",
	}
	for in, want := range tests {
		if got := ID(in); got != want {
			t.Errorf("ID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestManager_SaveDefaults(t *testing.T) {
	m, _ := newTestManager(t)

	p, err := m.Save(context.Background(), SaveRequest{
		Name: "Bonusfamiljen",
		URL:  "https://www.svtplay.se/bonusfamiljen",
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if p.ID != "bonusfamiljen" {
		t.Errorf("ID = %q", p.ID)
	}
	if p.Quality != "best" || !p.Subtitle || p.Kind != download.KindSingle {
		t.Errorf("unexpected defaults %+v", p)
	}
}

func TestManager_SaveKeepsCreatedAt(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return first }
	if _, err := m.Save(ctx, SaveRequest{Name: "Agenda", URL: "https://www.svtplay.se/agenda"}); err != nil {
		t.Fatal(err)
	}

	later := first.Add(48 * time.Hour)
	m.now = func() time.Time { return later }
	p, err := m.Save(ctx, SaveRequest{Name: "agenda", URL: "https://www.svtplay.se/agenda", Kind: download.KindSeason})
	if err != nil {
		t.Fatal(err)
	}

	if !p.CreatedAt.Equal(first) {
		t.Errorf("CreatedAt = %v, want %v", p.CreatedAt, first)
	}
	if !p.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", p.UpdatedAt, later)
	}
	if p.Kind != download.KindSeason {
		t.Errorf("Kind = %q", p.Kind)
	}
}

func TestManager_SaveValidation(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	tests := []SaveRequest{
		{URL: "https://www.svtplay.se/x"},
		{Name: "x"},
		{Name: "x", URL: "https://www.svtplay.se/x", Kind: "playlist"},
	}
	for _, req := range tests {
		if _, err := m.Save(ctx, req); !errors.Is(err, ErrInvalidProfile) {
			t.Errorf("Save(%+v) = %v, want ErrInvalidProfile", req, err)
		}
	}
}

func TestManager_Search(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	for _, name := range []string{"Rapport", "Sportnytt", "Bonusfamiljen"} {
		if _, err := m.Save(ctx, SaveRequest{Name: name, URL: "https://www.svtplay.se/" + ID(name)}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := m.Search(ctx, "PORT")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Name != "Rapport" || got[1].Name != "Sportnytt" {
		t.Errorf("unexpected search result %+v", got)
	}

	all, err := m.Search(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("empty query returned %d profiles", len(all))
	}
}

func TestFileStore_PersistsAcrossOpen(t *testing.T) {
	m, path := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Save(ctx, SaveRequest{Name: "Rapport", URL: "https://www.svtplay.se/rapport", Token: " tok "}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Save(ctx, SaveRequest{Name: "Agenda", URL: "https://www.svtplay.se/agenda"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, "agenda"); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	list, _ := reopened.List(ctx)
	if len(list) != 1 || list[0].ID != "rapport" || list[0].Token != "tok" {
		t.Errorf("unexpected profiles after reopen: %+v", list)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestFileStore_NotFound(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: %v", err)
	}
	if err := m.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete: %v", err)
	}
}

func TestOpenFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenFileStore(path); err == nil {
		t.Error("expected parse error")
	}
}
