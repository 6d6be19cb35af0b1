package profile

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/svtfetch/backend/internal/db"
	"github.com/svtfetch/backend/internal/download"
)

var profileColumns = []string{"id", "name", "url", "download_dir", "quality", "subtitle", "download_type", "token", "created_at", "updated_at"}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewPostgresStore(db.Wrap(conn)), mock
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(profileColumns).
		AddRow("rapport", "Rapport", "https://www.svtplay.se/rapport", "/media", "720", true, "season", "", created, created)
	mock.ExpectQuery(`SELECT id, name, url, download_dir, quality, subtitle, download_type, token, created_at, updated_at\s+FROM profiles\s+WHERE id = \$1`).
		WithArgs("rapport").
		WillReturnRows(rows)

	p, err := store.Get(context.Background(), "rapport")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Kind != download.KindSeason || p.Quality != "720" || !p.CreatedAt.Equal(created) {
		t.Errorf("unexpected profile %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM profiles`).WithArgs("missing").WillReturnRows(sqlmock.NewRows(profileColumns))

	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_PutUpserts(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	p := &Profile{
		ID: "agenda", Name: "Agenda", URL: "https://www.svtplay.se/agenda",
		Quality: "best", Subtitle: true, Kind: download.KindSingle, Token: "tok",
		CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO profiles")+`.*ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("agenda", "Agenda", "https://www.svtplay.se/agenda", "", "best", true, "single", "tok", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Put(context.Background(), p); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(profileColumns).
		AddRow("agenda", "Agenda", "https://a", "", "best", true, "single", "", now, now).
		AddRow("rapport", "Rapport", "https://r", "", "best", false, "season", "", now, now)
	mock.ExpectQuery(`ORDER BY name, id`).WillReturnRows(rows)

	list, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[1].Subtitle {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestPostgresStore_Delete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM profiles WHERE id = \$1`).WithArgs("agenda").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM profiles WHERE id = \$1`).WithArgs("agenda").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Delete(context.Background(), "agenda"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(context.Background(), "agenda"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestManager_OnPostgresKeepsCreatedAt(t *testing.T) {
	store, mock := newMockStore(t)
	m := NewManager(store)
	created := time.Date(2023, 5, 5, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	mock.ExpectQuery(`FROM profiles`).WithArgs("agenda").WillReturnRows(
		sqlmock.NewRows(profileColumns).AddRow("agenda", "Agenda", "https://a", "", "best", true, "single", "", created, created))
	mock.ExpectExec(`INSERT INTO profiles`).
		WithArgs("agenda", "Agenda", "https://b", "", "best", true, "single", "", created, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if _, err := m.Save(context.Background(), SaveRequest{Name: "Agenda", URL: "https://b"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}
