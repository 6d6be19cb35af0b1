package profile

import (
	"context"
	"database/sql"
	"errors"

	"github.com/svtfetch/backend/internal/db"
	"github.com/svtfetch/backend/internal/download"
)

// PostgresStore keeps profiles in the profiles table
type PostgresStore struct {
	db *db.DB
}

func NewPostgresStore(database *db.DB) *PostgresStore {
	return &PostgresStore{db: database}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Profile, error) {
	query := `
		SELECT id, name, url, download_dir, quality, subtitle, download_type, token, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`

	p, err := scanProfile(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Profile, error) {
	query := `
		SELECT id, name, url, download_dir, quality, subtitle, download_type, token, created_at, updated_at
		FROM profiles
		ORDER BY name, id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// Put upserts the profile. created_at is only written on insert.
func (s *PostgresStore) Put(ctx context.Context, p *Profile) error {
	query := `
		INSERT INTO profiles (id, name, url, download_dir, quality, subtitle, download_type, token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			download_dir = EXCLUDED.download_dir,
			quality = EXCLUDED.quality,
			subtitle = EXCLUDED.subtitle,
			download_type = EXCLUDED.download_type,
			token = EXCLUDED.token,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.URL, p.DownloadDir, p.Quality, p.Subtitle, string(p.Kind), p.Token, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	p := &Profile{}
	var kind string
	err := row.Scan(
		&p.ID, &p.Name, &p.URL, &p.DownloadDir, &p.Quality, &p.Subtitle, &kind, &p.Token, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Kind = download.Kind(kind)
	return p, nil
}
