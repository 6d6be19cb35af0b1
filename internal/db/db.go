package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type DB struct {
	*sql.DB
}

// New opens a Postgres connection from a DATABASE_URL style DSN
func New(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db}, nil
}

// Wrap adopts an existing connection pool
func Wrap(conn *sql.DB) *DB {
	return &DB{conn}
}

func (db *DB) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id VARCHAR(255) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		url TEXT NOT NULL,
		download_dir TEXT NOT NULL DEFAULT '',
		quality VARCHAR(32) NOT NULL DEFAULT 'best',
		subtitle BOOLEAN NOT NULL DEFAULT TRUE,
		download_type VARCHAR(16) NOT NULL DEFAULT 'single',
		token TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	ALTER TABLE profiles ADD COLUMN IF NOT EXISTS token TEXT NOT NULL DEFAULT '';

	CREATE INDEX IF NOT EXISTS idx_profiles_name ON profiles(LOWER(name));
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
