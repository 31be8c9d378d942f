package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store is the local SQLite database. It holds the newsletter catalog,
// API keys, blocked email domains and the background job queue.
// Subscriber records themselves live in CTMS, never here.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dsn and applies the schema.
func Open(dsn string) (*Store, error) {
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	// WAL mode lets the HTTP handlers read while the worker writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS newsletters (
		slug TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		vendor_id TEXT NOT NULL,
		welcome_id TEXT NOT NULL DEFAULT '',
		confirm_id TEXT NOT NULL DEFAULT '',
		languages TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		private INTEGER NOT NULL DEFAULT 0,
		show_publicly INTEGER NOT NULL DEFAULT 0,
		requires_double_optin INTEGER NOT NULL DEFAULT 0,
		ordering INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS newsletter_groups (
		slug TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS newsletter_group_members (
		group_slug TEXT NOT NULL REFERENCES newsletter_groups(slug) ON DELETE CASCADE,
		newsletter_slug TEXT NOT NULL REFERENCES newsletters(slug) ON DELETE CASCADE,
		PRIMARY KEY (group_slug, newsletter_slug)
	);

	CREATE TABLE IF NOT EXISTS api_keys (
		key TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS blocked_domains (
		domain TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS failed_jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		error TEXT NOT NULL,
		failed_at TEXT NOT NULL DEFAULT (datetime('now'))
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
