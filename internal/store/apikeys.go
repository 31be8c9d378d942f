package store

import (
	"context"

	"github.com/google/uuid"
)

// APIKey grants access to the endpoints that accept subscriber email
// addresses directly instead of tokens.
type APIKey struct {
	Key       string
	Name      string
	Enabled   bool
	CreatedAt string
}

// CreateAPIKey mints and stores a new API key for the named consumer.
func (s *Store) CreateAPIKey(ctx context.Context, name string) (string, error) {
	key := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (key, name) VALUES (?, ?)`, key, name)
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidAPIKey reports whether key exists and is enabled.
func (s *Store) ValidAPIKey(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	var enabled bool
	err := s.db.QueryRowContext(ctx, `
		SELECT enabled FROM api_keys WHERE key = ?`, key).Scan(&enabled)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return enabled, nil
}

// DisableAPIKey revokes a key without deleting its record.
func (s *Store) DisableAPIKey(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET enabled = 0 WHERE key = ?`, key)
	return err
}

// APIKeys lists all keys, enabled or not.
func (s *Store) APIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, name, enabled, created_at FROM api_keys ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.Key, &k.Name, &k.Enabled, &k.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
