package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SetConfigValue upserts a runtime configuration override.
func (s *Store) SetConfigValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO system_configuration (key, value, updated_at)
		VALUES (?, ?, ?)`, key, value, now())
	if err != nil {
		return fmt.Errorf("failed to set configuration %s: %w", key, err)
	}
	return nil
}

// GetConfigValue fetches a runtime configuration override. The second return
// is false when no override exists.
func (s *Store) GetConfigValue(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM system_configuration WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get configuration %s: %w", key, err)
	}
	return value, true, nil
}

// AllConfigValues returns every runtime configuration override.
func (s *Store) AllConfigValues(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM system_configuration`)
	if err != nil {
		return nil, fmt.Errorf("failed to list configuration: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan configuration row: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// SetPreference upserts a user preference.
func (s *Store) SetPreference(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO user_preferences (key, value, updated_at)
		VALUES (?, ?, ?)`, key, value, now())
	if err != nil {
		return fmt.Errorf("failed to set preference %s: %w", key, err)
	}
	return nil
}

// AllPreferences returns every stored user preference.
func (s *Store) AllPreferences(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM user_preferences`)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan preference row: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// GetPreference fetches a user preference.
func (s *Store) GetPreference(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM user_preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get preference %s: %w", key, err)
	}
	return value, true, nil
}
