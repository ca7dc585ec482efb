package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrClientIDRequired guards per-client isolation.
var ErrClientIDRequired = errors.New("client_id is required for settings isolation")

// SettingsStore is a key-value store scoped to one client id.
type SettingsStore struct {
	db       *sql.DB
	clientID string
}

func (s *SettingsStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.clientID == "" {
		return "", false, ErrClientIDRequired
	}
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM client_settings WHERE client_id = ? AND key = ?`, s.clientID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	if s.clientID == "" {
		return ErrClientIDRequired
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_settings (client_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(client_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, s.clientID, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func (s *SettingsStore) Remove(ctx context.Context, key string) error {
	if s.clientID == "" {
		return ErrClientIDRequired
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM client_settings WHERE client_id = ? AND key = ?`, s.clientID, key); err != nil {
		return fmt.Errorf("remove setting %s: %w", key, err)
	}
	return nil
}
