package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SettingsStore keeps small application preferences as key/value rows.
type SettingsStore struct {
	db *DB
}

func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.conn.QueryRowContext(ctx,
		s.db.dialect.Rebind(`SELECT setting_value FROM app_settings WHERE setting_key = ?`), key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %q: %w", key, err)
	}
	return v, true, nil
}

func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, s.db.dialect.Rebind(`DELETE FROM app_settings WHERE setting_key = ?`), key); err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx,
		s.db.dialect.Rebind(`INSERT INTO app_settings (setting_key, setting_value) VALUES (?, ?)`), key, value); err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return tx.Commit()
}
