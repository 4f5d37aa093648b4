package store

import (
	"context"
	"errors"
)

// SettingLLMProvider holds the primary model provider for new calls.
const SettingLLMProvider = "llm_provider"

// Setting returns a system setting, or ErrNotFound.
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRow(ctx, `SELECT setting_value FROM system_settings WHERE setting_key = $1`, key).Scan(&v)
	return v, notFound(err)
}

// SetSetting upserts a system setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO system_settings (setting_key, setting_value)
		VALUES ($1, $2)
		ON CONFLICT (setting_key) DO UPDATE SET
			setting_value = EXCLUDED.setting_value,
			updated_at = now()
	`, key, value)
	return err
}

// Settings returns every system setting.
func (s *Store) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.Query(ctx, `SELECT setting_key, setting_value FROM system_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// LLMProvider returns the configured primary provider, or "" when unset.
func (s *Store) LLMProvider(ctx context.Context) (string, error) {
	v, err := s.Setting(ctx, SettingLLMProvider)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

// EnsureSetting writes value only when key has no value yet.
func (s *Store) EnsureSetting(ctx context.Context, key, value string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO system_settings (setting_key, setting_value)
		VALUES ($1, $2)
		ON CONFLICT (setting_key) DO NOTHING
	`, key, value)
	return err
}
