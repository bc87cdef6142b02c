package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const settingsKey = "editor"

// Settings are the editor preferences.
type Settings struct {
	ShowPageBreak bool `json:"showPageBreak"`
}

// DefaultSettings applies when nothing, or nothing readable, is stored.
func DefaultSettings() Settings { return Settings{ShowPageBreak: true} }

// SettingsPatch lists the preferences to change.
type SettingsPatch struct {
	ShowPageBreak *bool `json:"showPageBreak,omitempty"`
}

// Settings returns the stored preferences merged over the defaults.
// Malformed stored JSON yields the defaults.
func (s *Store) Settings(ctx context.Context) (Settings, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, settingsKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("reading settings: %w", err)
	}
	return parseSettings(raw), nil
}

func parseSettings(raw string) Settings {
	out := DefaultSettings()
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return DefaultSettings()
	}
	return out
}

// UpdateSettings merges p into the stored preferences and returns the result.
func (s *Store) UpdateSettings(ctx context.Context, p SettingsPatch) (Settings, error) {
	cur, err := s.Settings(ctx)
	if err != nil {
		return Settings{}, err
	}
	if p.ShowPageBreak != nil {
		cur.ShowPageBreak = *p.ShowPageBreak
	}
	b, err := json.Marshal(cur)
	if err != nil {
		return Settings{}, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		settingsKey, string(b)); err != nil {
		return Settings{}, fmt.Errorf("writing settings: %w", err)
	}
	return cur, nil
}
