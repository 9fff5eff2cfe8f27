package driver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// SettingsStore persists one JSON object per driver.
type SettingsStore interface {
	// Get returns the driver's settings, or an empty map if none are stored.
	Get(ctx context.Context, driverID string) (map[string]any, error)

	// Set replaces the driver's settings.
	Set(ctx context.Context, driverID string, settings map[string]any) error
}

// SQLiteSettingsStore implements SettingsStore on the driver_settings table.
type SQLiteSettingsStore struct {
	db *sql.DB
}

// NewSQLiteSettingsStore creates a SQLite-backed settings store.
func NewSQLiteSettingsStore(db *sql.DB) *SQLiteSettingsStore {
	return &SQLiteSettingsStore{db: db}
}

// Get returns the stored settings for driverID.
func (s *SQLiteSettingsStore) Get(ctx context.Context, driverID string) (map[string]any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT settings FROM driver_settings WHERE driver_id = ?", driverID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying driver settings: %w", err)
	}

	settings := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, fmt.Errorf("unmarshalling driver settings: %w", err)
	}
	return settings, nil
}

// Set upserts the settings for driverID.
func (s *SQLiteSettingsStore) Set(ctx context.Context, driverID string, settings map[string]any) error {
	if settings == nil {
		settings = map[string]any{}
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshalling driver settings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO driver_settings (driver_id, settings, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(driver_id) DO UPDATE SET settings = excluded.settings, updated_at = excluded.updated_at`,
		driverID, string(raw), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving driver settings: %w", err)
	}
	return nil
}

// Settings is a plugin's view of its own settings bag. Values round-trip
// through JSON, so numbers come back as float64.
type Settings struct {
	store    SettingsStore
	driverID string
	mu       sync.Mutex
}

// NewSettings binds store to one driver.
func NewSettings(store SettingsStore, driverID string) *Settings {
	return &Settings{store: store, driverID: driverID}
}

// Get returns the value stored under key.
func (s *Settings) Get(ctx context.Context, key string) (value any, ok bool, err error) {
	all, err := s.store.Get(ctx, s.driverID)
	if err != nil {
		return nil, false, err
	}
	value, ok = all[key]
	return value, ok, nil
}

// Set stores value under key, keeping the other keys.
func (s *Settings) Set(ctx context.Context, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.store.Get(ctx, s.driverID)
	if err != nil {
		return err
	}
	all[key] = value
	return s.store.Set(ctx, s.driverID, all)
}
