// Package statefile persists sync state and export configuration as JSON
// blobs on the local filesystem.
package statefile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openvitals/vitalexport-core/internal/core/domain"
	"github.com/openvitals/vitalexport-core/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.SyncStateStore = (*SyncStateStore)(nil)
	_ driven.ConfigStore    = (*ConfigStore)(nil)
)

const (
	stateFilename  = "sync_state.json"
	configFilename = "config.json"
)

// SyncStateStore implements driven.SyncStateStore over a JSON file. Each
// save rewrites the whole blob through a temp file and rename, so a crash
// leaves either the old state or the new one, never a torn write.
type SyncStateStore struct {
	path string
}

// NewSyncStateStore creates a store rooted at dir
func NewSyncStateStore(dir string) *SyncStateStore {
	return &SyncStateStore{path: filepath.Join(dir, stateFilename)}
}

// Load retrieves the persisted state
func (s *SyncStateStore) Load(ctx context.Context) (*domain.SyncState, error) {
	var state domain.SyncState
	if err := loadJSON(s.path, &state); err != nil {
		return nil, err
	}
	if state.Cursors == nil {
		state.Cursors = make(map[domain.Category]domain.Cursor)
	}
	return &state, nil
}

// Save persists the whole state
func (s *SyncStateStore) Save(ctx context.Context, state *domain.SyncState) error {
	return saveJSON(s.path, state)
}

// Clear removes the persisted state
func (s *SyncStateStore) Clear(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear sync state: %w", err)
	}
	return nil
}

// ConfigStore implements driven.ConfigStore over a JSON file
type ConfigStore struct {
	path string
}

// NewConfigStore creates a store rooted at dir
func NewConfigStore(dir string) *ConfigStore {
	return &ConfigStore{path: filepath.Join(dir, configFilename)}
}

// Load retrieves the persisted configuration
func (s *ConfigStore) Load(ctx context.Context) (*domain.ExportConfiguration, error) {
	var cfg domain.ExportConfiguration
	if err := loadJSON(s.path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save persists the configuration
func (s *ConfigStore) Save(ctx context.Context, cfg *domain.ExportConfiguration) error {
	return saveJSON(s.path, cfg)
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
