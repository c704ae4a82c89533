package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/openvitals/vitalexport-core/internal/core/domain"
)

// MockSyncStateStore is a mock implementation of SyncStateStore for testing.
// It deep-copies on Save/Load so tests observe exactly what was persisted.
type MockSyncStateStore struct {
	mu    sync.Mutex
	blob  []byte
	saves int

	// SaveErr injects a persistence failure
	SaveErr error
}

// NewMockSyncStateStore creates a new MockSyncStateStore
func NewMockSyncStateStore() *MockSyncStateStore {
	return &MockSyncStateStore{}
}

func (m *MockSyncStateStore) Load(ctx context.Context) (*domain.SyncState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blob == nil {
		return nil, domain.ErrNotFound
	}
	var state domain.SyncState
	if err := json.Unmarshal(m.blob, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (m *MockSyncStateStore) Save(ctx context.Context, state *domain.SyncState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	blob, err := json.Marshal(state)
	if err != nil {
		return err
	}
	m.blob = blob
	m.saves++
	return nil
}

func (m *MockSyncStateStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blob = nil
	return nil
}

// SaveCount returns how many times Save succeeded
func (m *MockSyncStateStore) SaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// MockConfigStore is a mock implementation of ConfigStore for testing
type MockConfigStore struct {
	mu  sync.Mutex
	cfg *domain.ExportConfiguration
}

// NewMockConfigStore creates a new MockConfigStore
func NewMockConfigStore() *MockConfigStore {
	return &MockConfigStore{}
}

func (m *MockConfigStore) Load(ctx context.Context) (*domain.ExportConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		return nil, domain.ErrNotFound
	}
	cp := *m.cfg
	return &cp, nil
}

func (m *MockConfigStore) Save(ctx context.Context, cfg *domain.ExportConfiguration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cfg
	m.cfg = &cp
	return nil
}
