package mocks

import (
	"context"
	"path"
	"sync"
)

// MockDestination is a mock implementation of Destination for testing
type MockDestination struct {
	mu sync.Mutex

	// Files maps filename to written bytes
	Files map[string][]byte

	// WriteErr injects a destination failure
	WriteErr error
}

// NewMockDestination creates a new MockDestination
func NewMockDestination() *MockDestination {
	return &MockDestination{Files: make(map[string][]byte)}
}

func (m *MockDestination) Write(ctx context.Context, data []byte, filename string, ref string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return "", m.WriteErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.Files[filename] = cp
	return path.Join("/exports", filename), nil
}
