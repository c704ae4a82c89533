package mocks

import (
	"sync"
	"time"

	"github.com/openvitals/vitalexport-core/internal/core/ports/driven"
)

// MockWakeupScheduler is a mock implementation of WakeupScheduler for
// testing. It never fires on its own; tests invoke the handler directly.
type MockWakeupScheduler struct {
	mu sync.Mutex

	// Handlers maps task ID to the registered handler
	Handlers map[string]driven.WakeupHandler

	// Wakeups records every requested wakeup time, in order
	Wakeups []time.Time

	// RequestErr injects a scheduling failure
	RequestErr error
}

// NewMockWakeupScheduler creates a new MockWakeupScheduler
func NewMockWakeupScheduler() *MockWakeupScheduler {
	return &MockWakeupScheduler{Handlers: make(map[string]driven.WakeupHandler)}
}

func (m *MockWakeupScheduler) Register(taskID string, handler driven.WakeupHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[taskID] = handler
	return nil
}

func (m *MockWakeupScheduler) RequestWakeup(taskID string, notBefore time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RequestErr != nil {
		return m.RequestErr
	}
	m.Wakeups = append(m.Wakeups, notBefore)
	return nil
}

// WakeupCount returns how many wakeups were requested
func (m *MockWakeupScheduler) WakeupCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Wakeups)
}

// LastWakeup returns the most recently requested wakeup time
func (m *MockWakeupScheduler) LastWakeup() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Wakeups) == 0 {
		return time.Time{}
	}
	return m.Wakeups[len(m.Wakeups)-1]
}
