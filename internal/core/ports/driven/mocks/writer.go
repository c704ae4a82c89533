package mocks

import (
	"encoding/json"

	"github.com/openvitals/vitalexport-core/internal/core/domain"
)

// MockWriter is a mock implementation of SnapshotWriter for testing
type MockWriter struct {
	// OutputFormat is what Format reports; defaults to document
	OutputFormat domain.ExportFormat

	// WriteErr injects a serialization failure
	WriteErr error

	// LastSnapshot records the most recently written snapshot
	LastSnapshot *domain.Snapshot
}

// NewMockWriter creates a new MockWriter
func NewMockWriter() *MockWriter {
	return &MockWriter{OutputFormat: domain.FormatDocument}
}

func (m *MockWriter) Format() domain.ExportFormat {
	return m.OutputFormat
}

func (m *MockWriter) FileExtension() string {
	return "json"
}

func (m *MockWriter) Write(snapshot *domain.Snapshot) ([]byte, error) {
	if m.WriteErr != nil {
		return nil, m.WriteErr
	}
	m.LastSnapshot = snapshot
	return json.Marshal(snapshot.Metadata)
}
