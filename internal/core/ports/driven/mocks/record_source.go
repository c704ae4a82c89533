package mocks

import (
	"context"
	"sync"

	"github.com/openvitals/vitalexport-core/internal/core/domain"
)

// MockRecordSource is a mock implementation of RecordSource for testing
type MockRecordSource struct {
	mu sync.Mutex

	// Records holds the canned response per category
	Records map[domain.Category][]domain.Record

	// NextCursors holds the cursor returned after fetching a category
	NextCursors map[domain.Category]domain.Cursor

	// Series holds associated series records per workout ID
	Series map[string][]domain.Record

	// FetchErrs injects an error for a category
	FetchErrs map[domain.Category]error

	// FetchErrCounts limits how many times the injected error fires; 0
	// means every call
	FetchErrCounts map[domain.Category]int

	// FetchCalls records every (category, cursor) pair seen, in order
	FetchCalls []FetchCall
}

// FetchCall captures the arguments of one Fetch invocation
type FetchCall struct {
	Category domain.Category
	Window   domain.Window
	Limit    int
	Cursor   domain.Cursor
}

// NewMockRecordSource creates a new MockRecordSource
func NewMockRecordSource() *MockRecordSource {
	return &MockRecordSource{
		Records:        make(map[domain.Category][]domain.Record),
		NextCursors:    make(map[domain.Category]domain.Cursor),
		Series:         make(map[string][]domain.Record),
		FetchErrs:      make(map[domain.Category]error),
		FetchErrCounts: make(map[domain.Category]int),
	}
}

func (m *MockRecordSource) Fetch(ctx context.Context, category domain.Category, window domain.Window, limit int, cursor domain.Cursor) ([]domain.Record, domain.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FetchCalls = append(m.FetchCalls, FetchCall{Category: category, Window: window, Limit: limit, Cursor: cursor})

	if err, ok := m.FetchErrs[category]; ok && err != nil {
		if n, limited := m.FetchErrCounts[category]; limited && n > 0 {
			m.FetchErrCounts[category] = n - 1
			if m.FetchErrCounts[category] == 0 {
				delete(m.FetchErrs, category)
				delete(m.FetchErrCounts, category)
			}
		}
		return nil, "", err
	}

	records := m.Records[category]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, m.NextCursors[category], nil
}

func (m *MockRecordSource) FetchAssociatedSeries(ctx context.Context, workoutID string, window domain.Window) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Series[workoutID], nil
}
