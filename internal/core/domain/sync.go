package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	// maxHistoryEntries caps the export history; oldest entries are evicted
	maxHistoryEntries = 100

	// fullExportInterval is how long an incremental chain may run before a
	// full export is required again
	fullExportInterval = 30 * 24 * time.Hour
)

// ExportRecord is one immutable export history entry
type ExportRecord struct {
	ID          string       `json:"id"`
	Timestamp   time.Time    `json:"timestamp"`
	Format      ExportFormat `json:"format"`
	RecordCount int          `json:"record_count"`
	OutputBytes int64        `json:"output_bytes"`
	Duration    float64      `json:"duration_seconds"`
	Success     bool         `json:"success"`
	Error       string       `json:"error,omitempty"`
	Incremental bool         `json:"incremental"`
	OutputPath  string       `json:"output_path,omitempty"`
}

// NewExportRecord creates a history entry with a fresh run ID
func NewExportRecord(ts time.Time, format ExportFormat) ExportRecord {
	return ExportRecord{
		ID:        uuid.NewString(),
		Timestamp: ts,
		Format:    format,
	}
}

// SyncState owns the incremental-export bookkeeping: per-category cursors,
// export timestamps, and the bounded export history. Mutated only at the end
// of a run and persisted as a whole after every mutation.
type SyncState struct {
	LastExportAt     *time.Time          `json:"last_export_at,omitempty"`
	LastFullExportAt *time.Time          `json:"last_full_export_at,omitempty"`
	Cursors          map[Category]Cursor `json:"cursors,omitempty"`
	History          []ExportRecord      `json:"history,omitempty"`
}

// NewSyncState returns the empty initial state
func NewSyncState() *SyncState {
	return &SyncState{Cursors: make(map[Category]Cursor)}
}

// CursorFor returns the stored cursor for a category, empty if none
func (s *SyncState) CursorFor(category Category) Cursor {
	return s.Cursors[category]
}

// SetCursor stores the cursor for a category
func (s *SyncState) SetCursor(category Category, cursor Cursor) {
	if s.Cursors == nil {
		s.Cursors = make(map[Category]Cursor)
	}
	s.Cursors[category] = cursor
}

// NeedsFullExport reports whether no full export has ever completed or the
// last one is more than 30 days old.
func (s *SyncState) NeedsFullExport(now time.Time) bool {
	if s.LastFullExportAt == nil {
		return true
	}
	return now.Sub(*s.LastFullExportAt) > fullExportInterval
}

// RecordSuccess appends a successful run and advances the export timestamps.
// The full-export timestamp only moves when the run was not incremental.
func (s *SyncState) RecordSuccess(run ExportRecord) {
	run.Success = true
	ts := run.Timestamp
	s.LastExportAt = &ts
	if !run.Incremental {
		s.LastFullExportAt = &ts
	}
	s.appendHistory(run)
}

// RecordFailure appends a failed run without touching cursors or timestamps
func (s *SyncState) RecordFailure(run ExportRecord) {
	run.Success = false
	s.appendHistory(run)
}

// MarkLastRunFailed downgrades the most recent history entry to failed.
// Used when post-run output validation rejects a nominally successful run.
// Returns false if there is no history.
func (s *SyncState) MarkLastRunFailed(reason string) bool {
	if len(s.History) == 0 {
		return false
	}
	last := &s.History[len(s.History)-1]
	last.Success = false
	last.Error = reason
	return true
}

// LastRun returns the most recent history entry, nil if none
func (s *SyncState) LastRun() *ExportRecord {
	if len(s.History) == 0 {
		return nil
	}
	return &s.History[len(s.History)-1]
}

// Clear resets to the empty initial state. Previously written files are
// untouched.
func (s *SyncState) Clear() {
	s.LastExportAt = nil
	s.LastFullExportAt = nil
	s.Cursors = make(map[Category]Cursor)
	s.History = nil
}

func (s *SyncState) appendHistory(run ExportRecord) {
	s.History = append(s.History, run)
	if len(s.History) > maxHistoryEntries {
		s.History = s.History[len(s.History)-maxHistoryEntries:]
	}
}
