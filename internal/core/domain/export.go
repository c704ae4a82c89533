package domain

import (
	"fmt"
	"time"
)

// ExportFormat selects the output serialization
type ExportFormat string

const (
	// FormatDocument is the self-describing structured text document
	FormatDocument ExportFormat = "document"
	// FormatRelational is the single-file relational store
	FormatRelational ExportFormat = "relational"
)

// DataRange is the auto-export window policy, resolved at the originally
// scheduled instant so the exported window stays deterministic however late
// the run actually executes.
type DataRange string

const (
	RangeSinceLast  DataRange = "since_last"
	RangeTrailing1d DataRange = "trailing_24h"
	RangeTrailing7d DataRange = "trailing_7d"
	RangeTrailing30 DataRange = "trailing_30d"
	RangeAll        DataRange = "all"
)

// fullExportHorizon bounds "all" and first-run exports to five years back
const fullExportHorizon = 5

// Resolve turns the policy into a concrete window ending at the scheduled
// instant. lastExport may be nil; since_last then falls back to the full
// horizon, same as a bootstrap export.
func (d DataRange) Resolve(scheduledAt time.Time, lastExport *time.Time) Window {
	switch d {
	case RangeSinceLast:
		if lastExport != nil {
			return Window{Start: *lastExport, End: scheduledAt}
		}
	case RangeTrailing1d:
		return Window{Start: scheduledAt.Add(-24 * time.Hour), End: scheduledAt}
	case RangeTrailing7d:
		return Window{Start: scheduledAt.AddDate(0, 0, -7), End: scheduledAt}
	case RangeTrailing30:
		return Window{Start: scheduledAt.AddDate(0, 0, -30), End: scheduledAt}
	}
	return Window{Start: scheduledAt.AddDate(-fullExportHorizon, 0, 0), End: scheduledAt}
}

// AutoExportSettings configures the recurring export. Format and encryption
// are independent of the manual-export defaults.
type AutoExportSettings struct {
	Enabled        bool         `json:"enabled"`
	Frequency      Frequency    `json:"frequency"`
	Hour           int          `json:"hour"`
	Minute         int          `json:"minute"`
	DataRange      DataRange    `json:"data_range"`
	Format         ExportFormat `json:"format"`
	Encrypt        bool         `json:"encrypt"`
	DestinationRef string       `json:"destination_ref,omitempty"`
}

// Schedule returns the reconciler schedule for these settings
func (a AutoExportSettings) Schedule() Schedule {
	return Schedule{Frequency: a.Frequency, Hour: a.Hour, Minute: a.Minute}
}

// ExportConfiguration holds the user-facing export settings. Persisted as a
// single JSON blob; new optional fields must default safely when absent.
type ExportConfiguration struct {
	Format     ExportFormat `json:"format"`
	Categories []Category   `json:"categories"`
	Encrypt    bool         `json:"encrypt"`
	BatchSize  int          `json:"batch_size"`

	// Window, when set, overrides incremental mode with an explicit range
	Window *Window `json:"window,omitempty"`

	DestinationRef string `json:"destination_ref,omitempty"`

	AutoExport AutoExportSettings `json:"auto_export"`
}

// DefaultConfiguration returns sensible defaults for a first run
func DefaultConfiguration() *ExportConfiguration {
	return &ExportConfiguration{
		Format:     FormatDocument,
		Categories: DefaultCategories(),
		BatchSize:  500,
		AutoExport: AutoExportSettings{
			Frequency: FrequencyWeekly,
			Hour:      2,
			Minute:    0,
			DataRange: RangeSinceLast,
			Format:    FormatDocument,
		},
	}
}

// Validate checks the configuration invariants
func (c *ExportConfiguration) Validate() error {
	switch c.Format {
	case FormatDocument, FormatRelational:
	default:
		return fmt.Errorf("%w: unknown export format %q", ErrInvalidInput, c.Format)
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("%w: no categories enabled", ErrInvalidInput)
	}
	for _, cat := range c.Categories {
		if cat.Kind() == "" {
			return fmt.Errorf("%w: unknown category %q", ErrInvalidInput, cat)
		}
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: negative batch size", ErrInvalidInput)
	}
	if c.Window != nil && c.Window.End.Before(c.Window.Start) {
		return fmt.Errorf("%w: window ends before it starts", ErrInvalidInput)
	}
	if c.AutoExport.Enabled {
		if err := c.AutoExport.Schedule().Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SchemaVersion identifies the output document layout
const SchemaVersion = "1.0"

// SnapshotMetadata describes one export output
type SnapshotMetadata struct {
	ExportedAt  time.Time `json:"exported_at"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Schema      string    `json:"schema_version"`
	RecordCount int       `json:"record_count"`
	Encrypted   bool      `json:"encrypted"`
	Incremental bool      `json:"incremental"`
}

// CategoryBucket holds the records fetched for one category, in fetch order
type CategoryBucket struct {
	Category Category
	Records  []Record
}

// Snapshot is the assembled aggregate an export run serializes. Buckets keep
// fetch order so writers produce deterministic output.
type Snapshot struct {
	Metadata   SnapshotMetadata
	Quantities []CategoryBucket
	Categories []CategoryBucket
	Workouts   []Record
	Clinical   []Record
}

// Add appends a fetched bucket to the matching partition
func (s *Snapshot) Add(category Category, records []Record) {
	switch category.Kind() {
	case KindQuantity:
		s.Quantities = append(s.Quantities, CategoryBucket{Category: category, Records: records})
	case KindCategory:
		s.Categories = append(s.Categories, CategoryBucket{Category: category, Records: records})
	case KindWorkout:
		s.Workouts = append(s.Workouts, records...)
	case KindClinical:
		s.Clinical = append(s.Clinical, records...)
	}
	s.Metadata.RecordCount += len(records)
}
