package domain

import (
	"fmt"
	"strings"
	"time"
)

// RecordKind identifies which variant of the record union is populated
type RecordKind string

const (
	KindQuantity RecordKind = "quantity"
	KindCategory RecordKind = "category"
	KindWorkout  RecordKind = "workout"
	KindClinical RecordKind = "clinical"
)

// Category names one independently queryable kind of health record.
// The identifier carries its kind as a prefix, e.g. "quantity/heart_rate",
// "category/sleep_analysis", "workouts", "clinical/medication_records".
type Category string

const CategoryWorkouts Category = "workouts"

// Kind returns the record kind this category yields
func (c Category) Kind() RecordKind {
	if c == CategoryWorkouts {
		return KindWorkout
	}
	switch {
	case strings.HasPrefix(string(c), "quantity/"):
		return KindQuantity
	case strings.HasPrefix(string(c), "category/"):
		return KindCategory
	case strings.HasPrefix(string(c), "clinical/"):
		return KindClinical
	}
	return ""
}

// Name returns the category identifier without its kind prefix
func (c Category) Name() string {
	if i := strings.IndexByte(string(c), '/'); i >= 0 {
		return string(c)[i+1:]
	}
	return string(c)
}

// DefaultCategories returns the fixed, enumerable category set in its
// deterministic export order.
func DefaultCategories() []Category {
	return []Category{
		"quantity/heart_rate",
		"quantity/step_count",
		"quantity/active_energy",
		"quantity/body_mass",
		"quantity/blood_glucose",
		"quantity/oxygen_saturation",
		"category/sleep_analysis",
		"category/mindful_session",
		CategoryWorkouts,
		"clinical/medication_records",
		"clinical/lab_results",
	}
}

// Window is a half-open [Start, End) time interval
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// IsZero reports whether the window is unset
func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Cursor is an opaque incremental-fetch continuation token scoped to one
// category. An empty cursor means "no incremental baseline - fetch in full".
type Cursor string

// Provenance describes where a record came from
type Provenance struct {
	SourceName string            `json:"source_name"`
	SourceID   string            `json:"source_id"`
	Device     string            `json:"device,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// QuantitySample is a numeric measurement with a unit
type QuantitySample struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// CategorySample is an enumerated observation
type CategorySample struct {
	Value int `json:"value"`
}

// WorkoutEvent is a discrete event inside a workout (pause, lap, resume)
type WorkoutEvent struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
}

// WorkoutRecord is an exercise session with optional totals and nested series
type WorkoutRecord struct {
	ActivityType  string         `json:"activity_type"`
	Duration      time.Duration  `json:"duration_seconds"`
	TotalEnergy   *float64       `json:"total_energy_kcal,omitempty"`
	TotalDistance *float64       `json:"total_distance_m,omitempty"`
	HeartRate     []Record       `json:"heart_rate,omitempty"`
	Events        []WorkoutEvent `json:"events,omitempty"`
}

// ClinicalRecord is a typed clinical document with an optional raw payload
type ClinicalRecord struct {
	ClinicalType string `json:"clinical_type"`
	DisplayName  string `json:"display_name"`
	Payload      []byte `json:"payload,omitempty"`
}

// Record is the tagged union over the four health record variants. Exactly
// one of Quantity, Category, Workout, Clinical is non-nil, matching the
// kind of the record's category.
type Record struct {
	ID         string     `json:"id"`
	Category   Category   `json:"category"`
	Start      time.Time  `json:"start"`
	End        time.Time  `json:"end"`
	Provenance Provenance `json:"provenance"`

	Quantity *QuantitySample `json:"quantity,omitempty"`
	CatValue *CategorySample `json:"category_value,omitempty"`
	Workout  *WorkoutRecord  `json:"workout,omitempty"`
	Clinical *ClinicalRecord `json:"clinical,omitempty"`
}

// Kind returns which variant this record carries
func (r *Record) Kind() RecordKind {
	switch {
	case r.Quantity != nil:
		return KindQuantity
	case r.CatValue != nil:
		return KindCategory
	case r.Workout != nil:
		return KindWorkout
	case r.Clinical != nil:
		return KindClinical
	}
	return ""
}

// Validate checks the record invariants: non-empty id, start <= end, and
// exactly one variant populated, agreeing with the category's kind.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: record id is empty", ErrInvalidInput)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: record %s ends before it starts", ErrInvalidInput, r.ID)
	}

	variants := 0
	if r.Quantity != nil {
		variants++
	}
	if r.CatValue != nil {
		variants++
	}
	if r.Workout != nil {
		variants++
	}
	if r.Clinical != nil {
		variants++
	}
	if variants != 1 {
		return fmt.Errorf("%w: record %s has %d variants, want exactly 1", ErrInvalidInput, r.ID, variants)
	}

	if kind := r.Category.Kind(); kind != r.Kind() {
		return fmt.Errorf("%w: record %s variant %s does not match category %s", ErrInvalidInput, r.ID, r.Kind(), r.Category)
	}
	return nil
}
