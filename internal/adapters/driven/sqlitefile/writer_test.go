package sqlitefile

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openvitals/vitalexport-core/internal/core/domain"
)

func testSnapshot() *domain.Snapshot {
	exportedAt := time.Date(2026, 3, 8, 2, 0, 0, 0, time.UTC)
	start := exportedAt.Add(-24 * time.Hour)

	snap := &domain.Snapshot{
		Metadata: domain.SnapshotMetadata{
			ExportedAt:  exportedAt,
			WindowStart: start,
			WindowEnd:   exportedAt,
			Schema:      domain.SchemaVersion,
		},
	}

	snap.Add("quantity/heart_rate", []domain.Record{
		{
			ID:       "hr-1",
			Category: "quantity/heart_rate",
			Start:    start,
			End:      start,
			Provenance: domain.Provenance{
				SourceName: "Watch",
				SourceID:   "watch-1",
				Metadata:   map[string]string{"context": "resting"},
			},
			Quantity: &domain.QuantitySample{Value: 61, Unit: "count/min"},
		},
		{
			ID:         "hr-2",
			Category:   "quantity/heart_rate",
			Start:      start.Add(time.Minute),
			End:        start.Add(time.Minute),
			Provenance: domain.Provenance{SourceName: "Watch", SourceID: "watch-1"},
			Quantity:   &domain.QuantitySample{Value: 64, Unit: "count/min"},
		},
	})
	snap.Add("category/sleep_analysis", []domain.Record{{
		ID:         "s1",
		Category:   "category/sleep_analysis",
		Start:      start,
		End:        start.Add(8 * time.Hour),
		Provenance: domain.Provenance{SourceName: "Phone", SourceID: "phone-1"},
		CatValue:   &domain.CategorySample{Value: 1},
	}})

	energy := 412.5
	snap.Add(domain.CategoryWorkouts, []domain.Record{{
		ID:         "w1",
		Category:   domain.CategoryWorkouts,
		Start:      start,
		End:        start.Add(time.Hour),
		Provenance: domain.Provenance{SourceName: "Watch", SourceID: "watch-1"},
		Workout: &domain.WorkoutRecord{
			ActivityType: "running",
			Duration:     time.Hour,
			TotalEnergy:  &energy,
			Events:       []domain.WorkoutEvent{{Type: "pause", At: start.Add(20 * time.Minute)}},
			HeartRate: []domain.Record{{
				ID:         "whr-1",
				Category:   "quantity/heart_rate",
				Start:      start.Add(10 * time.Minute),
				End:        start.Add(10 * time.Minute),
				Provenance: domain.Provenance{SourceName: "Watch", SourceID: "watch-1"},
				Quantity:   &domain.QuantitySample{Value: 148, Unit: "count/min"},
			}},
		},
	}})
	snap.Add("clinical/lab_results", []domain.Record{{
		ID:         "c1",
		Category:   "clinical/lab_results",
		Start:      start,
		End:        start,
		Provenance: domain.Provenance{SourceName: "Clinic", SourceID: "clinic-1"},
		Clinical: &domain.ClinicalRecord{
			ClinicalType: "lab_results",
			DisplayName:  "Lipid panel",
			Payload:      []byte(`{"resourceType":"Observation"}`),
		},
	}})

	return snap
}

// openOutput writes the snapshot bytes back to disk and opens them as a
// database for inspection.
func openOutput(t *testing.T, data []byte) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.sqlite")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func TestWritePopulatesAllTables(t *testing.T) {
	out, err := NewWriter().Write(testSnapshot())
	require.NoError(t, err)

	db := openOutput(t, out)

	require.Equal(t, 7, countRows(t, db, "export_metadata"))
	require.Equal(t, 2, countRows(t, db, "quantity_samples"))
	require.Equal(t, 1, countRows(t, db, "category_samples"))
	require.Equal(t, 1, countRows(t, db, "workouts"))
	require.Equal(t, 1, countRows(t, db, "workout_series"))
	require.Equal(t, 1, countRows(t, db, "clinical_records"))

	var recordCount string
	require.NoError(t, db.QueryRow(`SELECT value FROM export_metadata WHERE key = 'record_count'`).Scan(&recordCount))
	require.Equal(t, "5", recordCount)

	var metadata sql.NullString
	require.NoError(t, db.QueryRow(`SELECT metadata FROM quantity_samples WHERE id = 'hr-1'`).Scan(&metadata))
	require.True(t, metadata.Valid)
	require.JSONEq(t, `{"context":"resting"}`, metadata.String)

	var payload []byte
	require.NoError(t, db.QueryRow(`SELECT payload FROM clinical_records WHERE id = 'c1'`).Scan(&payload))
	require.Equal(t, []byte(`{"resourceType":"Observation"}`), payload)
}

func TestWriteCreatesIndices(t *testing.T) {
	out, err := NewWriter().Write(testSnapshot())
	require.NoError(t, err)

	db := openOutput(t, out)

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_%'`)
	require.NoError(t, err)
	defer rows.Close()

	found := make(map[string]bool)
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	for _, want := range []string{
		"idx_quantity_samples_category_start",
		"idx_category_samples_category_start",
		"idx_workouts_start",
	} {
		require.True(t, found[want], "missing index %s", want)
	}
}

func TestWriteDeterministic(t *testing.T) {
	w := NewWriter()

	a, err := w.Write(testSnapshot())
	require.NoError(t, err)
	b, err := w.Write(testSnapshot())
	require.NoError(t, err)

	if !bytes.Equal(a, b) {
		t.Fatal("two writes of the same snapshot differ")
	}
}

func TestWriteJoinTableLinksWorkout(t *testing.T) {
	out, err := NewWriter().Write(testSnapshot())
	require.NoError(t, err)

	db := openOutput(t, out)

	var workoutID string
	var value float64
	err = db.QueryRow(`SELECT workout_id, value FROM workout_series WHERE record_id = 'whr-1'`).Scan(&workoutID, &value)
	require.NoError(t, err)
	require.Equal(t, "w1", workoutID)
	require.Equal(t, 148.0, value)
}

func TestWriteRejectsMismatchedVariant(t *testing.T) {
	snap := &domain.Snapshot{}
	snap.Quantities = append(snap.Quantities, domain.CategoryBucket{
		Category: "quantity/heart_rate",
		Records: []domain.Record{{
			ID:       "bad",
			Category: "quantity/heart_rate",
			CatValue: &domain.CategorySample{Value: 1},
		}},
	})

	_, err := NewWriter().Write(snap)
	require.Error(t, err)
}
