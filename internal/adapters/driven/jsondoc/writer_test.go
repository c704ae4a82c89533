package jsondoc

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openvitals/vitalexport-core/internal/core/domain"
)

func sampleSnapshot() *domain.Snapshot {
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

	hr := []domain.Record{}
	for i, v := range []float64{61, 64, 59} {
		hr = append(hr, domain.Record{
			ID:       "hr-" + string(rune('a'+i)),
			Category: "quantity/heart_rate",
			Start:    start.Add(time.Duration(i) * time.Minute),
			End:      start.Add(time.Duration(i) * time.Minute),
			Provenance: domain.Provenance{
				SourceName: "Watch",
				SourceID:   "watch-1",
				Metadata:   map[string]string{"context": "resting", "algo": "v2"},
			},
			Quantity: &domain.QuantitySample{Value: v, Unit: "count/min"},
		})
	}
	snap.Add("quantity/heart_rate", hr)
	snap.Add("quantity/step_count", nil)
	snap.Add("category/sleep_analysis", []domain.Record{{
		ID:         "s1",
		Category:   "category/sleep_analysis",
		Start:      start,
		End:        start.Add(8 * time.Hour),
		Provenance: domain.Provenance{SourceName: "Watch", SourceID: "watch-1"},
		CatValue:   &domain.CategorySample{Value: 1},
	}})
	snap.Add(domain.CategoryWorkouts, []domain.Record{{
		ID:         "w1",
		Category:   domain.CategoryWorkouts,
		Start:      start,
		End:        start.Add(time.Hour),
		Provenance: domain.Provenance{SourceName: "Watch", SourceID: "watch-1"},
		Workout: &domain.WorkoutRecord{
			ActivityType: "running",
			Duration:     time.Hour,
			Events:       []domain.WorkoutEvent{{Type: "pause", At: start.Add(20 * time.Minute)}},
		},
	}})

	return snap
}

func TestWriteStructure(t *testing.T) {
	out, err := NewWriter().Write(sampleSnapshot())
	require.NoError(t, err)

	var doc struct {
		Metadata domain.SnapshotMetadata `json:"metadata"`
		Data     struct {
			Quantity map[string][]domain.Record `json:"quantity"`
			Category map[string][]domain.Record `json:"category"`
			Workouts []domain.Record            `json:"workouts"`
			Clinical []domain.Record            `json:"clinical"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out, &doc))

	require.Equal(t, domain.SchemaVersion, doc.Metadata.Schema)
	require.Equal(t, 5, doc.Metadata.RecordCount)

	require.Len(t, doc.Data.Quantity["heart_rate"], 3)
	require.Contains(t, doc.Data.Quantity, "step_count", "empty bucket must still appear")
	require.Empty(t, doc.Data.Quantity["step_count"])
	require.Len(t, doc.Data.Category["sleep_analysis"], 1)
	require.Len(t, doc.Data.Workouts, 1)
	require.Empty(t, doc.Data.Clinical)

	// Fetch order survives the round trip
	require.Equal(t, "hr-a", doc.Data.Quantity["heart_rate"][0].ID)
	require.Equal(t, float64(61), doc.Data.Quantity["heart_rate"][0].Quantity.Value)
}

func TestWriteDeterministic(t *testing.T) {
	w := NewWriter()

	a, err := w.Write(sampleSnapshot())
	require.NoError(t, err)
	b, err := w.Write(sampleSnapshot())
	require.NoError(t, err)

	if !bytes.Equal(a, b) {
		t.Fatal("two writes of the same snapshot differ")
	}
}

func TestWritePreservesBucketOrder(t *testing.T) {
	out, err := NewWriter().Write(sampleSnapshot())
	require.NoError(t, err)

	// heart_rate was fetched before step_count and must serialize first
	hr := bytes.Index(out, []byte(`"heart_rate"`))
	steps := bytes.Index(out, []byte(`"step_count"`))
	require.True(t, hr >= 0 && steps >= 0)
	require.Less(t, hr, steps)
}

func TestWriteEmptySnapshot(t *testing.T) {
	out, err := NewWriter().Write(&domain.Snapshot{})
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &doc))
	require.Contains(t, doc, "metadata")
	require.Contains(t, doc, "data")
}
