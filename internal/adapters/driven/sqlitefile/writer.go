// Package sqlitefile serializes a snapshot into a single-file relational
// store.
package sqlitefile

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/openvitals/vitalexport-core/internal/core/domain"
	"github.com/openvitals/vitalexport-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SnapshotWriter = (*Writer)(nil)

const schema = `
CREATE TABLE export_metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE quantity_samples (
	id          TEXT PRIMARY KEY,
	category    TEXT NOT NULL,
	value       REAL NOT NULL,
	unit        TEXT NOT NULL,
	start_ts    INTEGER NOT NULL,
	end_ts      INTEGER NOT NULL,
	source_name TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	device      TEXT,
	metadata    TEXT
);

CREATE TABLE category_samples (
	id          TEXT PRIMARY KEY,
	category    TEXT NOT NULL,
	value       INTEGER NOT NULL,
	start_ts    INTEGER NOT NULL,
	end_ts      INTEGER NOT NULL,
	source_name TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	device      TEXT,
	metadata    TEXT
);

CREATE TABLE workouts (
	id               TEXT PRIMARY KEY,
	activity_type    TEXT NOT NULL,
	duration_seconds REAL NOT NULL,
	total_energy_kcal REAL,
	total_distance_m  REAL,
	events           TEXT,
	start_ts         INTEGER NOT NULL,
	end_ts           INTEGER NOT NULL,
	source_name      TEXT NOT NULL,
	source_id        TEXT NOT NULL,
	device           TEXT,
	metadata         TEXT
);

CREATE TABLE workout_series (
	workout_id TEXT NOT NULL,
	record_id  TEXT NOT NULL,
	category   TEXT NOT NULL,
	value      REAL NOT NULL,
	unit       TEXT NOT NULL,
	start_ts   INTEGER NOT NULL,
	end_ts     INTEGER NOT NULL,
	PRIMARY KEY (workout_id, record_id)
);

CREATE TABLE clinical_records (
	id            TEXT PRIMARY KEY,
	clinical_type TEXT NOT NULL,
	display_name  TEXT NOT NULL,
	start_ts      INTEGER NOT NULL,
	end_ts        INTEGER NOT NULL,
	source_name   TEXT NOT NULL,
	source_id     TEXT NOT NULL,
	device        TEXT,
	metadata      TEXT,
	payload       BLOB
);

CREATE INDEX idx_quantity_samples_category_start ON quantity_samples (category, start_ts);
CREATE INDEX idx_category_samples_category_start ON category_samples (category, start_ts);
CREATE INDEX idx_workouts_start ON workouts (start_ts);
`

// Writer produces the relational export format: a fresh sqlite file per
// invocation with one metadata table, one table per record kind, a
// workout-to-series join table, and (category, start) indices. All inserts
// happen in a single transaction.
type Writer struct{}

// NewWriter creates a relational writer
func NewWriter() *Writer {
	return &Writer{}
}

// Format returns the format this writer produces
func (w *Writer) Format() domain.ExportFormat {
	return domain.FormatRelational
}

// FileExtension returns the output filename extension
func (w *Writer) FileExtension() string {
	return "sqlite"
}

// Write builds the database in a scratch file and returns its bytes
func (w *Writer) Write(snapshot *domain.Snapshot) ([]byte, error) {
	dir, err := os.MkdirTemp("", "vitalexport-sqlite-")
	if err != nil {
		return nil, fmt.Errorf("%w: scratch dir: %v", domain.ErrSerialization, err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "export.sqlite")
	if err := w.build(path, snapshot); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read output: %v", domain.ErrSerialization, err)
	}
	return data, nil
}

func (w *Writer) build(path string, snapshot *domain.Snapshot) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("%w: open database: %v", domain.ErrSerialization, err)
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("%w: create schema: %v", domain.ErrSerialization, err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", domain.ErrSerialization, err)
	}
	defer tx.Rollback()

	if err := insertMetadata(tx, snapshot.Metadata); err != nil {
		return err
	}
	for _, bucket := range snapshot.Quantities {
		for i := range bucket.Records {
			if err := insertQuantity(tx, "quantity_samples", &bucket.Records[i]); err != nil {
				return err
			}
		}
	}
	for _, bucket := range snapshot.Categories {
		for i := range bucket.Records {
			if err := insertCategory(tx, &bucket.Records[i]); err != nil {
				return err
			}
		}
	}
	for i := range snapshot.Workouts {
		if err := insertWorkout(tx, &snapshot.Workouts[i]); err != nil {
			return err
		}
	}
	for i := range snapshot.Clinical {
		if err := insertClinical(tx, &snapshot.Clinical[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrSerialization, err)
	}
	return nil
}

// insertMetadata writes the key/value metadata table in a fixed order
func insertMetadata(tx *sql.Tx, md domain.SnapshotMetadata) error {
	rows := [][2]string{
		{"exported_at", md.ExportedAt.UTC().Format(time.RFC3339)},
		{"window_start", md.WindowStart.UTC().Format(time.RFC3339)},
		{"window_end", md.WindowEnd.UTC().Format(time.RFC3339)},
		{"schema_version", md.Schema},
		{"record_count", strconv.Itoa(md.RecordCount)},
		{"encrypted", strconv.FormatBool(md.Encrypted)},
		{"incremental", strconv.FormatBool(md.Incremental)},
	}
	for _, row := range rows {
		if _, err := tx.Exec(`INSERT INTO export_metadata (key, value) VALUES (?, ?)`, row[0], row[1]); err != nil {
			return fmt.Errorf("%w: insert metadata %s: %v", domain.ErrSerialization, row[0], err)
		}
	}
	return nil
}

func insertQuantity(tx *sql.Tx, table string, r *domain.Record) error {
	if r.Quantity == nil {
		return fmt.Errorf("%w: record %s is not a quantity sample", domain.ErrSerialization, r.ID)
	}
	_, err := tx.Exec(
		`INSERT INTO `+table+` (id, category, value, unit, start_ts, end_ts, source_name, source_id, device, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Category), r.Quantity.Value, r.Quantity.Unit,
		r.Start.UTC().Unix(), r.End.UTC().Unix(),
		r.Provenance.SourceName, r.Provenance.SourceID,
		nullString(r.Provenance.Device), metadataJSON(r.Provenance.Metadata),
	)
	if err != nil {
		return fmt.Errorf("%w: insert quantity %s: %v", domain.ErrSerialization, r.ID, err)
	}
	return nil
}

func insertCategory(tx *sql.Tx, r *domain.Record) error {
	if r.CatValue == nil {
		return fmt.Errorf("%w: record %s is not a category sample", domain.ErrSerialization, r.ID)
	}
	_, err := tx.Exec(
		`INSERT INTO category_samples (id, category, value, start_ts, end_ts, source_name, source_id, device, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Category), r.CatValue.Value,
		r.Start.UTC().Unix(), r.End.UTC().Unix(),
		r.Provenance.SourceName, r.Provenance.SourceID,
		nullString(r.Provenance.Device), metadataJSON(r.Provenance.Metadata),
	)
	if err != nil {
		return fmt.Errorf("%w: insert category %s: %v", domain.ErrSerialization, r.ID, err)
	}
	return nil
}

func insertWorkout(tx *sql.Tx, r *domain.Record) error {
	wk := r.Workout
	if wk == nil {
		return fmt.Errorf("%w: record %s is not a workout", domain.ErrSerialization, r.ID)
	}

	var events any
	if len(wk.Events) > 0 {
		out, err := json.Marshal(wk.Events)
		if err != nil {
			return fmt.Errorf("%w: marshal workout events %s: %v", domain.ErrSerialization, r.ID, err)
		}
		events = string(out)
	}

	_, err := tx.Exec(
		`INSERT INTO workouts (id, activity_type, duration_seconds, total_energy_kcal, total_distance_m, events,
		                       start_ts, end_ts, source_name, source_id, device, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, wk.ActivityType, wk.Duration.Seconds(),
		nullFloat(wk.TotalEnergy), nullFloat(wk.TotalDistance), events,
		r.Start.UTC().Unix(), r.End.UTC().Unix(),
		r.Provenance.SourceName, r.Provenance.SourceID,
		nullString(r.Provenance.Device), metadataJSON(r.Provenance.Metadata),
	)
	if err != nil {
		return fmt.Errorf("%w: insert workout %s: %v", domain.ErrSerialization, r.ID, err)
	}

	for i := range wk.HeartRate {
		series := &wk.HeartRate[i]
		if series.Quantity == nil {
			return fmt.Errorf("%w: workout %s series record %s is not a quantity sample", domain.ErrSerialization, r.ID, series.ID)
		}
		_, err := tx.Exec(
			`INSERT INTO workout_series (workout_id, record_id, category, value, unit, start_ts, end_ts)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, series.ID, string(series.Category),
			series.Quantity.Value, series.Quantity.Unit,
			series.Start.UTC().Unix(), series.End.UTC().Unix(),
		)
		if err != nil {
			return fmt.Errorf("%w: insert workout series %s/%s: %v", domain.ErrSerialization, r.ID, series.ID, err)
		}
	}
	return nil
}

func insertClinical(tx *sql.Tx, r *domain.Record) error {
	cl := r.Clinical
	if cl == nil {
		return fmt.Errorf("%w: record %s is not a clinical record", domain.ErrSerialization, r.ID)
	}
	_, err := tx.Exec(
		`INSERT INTO clinical_records (id, clinical_type, display_name, start_ts, end_ts, source_name, source_id, device, metadata, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, cl.ClinicalType, cl.DisplayName,
		r.Start.UTC().Unix(), r.End.UTC().Unix(),
		r.Provenance.SourceName, r.Provenance.SourceID,
		nullString(r.Provenance.Device), metadataJSON(r.Provenance.Metadata),
		cl.Payload,
	)
	if err != nil {
		return fmt.Errorf("%w: insert clinical %s: %v", domain.ErrSerialization, r.ID, err)
	}
	return nil
}

// metadataJSON embeds the free-form metadata map as a serialized string
// column. json.Marshal sorts map keys, keeping output deterministic.
func metadataJSON(md map[string]string) any {
	if len(md) == 0 {
		return nil
	}
	out, err := json.Marshal(md)
	if err != nil {
		return nil
	}
	return string(out)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
