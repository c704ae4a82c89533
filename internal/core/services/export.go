package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/openvitals/vitalexport-core/internal/core/domain"
	"github.com/openvitals/vitalexport-core/internal/core/ports/driven"
)

// Progress is one export progress event, emitted after each category and
// pipeline stage. Consumers may sample at low frequency for display.
type Progress struct {
	Stage      string `json:"stage"`
	Message    string `json:"message"`
	Step       int    `json:"step"`
	TotalSteps int    `json:"total_steps"`
}

// ProgressFunc receives progress events; nil is allowed
type ProgressFunc func(Progress)

// RunResult is the terminal outcome of a successful export run
type RunResult struct {
	RecordCount int           `json:"record_count"`
	OutputPath  string        `json:"output_path"`
	OutputBytes int64         `json:"output_bytes"`
	Incremental bool          `json:"incremental"`
	Duration    time.Duration `json:"duration"`

	// DestinationError reports a soft failure moving the output to the
	// configured destination; the run itself still succeeded locally.
	DestinationError string `json:"destination_error,omitempty"`
}

// ExportOrchestrator coordinates one export run end to end:
//  1. Resolve the effective date window (explicit, incremental, or bootstrap)
//  2. Fetch each enabled category in a fixed order, cursors in hand
//  3. Assemble the snapshot with its metadata
//  4. Serialize via the requested writer, seal if asked
//  5. Persist the output
//  6. Commit cursors, timestamps, and one history entry atomically
//
// A failure in any category aborts the whole run: no file is written, no
// cursor is committed, and exactly one failed history entry is appended.
type ExportOrchestrator struct {
	source      driven.RecordSource
	stateStore  driven.SyncStateStore
	destination driven.Destination
	sealer      driven.Sealer
	writers     map[domain.ExportFormat]driven.SnapshotWriter
	logger      *slog.Logger

	clock         func() time.Time
	retryInterval time.Duration
}

// ExportOrchestratorConfig holds dependencies for ExportOrchestrator.
type ExportOrchestratorConfig struct {
	Source      driven.RecordSource
	StateStore  driven.SyncStateStore
	Destination driven.Destination
	Sealer      driven.Sealer
	Writers     []driven.SnapshotWriter
	Logger      *slog.Logger

	// Clock overrides time.Now, used to pin output metadata in tests
	Clock func() time.Time

	// RetryInterval is the initial backoff for transient source failures
	RetryInterval time.Duration
}

// NewExportOrchestrator creates a new export orchestrator.
func NewExportOrchestrator(cfg ExportOrchestratorConfig) *ExportOrchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	retryInterval := cfg.RetryInterval
	if retryInterval == 0 {
		retryInterval = 500 * time.Millisecond
	}

	writers := make(map[domain.ExportFormat]driven.SnapshotWriter, len(cfg.Writers))
	for _, w := range cfg.Writers {
		writers[w.Format()] = w
	}

	return &ExportOrchestrator{
		source:        cfg.Source,
		stateStore:    cfg.StateStore,
		destination:   cfg.Destination,
		sealer:        cfg.Sealer,
		writers:       writers,
		logger:        logger,
		clock:         clock,
		retryInterval: retryInterval,
	}
}

// sourceRetries bounds how often a transient fetch failure is retried
const sourceRetries = 3

// fullBootstrapYears is the window depth for a first-ever export
const fullBootstrapYears = 5

// Run executes one export. Cancellation is cooperative, checked only at
// category boundaries; a cancelled run mutates no state and writes no file.
func (o *ExportOrchestrator) Run(ctx context.Context, cfg *domain.ExportConfiguration, password string, progress ProgressFunc) (*RunResult, error) {
	startTime := o.clock()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	writer, ok := o.writers[cfg.Format]
	if !ok {
		return nil, fmt.Errorf("%w: no writer for format %q", domain.ErrInvalidInput, cfg.Format)
	}
	if cfg.Encrypt && password == "" {
		return nil, fmt.Errorf("%w: encryption requested without a password", domain.ErrInvalidInput)
	}

	state, err := o.stateStore.Load(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		state = domain.NewSyncState()
	} else if err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}

	window, incremental := o.resolveWindow(cfg, state, startTime)

	o.logger.Info("starting export",
		"format", cfg.Format,
		"categories", len(cfg.Categories),
		"incremental", incremental,
		"window_start", window.Start,
		"window_end", window.End,
	)

	run := domain.NewExportRecord(startTime, cfg.Format)
	run.Incremental = incremental

	totalSteps := len(cfg.Categories) + 2

	snapshot := &domain.Snapshot{
		Metadata: domain.SnapshotMetadata{
			ExportedAt:  startTime,
			WindowStart: window.Start,
			WindowEnd:   window.End,
			Schema:      domain.SchemaVersion,
			Encrypted:   cfg.Encrypt,
			Incremental: incremental,
		},
	}

	pending := make(map[domain.Category]domain.Cursor)

	for i, category := range cfg.Categories {
		select {
		case <-ctx.Done():
			o.logger.Info("export cancelled", "category", category)
			return nil, fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
		default:
		}

		var cursor domain.Cursor
		if incremental {
			cursor = state.CursorFor(category)
		}

		records, nextCursor, err := o.fetchCategory(ctx, category, window, cfg.BatchSize, cursor)
		if err != nil {
			return o.failRun(ctx, state, run, startTime, fmt.Errorf("fetch %s: %w", category, err))
		}

		if category.Kind() == domain.KindWorkout {
			if err := o.attachSeries(ctx, records); err != nil {
				return o.failRun(ctx, state, run, startTime, fmt.Errorf("fetch workout series: %w", err))
			}
		}

		snapshot.Add(category, records)
		if nextCursor != "" {
			pending[category] = nextCursor
		}

		emit(progress, Progress{
			Stage:      "fetch",
			Message:    fmt.Sprintf("Fetched %s (%d records)", category, len(records)),
			Step:       i + 1,
			TotalSteps: totalSteps,
		})
	}

	emit(progress, Progress{
		Stage:      "serialize",
		Message:    fmt.Sprintf("Writing %s output", cfg.Format),
		Step:       len(cfg.Categories) + 1,
		TotalSteps: totalSteps,
	})

	data, err := writer.Write(snapshot)
	if err != nil {
		return o.failRun(ctx, state, run, startTime, err)
	}

	if cfg.Encrypt {
		sealed, err := o.sealer.Seal(data, password)
		if err != nil {
			return o.failRun(ctx, state, run, startTime, err)
		}
		data = sealed
	}

	filename := exportFilename(startTime, cfg.Encrypt, writer.FileExtension())

	// The empty reference resolves to the local staging location; a failure
	// here fails the run because there is no output at all.
	outputPath, err := o.destination.Write(ctx, data, filename, "")
	if err != nil {
		return o.failRun(ctx, state, run, startTime, fmt.Errorf("persist output: %w", err))
	}

	var destErr string
	if cfg.DestinationRef != "" {
		if _, err := o.destination.Write(ctx, data, filename, cfg.DestinationRef); err != nil {
			// Soft failure: the export exists locally, only the move failed
			destErr = err.Error()
			o.logger.Warn("failed to copy export to destination", "ref", cfg.DestinationRef, "error", err)
		}
	}

	emit(progress, Progress{
		Stage:      "persist",
		Message:    fmt.Sprintf("Saved %s", filename),
		Step:       totalSteps,
		TotalSteps: totalSteps,
	})

	duration := o.clock().Sub(startTime)

	run.RecordCount = snapshot.Metadata.RecordCount
	run.OutputBytes = int64(len(data))
	run.OutputPath = outputPath
	run.Duration = duration.Seconds()

	// Single atomic state mutation: cursors, timestamps, and history move
	// together only after the output is durable.
	for category, cursor := range pending {
		state.SetCursor(category, cursor)
	}
	state.RecordSuccess(run)
	if err := o.stateStore.Save(ctx, state); err != nil {
		o.logger.Warn("failed to persist sync state", "error", err)
	}

	o.logger.Info("export completed",
		"records", run.RecordCount,
		"bytes", run.OutputBytes,
		"duration_seconds", run.Duration,
		"output", outputPath,
		"incremental", incremental,
	)

	return &RunResult{
		RecordCount:      run.RecordCount,
		OutputPath:       outputPath,
		OutputBytes:      run.OutputBytes,
		Incremental:      incremental,
		Duration:         duration,
		DestinationError: destErr,
	}, nil
}

// resolveWindow determines the effective date window: an explicit window
// from the configuration wins; otherwise the run is incremental since the
// last export, unless a full export is due; a first run bootstraps from five
// years back.
func (o *ExportOrchestrator) resolveWindow(cfg *domain.ExportConfiguration, state *domain.SyncState, now time.Time) (domain.Window, bool) {
	if cfg.Window != nil {
		return *cfg.Window, false
	}
	if state.LastExportAt != nil && !state.NeedsFullExport(now) {
		return domain.Window{Start: *state.LastExportAt, End: now}, true
	}
	return domain.Window{Start: now.AddDate(-fullBootstrapYears, 0, 0), End: now}, false
}

// fetchCategory pages through one category. Transient source failures are
// retried with exponential backoff before the run is failed.
func (o *ExportOrchestrator) fetchCategory(ctx context.Context, category domain.Category, window domain.Window, batch int, cursor domain.Cursor) ([]domain.Record, domain.Cursor, error) {
	var all []domain.Record
	last := cursor

	for {
		records, next, err := o.fetchPage(ctx, category, window, batch, last)
		if err != nil {
			return nil, "", err
		}
		all = append(all, records...)

		done := next == "" || next == last || len(records) == 0 || batch == 0 || len(records) < batch
		if next != "" {
			last = next
		}
		if done {
			break
		}
	}

	return all, last, nil
}

func (o *ExportOrchestrator) fetchPage(ctx context.Context, category domain.Category, window domain.Window, batch int, cursor domain.Cursor) ([]domain.Record, domain.Cursor, error) {
	var (
		records []domain.Record
		next    domain.Cursor
	)

	operation := func() error {
		var err error
		records, next, err = o.source.Fetch(ctx, category, window, batch, cursor)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrSourceUnavailable) {
			return backoff.Permanent(err)
		}
		o.logger.Warn("transient source failure, retrying", "category", category, "error", err)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = o.retryInterval

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, sourceRetries), ctx))
	if err != nil {
		return nil, "", err
	}
	return records, next, nil
}

// attachSeries fetches the heart-rate-like series recorded during each
// workout and nests them on the workout record.
func (o *ExportOrchestrator) attachSeries(ctx context.Context, workouts []domain.Record) error {
	for i := range workouts {
		w := &workouts[i]
		if w.Workout == nil {
			continue
		}
		series, err := o.source.FetchAssociatedSeries(ctx, w.ID, domain.Window{Start: w.Start, End: w.End})
		if err != nil {
			return err
		}
		w.Workout.HeartRate = series
	}
	return nil
}

// failRun appends exactly one failed history entry and persists it. Cursors
// collected during the run are deliberately discarded: the run is
// all-or-nothing.
func (o *ExportOrchestrator) failRun(ctx context.Context, state *domain.SyncState, run domain.ExportRecord, startTime time.Time, err error) (*RunResult, error) {
	duration := o.clock().Sub(startTime)

	o.logger.Error("export failed", "duration_seconds", duration.Seconds(), "error", err)

	run.Error = err.Error()
	run.Duration = duration.Seconds()
	state.RecordFailure(run)
	if saveErr := o.stateStore.Save(ctx, state); saveErr != nil {
		o.logger.Warn("failed to persist sync state after failure", "error", saveErr)
	}

	return nil, err
}

// exportFilename encodes the export instant and, when sealed, an
// `_encrypted` marker: vitalexport_20260308T020000_encrypted.json
func exportFilename(ts time.Time, encrypted bool, ext string) string {
	name := "vitalexport_" + ts.UTC().Format("20060102T150405")
	if encrypted {
		name += "_encrypted"
	}
	return name + "." + ext
}

func emit(progress ProgressFunc, p Progress) {
	if progress != nil {
		progress(p)
	}
}
