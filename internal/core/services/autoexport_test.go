package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openvitals/vitalexport-core/internal/adapters/driven/jsondoc"
	"github.com/openvitals/vitalexport-core/internal/adapters/driven/localdir"
	"github.com/openvitals/vitalexport-core/internal/adapters/driven/seal"
	"github.com/openvitals/vitalexport-core/internal/core/domain"
	"github.com/openvitals/vitalexport-core/internal/core/ports/driven"
	"github.com/openvitals/vitalexport-core/internal/core/ports/driven/mocks"
)

// coordinatorFixture bundles the coordinator with its mocks
type coordinatorFixture struct {
	coordinator *AutoExportCoordinator
	source      *mocks.MockRecordSource
	stateStore  *mocks.MockSyncStateStore
	configStore *mocks.MockConfigStore
	wakeups     *mocks.MockWakeupScheduler
}

// newCoordinatorFixture wires a coordinator against a real local-directory
// destination so output validation sees an actual file.
func newCoordinatorFixture(t *testing.T, writer driven.SnapshotWriter) *coordinatorFixture {
	t.Helper()

	source := mocks.NewMockRecordSource()
	stateStore := mocks.NewMockSyncStateStore()
	configStore := mocks.NewMockConfigStore()
	wakeups := mocks.NewMockWakeupScheduler()

	orchestrator := NewExportOrchestrator(ExportOrchestratorConfig{
		Source:      source,
		StateStore:  stateStore,
		Destination: localdir.NewDestination(t.TempDir()),
		Sealer:      seal.New(),
		Writers:     []driven.SnapshotWriter{writer},
		Clock:       func() time.Time { return testNow },
	})

	coordinator := NewAutoExportCoordinator(AutoExportCoordinatorConfig{
		Orchestrator: orchestrator,
		StateStore:   stateStore,
		ConfigStore:  configStore,
		Wakeups:      wakeups,
		Clock:        func() time.Time { return testNow },
	})

	return &coordinatorFixture{
		coordinator: coordinator,
		source:      source,
		stateStore:  stateStore,
		configStore: configStore,
		wakeups:     wakeups,
	}
}

// saveAutoConfig persists a configuration with auto export enabled.
// testNow is Sunday 2026-03-08 02:00 UTC, exactly on the weekly schedule.
func (f *coordinatorFixture) saveAutoConfig(t *testing.T) {
	t.Helper()
	cfg := domain.DefaultConfiguration()
	cfg.Categories = []domain.Category{"quantity/heart_rate"}
	cfg.AutoExport.Enabled = true
	if err := f.configStore.Save(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
}

func TestStartRegistersAndSchedules(t *testing.T) {
	f := newCoordinatorFixture(t, jsondoc.NewWriter())
	f.saveAutoConfig(t)

	if err := f.coordinator.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if f.wakeups.Handlers[autoExportTaskID] == nil {
		t.Error("background handler not registered")
	}
	want := time.Date(2026, 3, 15, 2, 0, 0, 0, time.UTC)
	if got := f.wakeups.LastWakeup(); !got.Equal(want) {
		t.Errorf("first wakeup = %v, want %v", got, want)
	}
}

func TestHandleForegroundRunsWhenOverdue(t *testing.T) {
	f := newCoordinatorFixture(t, jsondoc.NewWriter())
	f.saveAutoConfig(t)
	f.source.Records["quantity/heart_rate"] = quantityRecords("quantity/heart_rate", 2)

	// No export has ever run, so any due instant makes the schedule overdue
	if err := f.coordinator.HandleForeground(context.Background()); err != nil {
		t.Fatalf("foreground: %v", err)
	}

	state, err := f.stateStore.Load(context.Background())
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if len(state.History) != 1 || !state.History[0].Success {
		t.Fatalf("history = %+v", state.History)
	}
	if state.History[0].RecordCount != 2 {
		t.Errorf("record count = %d", state.History[0].RecordCount)
	}

	// The next wakeup is re-requested after the run
	if f.wakeups.WakeupCount() != 1 {
		t.Errorf("wakeups requested = %d, want 1", f.wakeups.WakeupCount())
	}
}

func TestHandleForegroundSkipsWhenNotOverdue(t *testing.T) {
	f := newCoordinatorFixture(t, jsondoc.NewWriter())
	f.saveAutoConfig(t)

	// An export already ran at the most recent due instant
	state := domain.NewSyncState()
	state.RecordSuccess(domain.NewExportRecord(testNow, domain.FormatDocument))
	if err := f.stateStore.Save(context.Background(), state); err != nil {
		t.Fatal(err)
	}

	if err := f.coordinator.HandleForeground(context.Background()); err != nil {
		t.Fatalf("foreground: %v", err)
	}

	if len(f.source.FetchCalls) != 0 {
		t.Error("no export should have run")
	}
	if f.wakeups.WakeupCount() != 1 {
		t.Errorf("wakeup still requested = %d, want 1", f.wakeups.WakeupCount())
	}
}

func TestHandleForegroundDisabledIsNoop(t *testing.T) {
	f := newCoordinatorFixture(t, jsondoc.NewWriter())

	// No configuration saved at all; defaults have auto export off
	if err := f.coordinator.HandleForeground(context.Background()); err != nil {
		t.Fatalf("foreground: %v", err)
	}
	if len(f.source.FetchCalls) != 0 {
		t.Error("no export should have run")
	}
	if f.wakeups.WakeupCount() != 0 {
		t.Error("disabled auto export must not request wakeups")
	}
}

func TestHandleWakeupRunsAtScheduledInstant(t *testing.T) {
	f := newCoordinatorFixture(t, jsondoc.NewWriter())
	f.saveAutoConfig(t)
	f.source.Records["quantity/heart_rate"] = quantityRecords("quantity/heart_rate", 1)

	var completed, success bool
	f.coordinator.HandleWakeup(context.Background(), func(ok bool) {
		completed, success = true, ok
	})

	if !completed || !success {
		t.Fatalf("completed = %v success = %v", completed, success)
	}

	// The window is anchored at the scheduled instant, not wall time
	if len(f.source.FetchCalls) == 0 {
		t.Fatal("no fetches recorded")
	}
	scheduledAt := time.Date(2026, 3, 8, 2, 0, 0, 0, time.UTC)
	if !f.source.FetchCalls[0].Window.End.Equal(scheduledAt) {
		t.Errorf("window end = %v, want %v", f.source.FetchCalls[0].Window.End, scheduledAt)
	}

	if f.wakeups.WakeupCount() != 1 {
		t.Errorf("next wakeup not requested, count = %d", f.wakeups.WakeupCount())
	}
}

func TestHandleWakeupExhaustedDeadline(t *testing.T) {
	f := newCoordinatorFixture(t, jsondoc.NewWriter())
	f.saveAutoConfig(t)

	// A deadline already inside the completion margin leaves no usable time
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(time.Second))
	defer cancel()

	var success bool
	f.coordinator.HandleWakeup(ctx, func(ok bool) { success = ok })

	if success {
		t.Error("wakeup with no usable time must report incompletion")
	}
	if len(f.source.FetchCalls) != 0 {
		t.Error("no export should have started")
	}
	if f.wakeups.WakeupCount() != 1 {
		t.Error("next wakeup must still be requested")
	}
}

func TestTriggersWhileRunningAreIgnored(t *testing.T) {
	f := newCoordinatorFixture(t, jsondoc.NewWriter())
	f.saveAutoConfig(t)

	// Simulate an in-flight run holding the execution lock
	f.coordinator.mu.Lock()
	defer f.coordinator.mu.Unlock()

	err := f.coordinator.HandleForeground(context.Background())
	if !errors.Is(err, domain.ErrExportInProgress) {
		t.Errorf("foreground error = %v, want ErrExportInProgress", err)
	}

	var success bool
	completed := false
	f.coordinator.HandleWakeup(context.Background(), func(ok bool) {
		completed, success = true, ok
	})
	if !completed || success {
		t.Errorf("wakeup while busy: completed = %v success = %v", completed, success)
	}

	if _, err := f.coordinator.RunManual(context.Background(), domain.DefaultConfiguration(), "", nil); !errors.Is(err, domain.ErrExportInProgress) {
		t.Errorf("manual error = %v, want ErrExportInProgress", err)
	}
}

func TestValidationFailureDowngradesRun(t *testing.T) {
	// The mock writer emits bare metadata with no data section, which the
	// post-run validation rejects.
	f := newCoordinatorFixture(t, mocks.NewMockWriter())
	f.saveAutoConfig(t)
	f.source.Records["quantity/heart_rate"] = quantityRecords("quantity/heart_rate", 3)

	err := f.coordinator.HandleForeground(context.Background())
	if !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("error = %v, want ErrValidationFailed", err)
	}

	state, loadErr := f.stateStore.Load(context.Background())
	if loadErr != nil {
		t.Fatalf("load state: %v", loadErr)
	}
	last := state.LastRun()
	if last == nil {
		t.Fatal("no history entry")
	}
	if last.Success || last.Error == "" {
		t.Errorf("run not downgraded: %+v", last)
	}
}

func TestRunManualSchedulesNext(t *testing.T) {
	f := newCoordinatorFixture(t, jsondoc.NewWriter())
	f.saveAutoConfig(t)
	f.source.Records["quantity/heart_rate"] = quantityRecords("quantity/heart_rate", 1)

	cfg := domain.DefaultConfiguration()
	cfg.Categories = []domain.Category{"quantity/heart_rate"}

	result, err := f.coordinator.RunManual(context.Background(), cfg, "", nil)
	if err != nil {
		t.Fatalf("manual run: %v", err)
	}
	if result.RecordCount != 1 {
		t.Errorf("record count = %d", result.RecordCount)
	}
	if f.wakeups.WakeupCount() != 1 {
		t.Errorf("wakeup after manual run = %d, want 1", f.wakeups.WakeupCount())
	}
}
