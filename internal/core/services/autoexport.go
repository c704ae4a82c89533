package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/openvitals/vitalexport-core/internal/core/domain"
	"github.com/openvitals/vitalexport-core/internal/core/ports/driven"
)

const (
	// autoExportTaskID identifies the recurring export with the platform
	// scheduler
	autoExportTaskID = "vitalexport.autoexport"

	// backgroundBudget bounds a background run; it must finish comfortably
	// inside the platform's deadline
	backgroundBudget = 25 * time.Second

	// backgroundMargin is reserved inside the platform deadline for
	// reporting completion
	backgroundMargin = 2 * time.Second

	// foregroundBudget bounds a foreground catch-up run so a stuck source
	// cannot hang the host indefinitely
	foregroundBudget = 5 * time.Minute

	// minOutputBytes is the sanity floor for a plausible export file
	minOutputBytes = 64
)

// AutoExportCoordinator reconciles the recurring export schedule against
// actual execution history. Two triggers feed one serialized execution path:
// an opportunistic background wakeup with a hard platform deadline, and a
// guaranteed foreground fallback that runs whenever the host becomes active
// and the schedule is overdue. A second trigger while a run is in flight is
// ignored. Rescheduling the next wakeup is unconditional on every path.
type AutoExportCoordinator struct {
	orchestrator *ExportOrchestrator
	stateStore   driven.SyncStateStore
	configStore  driven.ConfigStore
	wakeups      driven.WakeupScheduler
	logger       *slog.Logger

	// password unlocks encrypted auto exports; resolved by the host
	password string

	clock            func() time.Time
	backgroundBudget time.Duration
	foregroundBudget time.Duration

	// mu serializes all export execution: background, foreground, manual
	mu sync.Mutex
}

// AutoExportCoordinatorConfig holds dependencies for AutoExportCoordinator.
type AutoExportCoordinatorConfig struct {
	Orchestrator *ExportOrchestrator
	StateStore   driven.SyncStateStore
	ConfigStore  driven.ConfigStore
	Wakeups      driven.WakeupScheduler
	Logger       *slog.Logger
	Password     string

	// Clock overrides time.Now in tests
	Clock func() time.Time

	// BackgroundBudget and ForegroundBudget override the run timeouts
	BackgroundBudget time.Duration
	ForegroundBudget time.Duration
}

// NewAutoExportCoordinator creates a new coordinator.
func NewAutoExportCoordinator(cfg AutoExportCoordinatorConfig) *AutoExportCoordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	bg := cfg.BackgroundBudget
	if bg == 0 {
		bg = backgroundBudget
	}
	fg := cfg.ForegroundBudget
	if fg == 0 {
		fg = foregroundBudget
	}

	return &AutoExportCoordinator{
		orchestrator:     cfg.Orchestrator,
		stateStore:       cfg.StateStore,
		configStore:      cfg.ConfigStore,
		wakeups:          cfg.Wakeups,
		logger:           logger,
		password:         cfg.Password,
		clock:            clock,
		backgroundBudget: bg,
		foregroundBudget: fg,
	}
}

// Start registers the background handler and requests the first wakeup.
func (c *AutoExportCoordinator) Start() error {
	if err := c.wakeups.Register(autoExportTaskID, c.HandleWakeup); err != nil {
		return fmt.Errorf("register wakeup handler: %w", err)
	}
	c.scheduleNext()
	return nil
}

// HandleWakeup is the background trigger. It attempts a full run under a
// budget shorter than the platform deadline, reports incompletion instead of
// failing loudly, and always re-registers the next wakeup.
func (c *AutoExportCoordinator) HandleWakeup(ctx context.Context, complete func(success bool)) {
	defer c.scheduleNext()

	if !c.mu.TryLock() {
		c.logger.Info("background wakeup ignored, export already running")
		complete(false)
		return
	}
	defer c.mu.Unlock()

	cfg, err := c.loadConfig(ctx)
	if err != nil {
		c.logger.Error("background export: load configuration", "error", err)
		complete(false)
		return
	}
	if !cfg.AutoExport.Enabled {
		complete(true)
		return
	}

	budget := c.backgroundBudget
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline) - backgroundMargin; remaining < budget {
			budget = remaining
		}
	}
	if budget <= 0 {
		c.logger.Warn("background wakeup arrived with no usable time")
		complete(false)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	if err := c.runScheduled(runCtx, cfg); err != nil {
		c.logger.Warn("background export did not complete", "error", err)
		complete(false)
		return
	}
	complete(true)
}

// HandleForeground is the guaranteed fallback, invoked whenever the host
// application becomes active. If the schedule is overdue it runs the export
// synchronously with the window resolved at the originally scheduled
// instant, so the exported range is deterministic however late the run is.
func (c *AutoExportCoordinator) HandleForeground(ctx context.Context) error {
	defer c.scheduleNext()

	cfg, err := c.loadConfig(ctx)
	if err != nil {
		return err
	}
	if !cfg.AutoExport.Enabled {
		return nil
	}

	state, err := c.loadState(ctx)
	if err != nil {
		return err
	}

	now := c.clock()
	schedule := cfg.AutoExport.Schedule()
	if !schedule.Overdue(state.LastExportAt, now) {
		return nil
	}

	if !c.mu.TryLock() {
		return domain.ErrExportInProgress
	}
	defer c.mu.Unlock()

	c.logger.Info("schedule overdue, running foreground export",
		"scheduled_at", schedule.MostRecentDue(now),
		"last_export", state.LastExportAt,
	)

	runCtx, cancel := context.WithTimeout(ctx, c.foregroundBudget)
	defer cancel()

	return c.runScheduled(runCtx, cfg)
}

// RunManual executes a user-initiated export under the same mutual
// exclusion as the scheduled paths.
func (c *AutoExportCoordinator) RunManual(ctx context.Context, cfg *domain.ExportConfiguration, password string, progress ProgressFunc) (*RunResult, error) {
	if !c.mu.TryLock() {
		return nil, domain.ErrExportInProgress
	}
	defer c.mu.Unlock()
	defer c.scheduleNext()

	return c.orchestrator.Run(ctx, cfg, password, progress)
}

// runScheduled executes one scheduled export and validates its output.
// The window is resolved at the most recent due instant, not "now".
func (c *AutoExportCoordinator) runScheduled(ctx context.Context, cfg *domain.ExportConfiguration) error {
	state, err := c.loadState(ctx)
	if err != nil {
		return err
	}

	auto := cfg.AutoExport
	scheduledAt := auto.Schedule().MostRecentDue(c.clock())
	window := auto.DataRange.Resolve(scheduledAt, state.LastExportAt)

	runCfg := &domain.ExportConfiguration{
		Format:         auto.Format,
		Categories:     cfg.Categories,
		Encrypt:        auto.Encrypt,
		BatchSize:      cfg.BatchSize,
		Window:         &window,
		DestinationRef: auto.DestinationRef,
	}

	result, err := c.orchestrator.Run(ctx, runCfg, c.password, nil)
	if err != nil {
		return err
	}

	if err := c.validateOutput(result.OutputPath, auto.Format, auto.Encrypt); err != nil {
		c.downgradeLastRun(ctx, err.Error())
		return err
	}
	return nil
}

// validateOutput sanity-checks a finished export before the run counts as
// successful: the file must exist and be plausibly sized, and an unencrypted
// document must parse with a metadata section and a non-empty data section.
func (c *AutoExportCoordinator) validateOutput(path string, format domain.ExportFormat, encrypted bool) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: output missing: %v", domain.ErrValidationFailed, err)
	}
	if info.Size() < minOutputBytes {
		return fmt.Errorf("%w: output implausibly small (%d bytes)", domain.ErrValidationFailed, info.Size())
	}

	if format != domain.FormatDocument || encrypted {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read output: %v", domain.ErrValidationFailed, err)
	}

	var doc struct {
		Metadata *json.RawMessage           `json:"metadata"`
		Data     map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: output does not parse: %v", domain.ErrValidationFailed, err)
	}
	if doc.Metadata == nil {
		return fmt.Errorf("%w: output has no metadata section", domain.ErrValidationFailed)
	}
	if len(doc.Data) == 0 {
		return fmt.Errorf("%w: output has an empty data section", domain.ErrValidationFailed)
	}
	return nil
}

// downgradeLastRun flips the just-appended history entry to failed after a
// validation rejection.
func (c *AutoExportCoordinator) downgradeLastRun(ctx context.Context, reason string) {
	state, err := c.loadState(ctx)
	if err != nil {
		c.logger.Error("cannot downgrade run, state unavailable", "error", err)
		return
	}
	if !state.MarkLastRunFailed(reason) {
		return
	}
	if err := c.stateStore.Save(ctx, state); err != nil {
		c.logger.Error("failed to persist downgraded run", "error", err)
	}
}

// scheduleNext re-registers the next background wakeup. Scheduling is never
// left dangling: this runs after every trigger regardless of outcome.
func (c *AutoExportCoordinator) scheduleNext() {
	ctx := context.Background()

	cfg, err := c.loadConfig(ctx)
	if err != nil {
		c.logger.Error("cannot schedule next export, configuration unavailable", "error", err)
		return
	}
	if !cfg.AutoExport.Enabled {
		return
	}

	next := cfg.AutoExport.Schedule().NextDue(c.clock())
	if err := c.wakeups.RequestWakeup(autoExportTaskID, next); err != nil {
		c.logger.Error("failed to request next wakeup", "next_due", next, "error", err)
		return
	}
	c.logger.Info("next auto export scheduled", "next_due", next)
}

func (c *AutoExportCoordinator) loadConfig(ctx context.Context) (*domain.ExportConfiguration, error) {
	cfg, err := c.configStore.Load(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.DefaultConfiguration(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

func (c *AutoExportCoordinator) loadState(ctx context.Context) (*domain.SyncState, error) {
	state, err := c.stateStore.Load(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewSyncState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}
	return state, nil
}
