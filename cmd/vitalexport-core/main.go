package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/openvitals/vitalexport-core/internal/adapters/driven/jsondoc"
	"github.com/openvitals/vitalexport-core/internal/adapters/driven/jsonsource"
	"github.com/openvitals/vitalexport-core/internal/adapters/driven/localdir"
	"github.com/openvitals/vitalexport-core/internal/adapters/driven/localsched"
	"github.com/openvitals/vitalexport-core/internal/adapters/driven/seal"
	"github.com/openvitals/vitalexport-core/internal/adapters/driven/sqlitefile"
	"github.com/openvitals/vitalexport-core/internal/adapters/driven/statefile"
	"github.com/openvitals/vitalexport-core/internal/core/ports/driven"
	"github.com/openvitals/vitalexport-core/internal/core/services"
)

var version = "dev"

// appConfig is the process configuration, read from VITALEXPORT_* variables.
// The user-facing export settings live in the config store, not here.
type appConfig struct {
	DataDir    string `envconfig:"DATA_DIR" default:""`
	OutputDir  string `envconfig:"OUTPUT_DIR" default:""`
	SourceFile string `envconfig:"SOURCE_FILE" default:""`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
}

// app holds the wired engine shared by all subcommands
type app struct {
	cfg    appConfig
	logger *slog.Logger

	stateStore  *statefile.SyncStateStore
	configStore *statefile.ConfigStore
	wakeups     *localsched.Scheduler
	coordinator *services.AutoExportCoordinator
}

var (
	engine         *app
	flagDataDir    string
	flagOutputDir  string
	flagSourceFile string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:     "vitalexport",
		Short:   "Incremental personal health data export engine",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			engine, err = buildApp()
			return err
		},
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "State directory (env: VITALEXPORT_DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&flagOutputDir, "output-dir", "", "Export output directory (env: VITALEXPORT_OUTPUT_DIR)")
	rootCmd.PersistentFlags().StringVar(&flagSourceFile, "source", "", "JSON record source file (env: VITALEXPORT_SOURCE_FILE)")

	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newAutoCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newResetCmd())
	rootCmd.AddCommand(newOpenCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// buildApp resolves configuration and wires the engine. Flags override
// environment, environment overrides the defaults under the home directory.
func buildApp() (*app, error) {
	var cfg appConfig
	if err := envconfig.Process("vitalexport", &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if flagOutputDir != "" {
		cfg.OutputDir = flagOutputDir
	}
	if flagSourceFile != "" {
		cfg.SourceFile = flagSourceFile
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".vitalexport")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(cfg.DataDir, "exports")
	}
	if cfg.SourceFile == "" {
		cfg.SourceFile = filepath.Join(cfg.DataDir, "records.json")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))

	stateStore := statefile.NewSyncStateStore(cfg.DataDir)
	configStore := statefile.NewConfigStore(cfg.DataDir)
	wakeups := localsched.NewScheduler(localsched.SchedulerConfig{Logger: logger})

	orchestrator := services.NewExportOrchestrator(services.ExportOrchestratorConfig{
		Source:      jsonsource.NewSource(cfg.SourceFile),
		StateStore:  stateStore,
		Destination: localdir.NewDestination(cfg.OutputDir),
		Sealer:      seal.New(),
		Writers: []driven.SnapshotWriter{
			jsondoc.NewWriter(),
			sqlitefile.NewWriter(),
		},
		Logger: logger,
	})

	coordinator := services.NewAutoExportCoordinator(services.AutoExportCoordinatorConfig{
		Orchestrator: orchestrator,
		StateStore:   stateStore,
		ConfigStore:  configStore,
		Wakeups:      wakeups,
		Logger:       logger,
		Password:     os.Getenv("VITALEXPORT_PASSWORD"),
	})

	// Register the background handler up front so any command that finishes
	// an export can reschedule the next wakeup.
	if err := coordinator.Start(); err != nil {
		return nil, err
	}

	return &app{
		cfg:         cfg,
		logger:      logger,
		stateStore:  stateStore,
		configStore: configStore,
		wakeups:     wakeups,
		coordinator: coordinator,
	}, nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
