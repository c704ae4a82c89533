package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/openvitals/vitalexport-core/internal/core/domain"
)

func newAutoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auto",
		Short: "Manage the recurring auto export",
	}

	cmd.AddCommand(newAutoEnableCmd())
	cmd.AddCommand(newAutoDisableCmd())
	cmd.AddCommand(newAutoStatusCmd())
	cmd.AddCommand(newAutoRunCmd())

	return cmd
}

func newAutoEnableCmd() *cobra.Command {
	var (
		flagFrequency string
		flagHour      int
		flagMinute    int
		flagRange     string
		flagFormat    string
		flagEncrypt   bool
		flagDest      string
	)

	cmd := &cobra.Command{
		Use:   "enable",
		Short: "Enable the recurring export",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadOrDefaultConfig(ctx)
			if err != nil {
				return err
			}

			cfg.AutoExport.Enabled = true
			cfg.AutoExport.Frequency = domain.Frequency(flagFrequency)
			cfg.AutoExport.Hour = flagHour
			cfg.AutoExport.Minute = flagMinute
			cfg.AutoExport.DataRange = domain.DataRange(flagRange)
			cfg.AutoExport.Format = domain.ExportFormat(flagFormat)
			cfg.AutoExport.Encrypt = flagEncrypt
			if flagDest != "" {
				cfg.AutoExport.DestinationRef = flagDest
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := engine.configStore.Save(ctx, cfg); err != nil {
				return fmt.Errorf("save configuration: %w", err)
			}

			next := cfg.AutoExport.Schedule().NextDue(time.Now())
			fmt.Fprintf(os.Stderr, "Auto export enabled: %s at %02d:%02d, next due %s\n",
				cfg.AutoExport.Frequency, cfg.AutoExport.Hour, cfg.AutoExport.Minute,
				next.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&flagFrequency, "frequency", "weekly", "Recurrence: daily|weekly|monthly")
	cmd.Flags().IntVar(&flagHour, "hour", 2, "Hour of day (0-23)")
	cmd.Flags().IntVar(&flagMinute, "minute", 0, "Minute of hour (0-59)")
	cmd.Flags().StringVar(&flagRange, "range", "since_last", "Data range: since_last|trailing_24h|trailing_7d|trailing_30d|all")
	cmd.Flags().StringVar(&flagFormat, "format", "document", "Output format: document|relational")
	cmd.Flags().BoolVar(&flagEncrypt, "encrypt", false, "Encrypt the output (password from VITALEXPORT_PASSWORD)")
	cmd.Flags().StringVar(&flagDest, "dest", "", "Destination directory for scheduled exports")

	return cmd
}

func newAutoDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Disable the recurring export",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadOrDefaultConfig(ctx)
			if err != nil {
				return err
			}
			cfg.AutoExport.Enabled = false
			if err := engine.configStore.Save(ctx, cfg); err != nil {
				return fmt.Errorf("save configuration: %w", err)
			}

			fmt.Fprintln(os.Stderr, "Auto export disabled")
			return nil
		},
	}
}

func newAutoStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the auto export schedule and reconciliation state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadOrDefaultConfig(ctx)
			if err != nil {
				return err
			}

			auto := cfg.AutoExport
			if !auto.Enabled {
				fmt.Println("Auto export: disabled")
				return nil
			}

			now := time.Now()
			schedule := auto.Schedule()
			fmt.Printf("Auto export: %s at %02d:%02d (%s, %s)\n",
				auto.Frequency, auto.Hour, auto.Minute, auto.DataRange, auto.Format)
			fmt.Printf("Next due:    %s\n", schedule.NextDue(now).Format(time.RFC3339))

			state, err := engine.stateStore.Load(ctx)
			if errors.Is(err, domain.ErrNotFound) {
				fmt.Println("Last export: never (overdue)")
				return nil
			}
			if err != nil {
				return fmt.Errorf("load sync state: %w", err)
			}

			if state.LastExportAt != nil {
				fmt.Printf("Last export: %s\n", state.LastExportAt.Format(time.RFC3339))
			} else {
				fmt.Println("Last export: never")
			}
			if schedule.Overdue(state.LastExportAt, now) {
				fmt.Println("Status:      overdue, will run on next trigger")
			} else {
				fmt.Println("Status:      up to date")
			}
			return nil
		},
	}
}

// newAutoRunCmd runs the reconciler in the foreground: it performs the
// catch-up check immediately, then keeps the wakeup scheduler running until
// interrupted.
func newAutoRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the auto export reconciler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if err := engine.wakeups.Start(ctx); err != nil {
				return err
			}
			defer engine.wakeups.Stop()

			if err := engine.coordinator.HandleForeground(ctx); err != nil {
				engine.logger.Error("catch-up export failed", "error", err)
			}

			fmt.Fprintln(os.Stderr, "Reconciler running, press Ctrl-C to stop")
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "Stopping...")
			return nil
		},
	}
}

func loadOrDefaultConfig(ctx context.Context) (*domain.ExportConfiguration, error) {
	cfg, err := engine.configStore.Load(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.DefaultConfiguration(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}
