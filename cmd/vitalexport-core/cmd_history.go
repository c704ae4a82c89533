package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/openvitals/vitalexport-core/internal/core/domain"
)

func newHistoryCmd() *cobra.Command {
	var (
		flagJSON  bool
		flagLimit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the export history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			state, err := engine.stateStore.Load(ctx)
			if errors.Is(err, domain.ErrNotFound) {
				fmt.Fprintln(os.Stderr, "No exports yet")
				return nil
			}
			if err != nil {
				return fmt.Errorf("load sync state: %w", err)
			}

			history := state.History
			if flagLimit > 0 && len(history) > flagLimit {
				history = history[len(history)-flagLimit:]
			}

			if flagJSON {
				out, err := json.MarshalIndent(history, "", "  ")
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(append(out, '\n'))
				return err
			}

			if len(history) == 0 {
				fmt.Fprintln(os.Stderr, "No exports yet")
				return nil
			}

			// Newest first
			for i := len(history) - 1; i >= 0; i-- {
				entry := history[i]
				status := "ok"
				if !entry.Success {
					status = "FAILED"
				}
				mode := "full"
				if entry.Incremental {
					mode = "incremental"
				}
				fmt.Printf("%s  %-6s %-11s %-10s %6d records  %8d bytes  %.1fs",
					entry.Timestamp.Format(time.RFC3339), status, mode, entry.Format,
					entry.RecordCount, entry.OutputBytes, entry.Duration)
				if entry.Error != "" {
					fmt.Printf("  (%s)", entry.Error)
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagJSON, "json", false, "Emit history as JSON")
	cmd.Flags().IntVar(&flagLimit, "limit", 0, "Show at most N most recent entries")

	return cmd
}
