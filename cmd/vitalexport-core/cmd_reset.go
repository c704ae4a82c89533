package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	var flagYes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear sync state, cursors, and history",
		Long: `Clear all incremental-export bookkeeping: cursors, timestamps, and the
export history. The next export fetches everything from scratch. Previously
written export files are not touched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !flagYes {
				return fmt.Errorf("refusing to clear sync state without --yes")
			}
			if err := engine.stateStore.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "Sync state cleared; the next export will be a full export")
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagYes, "yes", false, "Confirm clearing the sync state")

	return cmd
}
