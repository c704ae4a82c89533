package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openvitals/vitalexport-core/internal/adapters/driven/seal"
)

func newOpenCmd() *cobra.Command {
	var (
		flagPassword string
		flagOutput   string
	)

	cmd := &cobra.Command{
		Use:   "open <file>",
		Short: "Decrypt an encrypted export file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := flagPassword
			if password == "" {
				password = os.Getenv("VITALEXPORT_PASSWORD")
			}
			if password == "" {
				return fmt.Errorf("no password given (use --password or VITALEXPORT_PASSWORD)")
			}

			blob, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			data, err := seal.Open(blob, password)
			if err != nil {
				return err
			}

			if flagOutput == "" || flagOutput == "-" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(flagOutput, data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", flagOutput, err)
			}
			fmt.Fprintf(os.Stderr, "Decrypted %d bytes to %s\n", len(data), flagOutput)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagPassword, "password", "", "Decryption password (env: VITALEXPORT_PASSWORD)")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output path (default: stdout)")

	return cmd
}
