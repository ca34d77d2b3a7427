package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Print a discovery run's current metrics as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(ctx context.Context, runID string) error {
	application, cleanup, err := buildApp(patchFlags{})
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		return err
	}

	run, err := application.coord.Status(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run status: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %q not found", runID)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}
