package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"briefly/internal/logger"
	"briefly/internal/scan"
)

var (
	runPatchID     string
	runPatchTitle  string
	runPatchAlias  []string
	runPatchTags   []string
	runPollSeconds int
)

var runCmd = &cobra.Command{
	Use:   "run <patch-handle>",
	Short: "Scan monitored pages and process citations for a patch until the run finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRun(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runPatchID, "patch-id", "", "patch id (required until an external patch service is wired in)")
	runCmd.Flags().StringVar(&runPatchTitle, "patch-title", "", "patch title, used as the relevance scorer's topic")
	runCmd.Flags().StringSliceVar(&runPatchAlias, "patch-alias", nil, "additional names the patch's topic is known by")
	runCmd.Flags().StringSliceVar(&runPatchTags, "patch-tag", nil, "topic tags for the patch")
	runCmd.Flags().IntVar(&runPollSeconds, "poll-seconds", 5, "how often to poll run status while waiting for completion")
}

func runRun(ctx context.Context, handle string) error {
	if runPatchID == "" {
		return fmt.Errorf("--patch-id is required")
	}

	application, cleanup, err := buildApp(patchFlags{id: runPatchID, handle: handle, title: runPatchTitle, aliases: runPatchAlias, tags: runPatchTags})
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		return err
	}

	log := logger.Get()
	log.Info("sweeping monitored pages for pending citation extraction", "patch_handle", handle)
	if err := scan.Sweep(ctx, runPatchID, application.monitor, application.fetcher, application.store); err != nil {
		return fmt.Errorf("page scan sweep: %w", err)
	}

	runID, err := application.coord.StartRun(ctx, runPatchID)
	if err != nil {
		return fmt.Errorf("start discovery run: %w", err)
	}
	log.Info("discovery run started", "run_id", runID)

	ticker := time.NewTicker(time.Duration(runPollSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			run, err := application.coord.Status(ctx, runID)
			if err != nil {
				return fmt.Errorf("get run status: %w", err)
			}
			if run == nil {
				return fmt.Errorf("run %q disappeared", runID)
			}
			log.Info("run progress", "run_id", runID, "status", run.Status, "processed", run.ProcessedCount, "saved", run.SavedCount, "denied", run.DeniedCount, "failed", run.FailedCount)
			if run.Status != "running" {
				fmt.Printf("run %s finished: status=%s processed=%d saved=%d denied=%d failed=%d\n",
					run.ID, run.Status, run.ProcessedCount, run.SavedCount, run.DeniedCount, run.FailedCount)
				return nil
			}
		}
	}
}
