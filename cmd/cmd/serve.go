package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"briefly/internal/logger"
	"briefly/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server exposing the run-control API",
	Long: `Start the discovery engine's HTTP server.

Exposes:
  POST /runs/{patchHandle}   start (or return the active) run for a patch
  GET  /runs/{runId}         run metrics
  GET  /healthz              liveness and DB connectivity

Patches must be registered via --patch-id/--patch-handle flags on this
command until an external patch service is wired in.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP server port (default from config)")
	serveCmd.Flags().StringVar(&runPatchID, "patch-id", "", "patch id to register for this server instance")
	serveCmd.Flags().StringVar(&runPatchHandle, "patch-handle", "", "patch handle to register for this server instance")
	serveCmd.Flags().StringVar(&runPatchTitle, "patch-title", "", "patch title, used as the relevance scorer's topic")
	serveCmd.Flags().StringSliceVar(&runPatchAlias, "patch-alias", nil, "additional names the patch's topic is known by")
	serveCmd.Flags().StringSliceVar(&runPatchTags, "patch-tag", nil, "topic tags for the patch")
}

var runPatchHandle string

func runServe(ctx context.Context) error {
	log := logger.Get()

	application, cleanup, err := buildApp(patchFlags{id: runPatchID, handle: runPatchHandle, title: runPatchTitle, aliases: runPatchAlias, tags: runPatchTags})
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		return err
	}

	serverCfg := application.cfg.Server
	if servePort != 0 {
		serverCfg.Port = servePort
	}

	srv := server.New(application.coord, application.patches, application.db, serverCfg)

	serverErrors := make(chan error, 1)
	go func() {
		log.Info(fmt.Sprintf("server listening on http://%s:%d", serverCfg.Host, serverCfg.Port))
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info("shutting down server", "signal", sig.String())
		return srv.Shutdown(ctx)
	}
}
