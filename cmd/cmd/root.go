// Package cmd implements the citations binary's cobra commands: run,
// status, serve, and migrate (SPEC_FULL.md §5's operational surface).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"briefly/internal/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "citations",
	Short: "Wikipedia citation discovery engine",
	Long: `citations drives the Wikipedia Citation Discovery Engine: it walks
monitored Wikipedia pages, verifies and scores their external citations
against a patch's topic, and feeds approved content onward to the
agent-memory and hero-enrichment collaborators.`,
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	logger.Init()
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./discovery.yaml)")
}
