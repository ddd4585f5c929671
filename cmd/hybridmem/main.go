package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sipeed/hybridmem/pkg/config"
	"github.com/sipeed/hybridmem/pkg/logger"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonLogs   bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "hybridmem",
	Short: "Knowledge graph and working memory for retrieval pipelines",
	Long: `hybridmem keeps a persistent relationship graph of schematic records
alongside a session-scoped, token-budgeted scratchpad, and serves both to
language model clients over MCP.

Run "hybridmem serve" to start the MCP server, or "hybridmem shell" for an
interactive session.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		if err := logger.Init(level, jsonLogs || cfg.Logging.JSON); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".hybridmem", "config.json")
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "config file (JSON or YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit logs as JSON")

	rootCmd.AddCommand(
		initCmd,
		indexCmd,
		statsCmd,
		entityCmd,
		neighborsCmd,
		pathCmd,
		searchCmd,
		exportCmd,
		serveCmd,
		shellCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
