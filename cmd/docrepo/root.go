package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jacentio/docrepo/internal/backend"
	"github.com/jacentio/docrepo/internal/config"
	"github.com/jacentio/docrepo/store"
)

var (
	verbose     bool
	configPath  string
	backendName string
	database    string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "docrepo",
	Short: "Unit-of-work repositories over document databases",
	Long: `docrepo tracks documents loaded from a document database, writes back
only the ones that changed, and streams changes to subscribers.

Backends: memory, dynamodb, mongodb, sqlite.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		var err error
		var path string
		if configPath != "" {
			cfg, path, err = config.LoadFromPath(configPath)
		} else {
			cfg, path, err = config.Load()
		}
		if err != nil {
			return err
		}
		if path != "" {
			slog.Debug("loaded config", "path", path)
		}

		if cmd.Flags().Changed("backend") {
			cfg.Backend = config.Backend(backendName)
		}
		if cmd.Flags().Changed("database") {
			cfg.Database = database
		}
		return cfg.Validate()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openClient opens the configured backend.
func openClient(ctx context.Context) (store.Client, error) {
	return backend.Open(ctx, cfg, slog.Default())
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $"+config.EnvConfigPath+" or ./"+config.ConfigFileName+")")
	rootCmd.PersistentFlags().StringVarP(&backendName, "backend", "b", "", "Backend override: memory, dynamodb, mongodb or sqlite")
	rootCmd.PersistentFlags().StringVarP(&database, "database", "d", "", "Database override")
}
