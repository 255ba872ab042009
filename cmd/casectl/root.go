// casectl seeds, backfills, exports and queries the visit corpus.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/docassist/docassist/internal/app"
	"github.com/docassist/docassist/internal/config"
	"github.com/docassist/docassist/internal/logger"
	"github.com/spf13/cobra"
)

var (
	configPath string
	globalApp  *app.App
	stopSignal context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:           "casectl",
	Short:         "Maintain the clinical case corpus",
	Long:          "Seed visits, backfill missing embeddings, export the corpus and run similarity queries.",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}

		appLogger := logger.New(&logger.Config{
			Level:       envOr("LOG_LEVEL", "info"),
			Format:      envOr("LOG_FORMAT", "text"),
			Output:      os.Stderr,
			ServiceName: "casectl",
		})
		logger.SetDefaultLogger(appLogger)

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		stopSignal = stop
		cmd.SetContext(ctx)

		a, err := app.New(ctx, cfg, appLogger)
		if err != nil {
			return err
		}
		globalApp = a
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if stopSignal != nil {
			stopSignal()
		}
		if globalApp != nil {
			err := globalApp.Close()
			globalApp = nil
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "Path to config file")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
