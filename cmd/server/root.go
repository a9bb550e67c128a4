package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Dawstr8/polish-peaks/internal/config"
	"github.com/Dawstr8/polish-peaks/internal/observability"
)

const serviceName = "polish-peaks-web"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "polish-peaks",
		Short: "Web front-end for the Polish Peaks summit photo API",
		Long: `Polish Peaks serves the summit photo web site: sign in, the upload
wizard and the gallery. Photos, peaks and accounts live in the Polish
Peaks API; this process keeps browser sessions and wizard drafts.

Configuration is read from config.json (or CONFIG_PATH), then from the
environment. A .env file in the working directory is loaded first.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMetadataCmd())
	cmd.AddCommand(newPeaksCmd())

	return cmd
}

// loadConfig reads the configuration and installs the process logger
func loadConfig() (*config.Config, *observability.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger := observability.NewLoggerFromOptions(observability.LogOptions{
		ServiceName: serviceName,
		Level:       observability.ParseLevel(cfg.Logging.Level),
		FilePath:    cfg.Logging.FilePath,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
		Compress:    cfg.Logging.Compress,
	})
	observability.SetDefault(logger)
	return cfg, logger, nil
}
