package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tapwire/internal/config"
	"github.com/ppiankov/tapwire/internal/logging"
)

var (
	configPath string
	logLevel   string
	logDebug   bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default: ~/.tapwire/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&logDebug, "debug", false, "Enable debug logging")
}

var rootCmd = &cobra.Command{
	Use:   "tapwire",
	Short: "Capture AI provider traffic as usage telemetry",
	Long: "Observes outbound calls to AI and data-service providers, decodes and scrubs\n" +
		"the payloads, and ships the usage metadata to a collector in batches.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Init(logging.Config{Level: logLevel, Debug: logDebug})
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads --config. Logging settings from the file apply unless
// set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath, logging.WithComponent("config"))
	if err != nil {
		return nil, err
	}
	if !cmd.Flags().Changed("log-level") && !cmd.Flags().Changed("debug") && cfg.Logging != (logging.Config{}) {
		if err := logging.Init(cfg.Logging); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
