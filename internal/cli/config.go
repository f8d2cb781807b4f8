package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configCheckCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect tapwire configuration",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load and validate the configuration",
	Long: "Loads the config file, applies environment overrides and validates the result.\n" +
		"Exit code 0 if valid, 1 otherwise.",
	Args: cobra.NoArgs,
	RunE: runConfigCheck,
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "endpoint:       %s\n", cfg.Endpoint)
	fmt.Fprintf(out, "api key:        %s\n", maskKey(cfg.APIKey))
	fmt.Fprintf(out, "queue:          %d spans, batches of %d\n", cfg.Process.MaxQueueSize, cfg.Process.MaxExportBatchSize)
	fmt.Fprintf(out, "schedule delay: %s\n", cfg.Batch().ScheduleDelay)
	fmt.Fprintf(out, "export timeout: %s\n", cfg.Batch().ExportTimeout)
	fmt.Fprintf(out, "scrub mode:     %s (%d extra patterns)\n", scrubMode(string(cfg.Scrub.Mode)), len(cfg.Scrub.ExtraPatterns))
	fmt.Fprintln(out, "OK")
	return nil
}

func maskKey(k string) string {
	if len(k) <= 4 {
		return strings.Repeat("*", len(k))
	}
	return strings.Repeat("*", len(k)-4) + k[len(k)-4:]
}

func scrubMode(m string) string {
	if m == "" {
		return "default"
	}
	return m
}
