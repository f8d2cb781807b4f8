package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tapwire/internal/model"
)

func init() {
	rootCmd.AddCommand(scrubCmd)
}

var scrubCmd = &cobra.Command{
	Use:   "scrub [file]",
	Short: "Scrub a JSON document with the configured patterns",
	Long: "Reads a JSON object from a file (or stdin when no file is given), applies\n" +
		"the configured scrubber and prints the result. Useful to check extra_patterns.",
	Args: cobra.MaximumNArgs(1),
	RunE: runScrub,
}

func runScrub(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	scrubber, err := cfg.Scrubber()
	if err != nil {
		return fmt.Errorf("invalid scrub config: %w", err)
	}

	data, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	var attrs model.Attributes
	if err := json.Unmarshal(data, &attrs); err != nil {
		return fmt.Errorf("input is not a JSON object: %w", err)
	}

	return printJSON(cmd, scrubber.Scrub(attrs))
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return data, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
