package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tapwire/internal/provider"
)

const version = "0.4.0"

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(providersCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := map[string]string{
			"version": version,
			"name":    "tapwire",
		}
		out, _ := json.MarshalIndent(info, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	},
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the provider keys the decode stage understands",
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range provider.NewRegistry().Keys() {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
	},
}
