package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tapwire/internal/config"
	"github.com/ppiankov/tapwire/internal/logging"
	"github.com/ppiankov/tapwire/internal/relay"
)

var (
	relayAddr     string
	relayUpstream string
	relayProvider string
	relayTags     map[string]string
	relayDump     string
	relayNoExport bool
	relayWatch    bool
)

func init() {
	rootCmd.AddCommand(relayCmd)
	relayCmd.Flags().StringVar(&relayAddr, "addr", ":8787", "Address to listen on")
	relayCmd.Flags().StringVar(&relayUpstream, "upstream", "https://api.openai.com", "Upstream provider API URL")
	relayCmd.Flags().StringVar(&relayProvider, "provider", "", "Provider key (default: inferred from the upstream host)")
	relayCmd.Flags().StringToStringVar(&relayTags, "tag", nil, "Tag attached to every captured span (key=value, repeatable)")
	relayCmd.Flags().StringVar(&relayDump, "dump", "", "Also append exported batches to this JSONL file")
	relayCmd.Flags().BoolVar(&relayNoExport, "no-export", false, "Do not send spans to the collector (requires --dump)")
	relayCmd.Flags().BoolVar(&relayWatch, "watch", true, "Reload scrub patterns when the config file changes")
}

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Start a reverse proxy that captures provider API traffic",
	Long: "Reverse proxy between an application and a provider API. Every call is\n" +
		"decoded, scrubbed and exported as a span.\n" +
		"Usage: OPENAI_BASE_URL=http://localhost:8787/v1 python app.py",
	RunE: runRelay,
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := newStack(cfg, relayDump, relayNoExport)
	if err != nil {
		return err
	}

	srv, err := relay.NewServer(relay.Config{
		Addr:     relayAddr,
		Upstream: relayUpstream,
		Provider: relayProvider,
		Tags:     relayTags,
	}, st.recorder, logging.WithComponent("relay"))
	if err != nil {
		return fmt.Errorf("failed to create relay: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if relayWatch {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		if _, statErr := os.Stat(path); statErr == nil {
			w, err := config.NewWatcher(path, st.reload, logging.WithComponent("config"))
			if err != nil {
				return err
			}
			go func() { _ = w.Run(ctx) }()
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "tapwire relay listening on %s\n", relayAddr)
	fmt.Fprintf(out, "Upstream: %s (provider %s)\n", relayUpstream, srv.Provider())
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	err = srv.Start(ctx)

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Batch().ExportTimeout+5*time.Second)
	defer stop()
	stats, closeErr := st.close(shutdownCtx)

	fmt.Fprintf(out, "\nSpans: %d queued, %d exported, %d dropped, %d failed batches\n",
		stats.Enqueued, stats.Exported, stats.Dropped, stats.FailedBatches)
	if err != nil {
		return err
	}
	return closeErr
}
