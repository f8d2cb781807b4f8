package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tapwire/internal/decode"
	"github.com/ppiankov/tapwire/internal/logging"
	"github.com/ppiankov/tapwire/internal/model"
	"github.com/ppiankov/tapwire/internal/provider"
)

var (
	decodeProvider        string
	decodeContentType     string
	decodeContentEncoding string
	decodeRequest         string
	decodeNoScrub         bool
)

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().StringVar(&decodeProvider, "provider", "", "Provider key (see 'tapwire providers')")
	decodeCmd.Flags().StringVar(&decodeContentType, "content-type", "application/json", "Response content type")
	decodeCmd.Flags().StringVar(&decodeContentEncoding, "content-encoding", "", "Response content encoding (gzip|deflate|zstd)")
	decodeCmd.Flags().StringVar(&decodeRequest, "request", "", "File holding the captured request body")
	decodeCmd.Flags().BoolVar(&decodeNoScrub, "no-scrub", false, "Print decoded attributes before scrubbing")
}

var decodeCmd = &cobra.Command{
	Use:   "decode [response-file]",
	Short: "Decode a captured response body the way the pipeline would",
	Long: "Runs the decode stage and the configured scrubber on a captured body\n" +
		"(file or stdin) and prints the attributes that would be exported.",
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

func runDecode(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	body, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	s := model.NewSpan(model.Namespace+".decode", time.Now())
	s.Attributes[model.KeyProvider] = decodeProvider
	s.Attributes[model.KeyContentType] = decodeContentType
	s.Attributes[model.KeyResponseBinary] = body
	if decodeContentEncoding != "" {
		s.Attributes[model.KeyContentEncoding] = decodeContentEncoding
	}
	if decodeRequest != "" {
		req, err := os.ReadFile(decodeRequest)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", decodeRequest, err)
		}
		s.Attributes[model.KeyRequestBinary] = req
	}

	decode.NewStage(provider.NewRegistry(), logging.WithComponent("decode")).Decode(s)

	attrs := s.Attributes
	if !decodeNoScrub {
		scrubber, err := cfg.Scrubber()
		if err != nil {
			return fmt.Errorf("invalid scrub config: %w", err)
		}
		attrs = scrubber.Scrub(attrs)
	}
	return printJSON(cmd, attrs)
}
