package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/config"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/document"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/pipeline"
	"github.com/GabrielNunesIT/go-libs/logger"
)

// NewValidateCmd creates the validate command.
func NewValidateCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			log := logger.NewConsoleLogger(io.Discard)

			p, err := pipeline.New(cfg, log)
			if err != nil {
				return fmt.Errorf("pipeline configuration error: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration valid:\n")
			fmt.Fprintf(out, "  Ingestors: %d enabled\n", p.IngestorCount())
			fmt.Fprintf(out, "  Emitters:  %d enabled\n", p.EmitterCount())
			fmt.Fprintf(out, "  Index prefix: %s\n", document.NewRouter(cfg.Document.IndexPrefix).Prefix())
			return nil
		},
	}
}
