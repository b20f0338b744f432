package cli

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/spf13/cobra"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/document"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/model"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/subscription"
)

// indexLine is how the decode command prints an indexing document.
type indexLine struct {
	Index    string          `json:"index"`
	Category string          `json:"category"`
	ID       string          `json:"id"`
	Source   json.RawMessage `json:"source"`
}

type decodeOptions struct {
	format        string
	indexPrefix   string
	jsonFieldMode string
	base64        bool
	maxBytes      int64
}

// NewDecodeCmd creates the decode command.
func NewDecodeCmd(logLevel *string) *cobra.Command {
	var opts decodeOptions

	cmd := &cobra.Command{
		Use:   "decode [file...]",
		Short: "Decode subscription payloads offline and print the resulting documents",
		Long: `decode reads compressed subscription payloads from the given files, or a
single payload from stdin when no file (or "-") is given, and prints one line
per log event. Skipped batches are reported on stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := SetupLogging(cmd.ErrOrStderr(), effectiveLevel(*logLevel, "warn"))
			return runDecode(cmd, args, opts, log)
		},
	}

	cmd.Flags().StringVar(&opts.format, "format", "index", "output format (index, archival, console)")
	cmd.Flags().StringVar(&opts.indexPrefix, "index-prefix", document.DefaultIndexPrefix, "prefix of the daily index name")
	cmd.Flags().StringVar(&opts.jsonFieldMode, "json-field-mode", string(document.JSONFieldReplace), "how JSON-valued fields are stored (replace, both)")
	cmd.Flags().BoolVar(&opts.base64, "base64", false, "inputs are base64 text rather than raw bytes")
	cmd.Flags().Int64Var(&opts.maxBytes, "max-decompressed-bytes", subscription.DefaultMaxDecompressedBytes, "inflated size limit per payload")

	return cmd
}

func runDecode(cmd *cobra.Command, args []string, opts decodeOptions, log logger.ILogger) error {
	render, err := newRenderer(opts)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		args = []string{"-"}
	}

	decoder := subscription.NewDecoder(subscription.WithMaxDecompressedBytes(opts.maxBytes))
	out := cmd.OutOrStdout()

	for _, name := range args {
		data, err := readPayload(cmd.InOrStdin(), name, opts.base64)
		if err != nil {
			return err
		}

		result := decoder.Decode(data)
		if result.Skipped() {
			log.Warningf("payload skipped: input=%s, reason=%s, message_type=%s, err=%v",
				name, result.Reason, result.MessageType, result.Err)
			continue
		}
		log.Debugf("payload decoded: input=%s, events=%d, filters=%v",
			name, len(result.Events), result.SubscriptionFilters)

		for i := range result.Events {
			line, err := render(&result.Events[i])
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(out, line); err != nil {
				return err
			}
		}
	}
	return nil
}

func newRenderer(opts decodeOptions) (func(*model.LogEvent) (string, error), error) {
	switch opts.format {
	case "index":
		mode, err := document.ParseJSONFieldMode(opts.jsonFieldMode)
		if err != nil {
			return nil, err
		}
		builder := document.NewBuilder(
			document.WithRouter(document.NewRouter(opts.indexPrefix)),
			document.WithJSONFieldMode(mode),
		)
		return func(event *model.LogEvent) (string, error) {
			doc, err := builder.Build(event)
			if err != nil {
				return "", err
			}
			line, err := json.Marshal(indexLine{
				Index:    doc.Index,
				Category: doc.Category,
				ID:       doc.ID,
				Source:   doc.Source,
			})
			if err != nil {
				return "", fmt.Errorf("%w: %v", document.ErrSerialization, err)
			}
			return string(line), nil
		}, nil
	case "archival":
		return func(event *model.LogEvent) (string, error) {
			line, err := document.Archival(event)
			return string(line), err
		}, nil
	case "console":
		return func(event *model.LogEvent) (string, error) {
			return document.Console(event), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown format %q", opts.format)
	}
}

func readPayload(stdin io.Reader, name string, isBase64 bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	if !isBase64 {
		return data, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(data)))
	if err != nil {
		return nil, fmt.Errorf("decoding base64 from %s: %w", name, err)
	}
	return decoded, nil
}
