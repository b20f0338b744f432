package cli

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Execute builds and runs the CLI.
func Execute() error {
	var (
		cfgFile  string
		logLevel string
		envFile  string
	)

	rootCmd := &cobra.Command{
		Use:   "cwlogs-connector",
		Short: "Decode CloudWatch Logs subscription batches and index them",
		Long: `cwlogs-connector receives CloudWatch Logs subscription payloads (gzip
compressed JSON batches) from stdin, a spool directory, Kafka or Kinesis,
decodes every log event and delivers it to the configured sinks
(stdout, file, elasticsearch, s3, loki, victorialogs).

Indexing sinks receive documents routed to a daily index with the log group
as category. Archival sinks receive the event exactly as decoded.

Hot-reload: When a config file is used, changes are applied without a restart.
SIGHUP forces a reload.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile == "" {
				return nil
			}
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("loading env file %s: %w", envFile, err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error); overrides log_level from config")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded into the environment before the config")

	rootCmd.AddCommand(
		NewRunCmd(&cfgFile, &logLevel),
		NewValidateCmd(&cfgFile),
		NewDecodeCmd(&logLevel),
		NewVersionCmd(),
	)

	return rootCmd.Execute()
}
