package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/config"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/metrics"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/ops"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/pipeline"
)

const opsShutdownTimeout = 5 * time.Second

// NewRunCmd creates the run command.
func NewRunCmd(cfgFile, logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the connector pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, cfgFile, logLevel)
		},
	}

	// Ingestor flags
	cmd.Flags().Bool("stdin", false, "read subscription payloads from stdin, one per line")
	cmd.Flags().String("dir", "", "spool directory of compressed payload files (enables dir ingestor)")

	// Emitter flags
	cmd.Flags().Bool("stdout", false, "enable stdout emitter")
	cmd.Flags().String("stdout-format", "", "stdout output format (text, json)")

	cmd.Flags().String("ops-address", "", "listen address for /metrics and /healthz")
	cmd.Flags().Bool("hot-reload", true, "enable hot-reload of config file")

	return cmd
}

func runPipeline(cmd *cobra.Command, cfgFile, logLevel *string) error {
	cfg, err := config.Load(*cfgFile)
	if err != nil {
		return err
	}
	applyCLIOverrides(cmd, cfg)

	log := SetupLogging(os.Stderr, effectiveLevel(*logLevel, cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p, err := pipeline.New(cfg, log, pipeline.WithMetrics(metrics.New(reg)))
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	var opsServer *ops.Server
	if cfg.Ops.Address != "" {
		opsServer = ops.NewServer(cfg.Ops.Address, reg, log)
		if err := opsServer.Start(); err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), opsShutdownTimeout)
			defer cancel()
			if err := opsServer.Shutdown(ctx); err != nil {
				log.Warningf("ops server shutdown: %v", err)
			}
		}()
	}

	log.Infof("starting cwlogs-connector: version=%s, ingestors=%d, emitters=%d",
		Version, p.IngestorCount(), p.EmitterCount())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier := ops.NewNotifier(log)
	reload := func(newCfg *config.Config) {
		applyCLIOverrides(cmd, newCfg)
		notifier.Reloading()
		if err := p.Reconfigure(newCfg); err != nil {
			log.Errorf("reconfigure failed: %v", err)
		}
		notifier.Ready()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	path := config.ResolvePath(*cfgFile)
	hotReloadEnabled, _ := cmd.Flags().GetBool("hot-reload")
	if path != "" && hotReloadEnabled {
		startConfigWatcher(ctx, path, reload, log)
	}

	go handleSignals(ctx, cancel, sigChan, *cfgFile, reload, notifier, log)

	if opsServer != nil {
		opsServer.SetReady(true)
	}
	notifier.Ready()

	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("pipeline error: %w", err)
	}

	log.Info("cwlogs-connector stopped")
	return nil
}

func startConfigWatcher(ctx context.Context, path string, reload func(*config.Config), log logger.ILogger) {
	watcher := config.NewConfigWatcher(path, log)
	if err := watcher.Start(ctx); err != nil {
		log.Warningf("failed to start config watcher: %v", err)
		return
	}

	log.Infof("hot-reload enabled: config=%s", path)

	go func() {
		for {
			select {
			case newCfg := <-watcher.Changes():
				reload(newCfg)
			case err := <-watcher.Errors():
				log.Errorf("config watcher error: %v", err)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func handleSignals(ctx context.Context, cancel context.CancelFunc, sigChan <-chan os.Signal, cfgFile string,
	reload func(*config.Config), notifier *ops.Notifier, log logger.ILogger) {
	for {
		select {
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGHUP:
				log.Info("received SIGHUP, reloading config")
				newCfg, err := config.Load(cfgFile)
				if err != nil {
					log.Errorf("failed to reload config: %v", err)
					continue
				}
				if err := newCfg.Validate(); err != nil {
					log.Errorf("reloaded config is invalid: %v", err)
					continue
				}
				reload(newCfg)
			case syscall.SIGINT, syscall.SIGTERM:
				log.Infof("received shutdown signal: %v", sig)
				notifier.Stopping()
				cancel()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetBool("stdin"); v {
		cfg.Ingestors.Stdin.Enabled = true
	}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.Ingestors.Dir.Enabled = true
		cfg.Ingestors.Dir.Path = dir
	}
	if v, _ := cmd.Flags().GetBool("stdout"); v {
		cfg.Emitters.Stdout.Enabled = true
	}
	if format, _ := cmd.Flags().GetString("stdout-format"); format != "" {
		cfg.Emitters.Stdout.Format = format
	}
	if addr, _ := cmd.Flags().GetString("ops-address"); addr != "" {
		cfg.Ops.Address = addr
	}
}
