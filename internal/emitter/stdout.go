package emitter

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/config"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/document"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/model"
	"github.com/GabrielNunesIT/go-libs/logger"
)

// StdoutEmitter writes events to standard output, either as console lines
// ("text") or as archival records ("json").
type StdoutEmitter struct {
	cfg    config.StdoutEmitterConfig
	writer io.Writer
	mu     sync.Mutex
	logger logger.ILogger
}

// NewStdoutEmitter creates a new stdout emitter.
func NewStdoutEmitter(cfg config.StdoutEmitterConfig, log logger.ILogger) *StdoutEmitter {
	return NewStdoutEmitterWithWriter(cfg, os.Stdout, log)
}

// NewStdoutEmitterWithWriter creates a stdout emitter with a custom writer (for testing).
func NewStdoutEmitterWithWriter(cfg config.StdoutEmitterConfig, w io.Writer, log logger.ILogger) *StdoutEmitter {
	return &StdoutEmitter{
		cfg:    cfg,
		writer: w,
		logger: log.SubLogger("StdoutEmitter"),
	}
}

// Name returns the emitter identifier.
func (s *StdoutEmitter) Name() string {
	return "stdout"
}

// Start initializes the emitter (no-op for stdout).
func (s *StdoutEmitter) Start(ctx context.Context) error {
	s.logger.Debugf("stdout emitter started: format=%s", s.cfg.Format)
	return nil
}

// Stop gracefully shuts down the emitter (no-op for stdout).
func (s *StdoutEmitter) Stop(ctx context.Context) error {
	s.logger.Debug("stdout emitter stopped")
	return nil
}

// Emit writes one line for the event.
func (s *StdoutEmitter) Emit(ctx context.Context, event *model.LogEvent) error {
	var output []byte
	if s.cfg.Format == "json" {
		line, err := document.Archival(event)
		if err != nil {
			return err
		}
		output = line
	} else {
		output = []byte(document.Console(event))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.writer.Write(append(output, '\n'))
	return err
}
