package emitter

import (
	"context"
	"io"
	"sync"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/config"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/document"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/model"
	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/natefinch/lumberjack"
)

// WriterFactory creates a new WriteCloser.
type WriterFactory func(cfg config.FileEmitterConfig) (io.WriteCloser, error)

// FileOption configures the FileEmitter.
type FileOption func(*FileEmitter)

// WithWriterFactory sets a custom factory for creating the writer.
func WithWriterFactory(f WriterFactory) FileOption {
	return func(e *FileEmitter) {
		e.factory = f
	}
}

// FileEmitter archives events as JSON lines in rotating local files.
type FileEmitter struct {
	cfg     config.FileEmitterConfig
	factory WriterFactory
	writer  io.WriteCloser
	logger  logger.ILogger
	mu      sync.Mutex
}

// NewFileEmitter creates a new file emitter.
func NewFileEmitter(cfg config.FileEmitterConfig, log logger.ILogger, opts ...FileOption) *FileEmitter {
	e := &FileEmitter{
		cfg:    cfg,
		logger: log.SubLogger("FileEmitter"),
	}

	// Default factory creates lumberjack logger
	e.factory = func(cfg config.FileEmitterConfig) (io.WriteCloser, error) {
		return &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}, nil
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Name returns the emitter identifier.
func (f *FileEmitter) Name() string {
	return "file"
}

// Start initializes the rotating file writer.
func (f *FileEmitter) Start(ctx context.Context) error {
	w, err := f.factory(f.cfg)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.writer = w
	f.mu.Unlock()

	f.logger.Infof("archiving to file: path=%s, max_size_mb=%d", f.cfg.Path, f.cfg.MaxSizeMB)
	return nil
}

// Stop closes the file writer.
func (f *FileEmitter) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writer == nil {
		return nil
	}
	err := f.writer.Close()
	f.writer = nil
	return err
}

// Emit appends the archival record of an event to the file.
func (f *FileEmitter) Emit(ctx context.Context, event *model.LogEvent) error {
	line, err := document.Archival(event)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writer == nil {
		return ErrNotStarted
	}

	_, err = f.writer.Write(append(line, '\n'))
	return err
}
