package emitter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/config"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/document"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/model"
	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// ErrBufferFull is returned when failed uploads have filled the archive buffer.
var ErrBufferFull = errors.New("archive buffer full")

// ObjectPutter is the slice of the S3 client the archival emitter uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Option configures an S3Emitter.
type S3Option func(*S3Emitter)

// WithObjectPutter replaces the S3 client (for testing).
func WithObjectPutter(p ObjectPutter) S3Option {
	return func(e *S3Emitter) {
		e.client = p
	}
}

// S3Emitter archives events as JSON lines, one compressed object per flush,
// under hourly key prefixes.
type S3Emitter struct {
	cfg    config.S3EmitterConfig
	client ObjectPutter
	logger logger.ILogger
	now    func() time.Time

	mu      sync.Mutex
	buf     bytes.Buffer
	count   int
	stopped bool
	done    chan struct{}
}

// NewS3Emitter creates a new S3 emitter.
func NewS3Emitter(cfg config.S3EmitterConfig, log logger.ILogger, opts ...S3Option) *S3Emitter {
	if cfg.Compression == "" {
		cfg.Compression = "gzip"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Minute
	}
	if cfg.MaxBufferedEvents < cfg.BatchSize {
		cfg.MaxBufferedEvents = cfg.BatchSize
	}

	e := &S3Emitter{
		cfg:    cfg,
		logger: log.SubLogger("S3Emitter"),
		now:    time.Now,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the emitter identifier.
func (e *S3Emitter) Name() string {
	return "s3"
}

// Start creates the S3 client unless one was injected and begins the flush loop.
func (e *S3Emitter) Start(ctx context.Context) error {
	if e.client == nil {
		client, err := e.newClient(ctx)
		if err != nil {
			return err
		}
		e.client = client
	}

	e.logger.Infof("archiving to s3: bucket=%s, prefix=%s, compression=%s", e.cfg.Bucket, e.cfg.Prefix, e.cfg.Compression)
	go e.flushLoop(ctx)
	return nil
}

func (e *S3Emitter) newClient(ctx context.Context) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if e.cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(e.cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if e.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(e.cfg.Endpoint)
		}
		o.UsePathStyle = e.cfg.UsePathStyle
	}), nil
}

// Stop uploads whatever is still buffered. Later calls to Emit return
// ErrNotStarted, so nothing is buffered after the final upload.
func (e *S3Emitter) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return nil
	}
	e.stopped = true
	close(e.done)
	e.logger.Debug("flushing remaining events")
	return e.flushLocked(ctx)
}

func (e *S3Emitter) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
			if err := e.flush(ctx); err != nil {
				e.logger.Warningf("periodic flush failed, keeping buffer: error=%v", err)
			}
		}
	}
}

// Emit buffers the archival record of an event. A failed upload keeps the
// buffer for the next attempt, so the error is logged rather than returned.
func (e *S3Emitter) Emit(ctx context.Context, event *model.LogEvent) error {
	line, err := document.Archival(event)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return ErrNotStarted
	}
	if e.count >= e.cfg.MaxBufferedEvents {
		return fmt.Errorf("%w: %d events pending", ErrBufferFull, e.count)
	}

	e.buf.Write(line)
	e.buf.WriteByte('\n')
	e.count++

	if e.count >= e.cfg.BatchSize {
		if err := e.flushLocked(ctx); err != nil {
			e.logger.Warningf("flush failed, keeping buffer: events=%d, error=%v", e.count, err)
		}
	}
	return nil
}

// Pending returns the number of buffered events.
func (e *S3Emitter) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

func (e *S3Emitter) flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushLocked(ctx)
}

// flushLocked uploads the buffer (caller must hold lock).
func (e *S3Emitter) flushLocked(ctx context.Context) error {
	if e.count == 0 {
		return nil
	}

	body, err := e.compress(e.buf.Bytes())
	if err != nil {
		return fmt.Errorf("compressing archive: %w", err)
	}

	key := e.objectKey(e.now())
	input := &s3.PutObjectInput{
		Bucket:      aws.String(e.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	}
	if e.cfg.Compression == "gzip" {
		input.ContentEncoding = aws.String("gzip")
	}

	if _, err := e.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("putting s3://%s/%s: %w", e.cfg.Bucket, key, err)
	}

	e.logger.Debugf("archive uploaded: key=%s, events=%d, bytes=%d", key, e.count, len(body))
	e.buf.Reset()
	e.count = 0
	return nil
}

func (e *S3Emitter) compress(data []byte) ([]byte, error) {
	switch e.cfg.Compression {
	case "none":
		return bytes.Clone(data), nil
	case "snappy":
		return snappy.Encode(nil, data), nil
	default:
		var out bytes.Buffer
		zw := gzip.NewWriter(&out)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	}
}

// objectKey returns prefix/yyyy/MM/dd/HH/<uuid>.jsonl plus the codec extension.
func (e *S3Emitter) objectKey(t time.Time) string {
	name := uuid.NewString() + ".jsonl"
	switch e.cfg.Compression {
	case "gzip":
		name += ".gz"
	case "snappy":
		name += ".sz"
	}

	parts := []string{t.UTC().Format("2006/01/02/15"), name}
	if prefix := strings.Trim(e.cfg.Prefix, "/"); prefix != "" {
		parts = append([]string{prefix}, parts...)
	}
	return path.Join(parts...)
}
