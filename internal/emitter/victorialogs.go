package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/config"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/document"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/metrics"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/model"
	"github.com/GabrielNunesIT/go-libs/logger"
)

// victoriaStreamFields identify a log stream in VictoriaLogs.
const victoriaStreamFields = "owner,log_group,log_stream"

// VictoriaLogsEmitter writes events to VictoriaLogs as JSON lines. Extracted
// fields are stored at the top level next to the event metadata.
type VictoriaLogsEmitter struct {
	cfg     config.VictoriaLogsEmitterConfig
	builder *document.Builder
	client  HTTPDoer
	metrics *metrics.Metrics
	batch   [][]byte
	mu      sync.Mutex
	stopped bool
	done    chan struct{}
	logger  logger.ILogger
}

// VictoriaLogsOption configures a VictoriaLogsEmitter.
type VictoriaLogsOption func(*VictoriaLogsEmitter)

// WithVictoriaLogsHTTPClient sets a custom HTTP client for testing.
func WithVictoriaLogsHTTPClient(client HTTPDoer) VictoriaLogsOption {
	return func(v *VictoriaLogsEmitter) {
		v.client = client
	}
}

// WithVictoriaLogsMetrics counts events lost to failed inserts.
func WithVictoriaLogsMetrics(m *metrics.Metrics) VictoriaLogsOption {
	return func(v *VictoriaLogsEmitter) {
		v.metrics = m
	}
}

// NewVictoriaLogsEmitter creates a new VictoriaLogs emitter.
func NewVictoriaLogsEmitter(cfg config.VictoriaLogsEmitterConfig, builder *document.Builder, log logger.ILogger, opts ...VictoriaLogsOption) *VictoriaLogsEmitter {
	if builder == nil {
		builder = document.NewBuilder()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	v := &VictoriaLogsEmitter{
		cfg:     cfg,
		builder: builder,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		done:   make(chan struct{}),
		logger: log.SubLogger("VictoriaLogsEmitter"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Name returns the emitter identifier.
func (v *VictoriaLogsEmitter) Name() string {
	return "victorialogs"
}

// Start begins the background flush goroutine.
func (v *VictoriaLogsEmitter) Start(ctx context.Context) error {
	v.logger.Infof("connected to VictoriaLogs: url=%s", v.cfg.URL)
	go v.flushLoop(ctx)
	return nil
}

// Stop flushes remaining entries and shuts down.
// Later calls to Emit return ErrNotStarted.
func (v *VictoriaLogsEmitter) Stop(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.stopped {
		return nil
	}
	v.stopped = true
	close(v.done)
	v.logger.Debug("flushing remaining entries")
	return v.flushLocked(ctx)
}

// flushLoop periodically flushes the buffer.
func (v *VictoriaLogsEmitter) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(v.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-v.done:
			return
		case <-ticker.C:
			if err := v.flush(ctx); err != nil {
				v.logger.Warningf("periodic insert failed: error=%v", err)
			}
		}
	}
}

// line renders one jsonline record. Event metadata is written last so a
// field named like a reserved key cannot replace it.
func (v *VictoriaLogsEmitter) line(event *model.LogEvent) ([]byte, error) {
	doc := make(map[string]any)

	fields, err := v.builder.Fields(event)
	if err != nil {
		return nil, err
	}
	if fields != nil {
		var flat map[string]json.RawMessage
		if err := json.Unmarshal(fields, &flat); err != nil {
			return nil, fmt.Errorf("%w: fields of event %s: %v", document.ErrSerialization, event.ID, err)
		}
		for k, raw := range flat {
			doc[k] = raw
		}
	}

	doc["_time"] = event.Time().Format(time.RFC3339Nano)
	doc["_msg"] = event.Message
	doc["id"] = event.ID
	doc["owner"] = event.Owner
	doc["log_group"] = event.LogGroup
	doc["log_stream"] = event.LogStream

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: event %s: %v", document.ErrSerialization, event.ID, err)
	}
	return data, nil
}

// Emit adds an event to the batch.
func (v *VictoriaLogsEmitter) Emit(ctx context.Context, event *model.LogEvent) error {
	data, err := v.line(event)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.stopped {
		return ErrNotStarted
	}
	v.batch = append(v.batch, data)

	if len(v.batch) >= v.cfg.BatchSize {
		return v.flushLocked(ctx)
	}

	return nil
}

// CountsDeliveries reports that the emitter counts events per inserted batch.
func (v *VictoriaLogsEmitter) CountsDeliveries() bool { return true }

// flush sends the batch to VictoriaLogs.
func (v *VictoriaLogsEmitter) flush(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.flushLocked(ctx)
}

// flushLocked sends the batch (caller must hold lock).
func (v *VictoriaLogsEmitter) flushLocked(ctx context.Context) error {
	if len(v.batch) == 0 {
		return nil
	}

	n := len(v.batch)
	err := v.insert(ctx)
	v.batch = v.batch[:0]
	if err != nil {
		v.metrics.EventFailed(v.Name(), n)
		return fmt.Errorf("%w: victorialogs: %d events: %v", ErrDelivery, n, err)
	}

	v.metrics.EventEmitted(v.Name(), n)
	v.logger.Debugf("pushed %d entries to VictoriaLogs", n)
	return nil
}

func (v *VictoriaLogsEmitter) insert(ctx context.Context) error {
	var buf bytes.Buffer
	for _, line := range v.batch {
		buf.Write(line)
		buf.WriteByte('\n')
	}

	target := v.cfg.URL + "/insert/jsonline?" + url.Values{"_stream_fields": {victoriaStreamFields}}.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &buf)
	if err != nil {
		return err
	}

	httpReq.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("victorialogs push failed with status: %d", resp.StatusCode)
	}
	return nil
}
