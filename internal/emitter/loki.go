package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/config"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/metrics"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/model"
	"github.com/GabrielNunesIT/go-libs/logger"
)

// LokiEmitter pushes events to Grafana Loki, one stream per log stream.
type LokiEmitter struct {
	cfg     config.LokiEmitterConfig
	client  HTTPDoer
	metrics *metrics.Metrics
	logger  logger.ILogger
	mu      sync.Mutex
	batch   []lokiStream
	index   map[streamKey]int
	pending int
	stopped bool
	done    chan struct{}
}

// lokiPushRequest is the Loki push API request format.
type lokiPushRequest struct {
	Streams []lokiStream `json:"streams"`
}

// lokiStream represents a log stream in Loki.
type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// LokiOption configures a LokiEmitter.
type LokiOption func(*LokiEmitter)

// WithLokiHTTPClient sets a custom HTTP client for testing.
func WithLokiHTTPClient(client HTTPDoer) LokiOption {
	return func(l *LokiEmitter) {
		l.client = client
	}
}

// WithLokiMetrics counts events lost to failed pushes.
func WithLokiMetrics(m *metrics.Metrics) LokiOption {
	return func(l *LokiEmitter) {
		l.metrics = m
	}
}

// NewLokiEmitter creates a new Loki emitter.
func NewLokiEmitter(cfg config.LokiEmitterConfig, log logger.ILogger, opts ...LokiOption) *LokiEmitter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	l := &LokiEmitter{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: log.SubLogger("LokiEmitter"),
		index:  make(map[streamKey]int),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the emitter identifier.
func (l *LokiEmitter) Name() string {
	return "loki"
}

// Start begins the background flush goroutine.
func (l *LokiEmitter) Start(ctx context.Context) error {
	l.logger.Infof("pushing to loki: url=%s, tenant=%s", l.cfg.URL, l.cfg.TenantID)
	go l.flushLoop(ctx)
	return nil
}

// Stop flushes remaining entries and shuts down.
// Later calls to Emit return ErrNotStarted.
func (l *LokiEmitter) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return nil
	}
	l.stopped = true
	close(l.done)
	return l.flushLocked(ctx)
}

// flushLoop periodically flushes the buffer.
func (l *LokiEmitter) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case <-ticker.C:
			if err := l.flush(ctx); err != nil {
				l.logger.Warningf("periodic push failed: error=%v", err)
			}
		}
	}
}

// streamKey identifies the Loki stream of an event. Static labels are the
// same for every event, so the source identity alone decides.
type streamKey struct {
	owner, logGroup, logStream string
}

func (l *LokiEmitter) labels(key streamKey) map[string]string {
	labels := make(map[string]string, len(l.cfg.Labels)+3)
	for k, v := range l.cfg.Labels {
		labels[k] = v
	}
	labels["owner"] = key.owner
	labels["log_group"] = key.logGroup
	labels["log_stream"] = key.logStream
	return labels
}

// Emit adds the event's message to its stream and pushes once the batch is full.
func (l *LokiEmitter) Emit(ctx context.Context, event *model.LogEvent) error {
	key := streamKey{owner: event.Owner, logGroup: event.LogGroup, logStream: event.LogStream}
	value := []string{strconv.FormatInt(event.Time().UnixNano(), 10), event.Message}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return ErrNotStarted
	}
	i, ok := l.index[key]
	if !ok {
		i = len(l.batch)
		l.index[key] = i
		l.batch = append(l.batch, lokiStream{Stream: l.labels(key)})
	}
	l.batch[i].Values = append(l.batch[i].Values, value)
	l.pending++

	if l.pending >= l.cfg.BatchSize {
		return l.flushLocked(ctx)
	}
	return nil
}

// CountsDeliveries reports that the emitter counts events per pushed batch.
func (l *LokiEmitter) CountsDeliveries() bool { return true }

// batchSize returns the number of lines waiting to be pushed.
func (l *LokiEmitter) batchSize() int {
	return l.pending
}

// flush sends the batch to Loki.
func (l *LokiEmitter) flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked(ctx)
}

// flushLocked sends the batch (caller must hold lock). The batch is
// discarded whether or not the push succeeds.
func (l *LokiEmitter) flushLocked(ctx context.Context) error {
	if len(l.batch) == 0 {
		return nil
	}

	n := l.pending
	err := l.push(ctx)
	l.batch = nil
	l.pending = 0
	clear(l.index)
	if err != nil {
		l.metrics.EventFailed(l.Name(), n)
		return fmt.Errorf("%w: loki: %d events: %v", ErrDelivery, n, err)
	}

	l.metrics.EventEmitted(l.Name(), n)
	l.logger.Debugf("pushed to loki: events=%d", n)
	return nil
}

func (l *LokiEmitter) push(ctx context.Context) error {
	data, err := json.Marshal(lokiPushRequest{Streams: l.batch})
	if err != nil {
		return err
	}

	url := strings.TrimSuffix(l.cfg.URL, "/") + "/loki/api/v1/push"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if l.cfg.TenantID != "" {
		httpReq.Header.Set("X-Scope-OrgID", l.cfg.TenantID)
	}

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("loki push failed with status: %d", resp.StatusCode)
	}
	return nil
}
