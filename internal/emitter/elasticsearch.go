package emitter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/config"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/document"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/metrics"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/model"
	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
)

// ErrNotStarted is returned by Emit before Start succeeded or after Stop.
var ErrNotStarted = errors.New("emitter not started")

// IndexerFactory creates a new BulkIndexer.
type IndexerFactory func(cfg config.ElasticsearchEmitterConfig) (esutil.BulkIndexer, error)

// ElasticsearchOption configures the ElasticsearchEmitter.
type ElasticsearchOption func(*ElasticsearchEmitter)

// WithIndexerFactory sets a custom factory for creating the BulkIndexer.
// This is primarily used for testing to inject a mock indexer.
func WithIndexerFactory(f IndexerFactory) ElasticsearchOption {
	return func(e *ElasticsearchEmitter) {
		e.factory = f
	}
}

// WithElasticsearchMetrics records asynchronous bulk failures and duplicates.
func WithElasticsearchMetrics(m *metrics.Metrics) ElasticsearchOption {
	return func(e *ElasticsearchEmitter) {
		e.metrics = m
	}
}

func defaultIndexerFactory(cfg config.ElasticsearchEmitterConfig) (esutil.BulkIndexer, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
	}

	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	return esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:        client,
		NumWorkers:    cfg.NumWorkers,
		FlushBytes:    cfg.FlushBytes,
		FlushInterval: cfg.FlushInterval,
	})
}

// ElasticsearchEmitter indexes events into daily indices. Each event is
// created under its own id, so a redelivered batch is rejected as a
// conflict instead of being indexed twice.
type ElasticsearchEmitter struct {
	cfg     config.ElasticsearchEmitterConfig
	builder *document.Builder
	factory IndexerFactory
	indexer esutil.BulkIndexer
	metrics *metrics.Metrics
	logger  logger.ILogger

	// mu is held shared across Add so Close never races a queued send.
	mu sync.RWMutex
}

// NewElasticsearchEmitter creates a new Elasticsearch emitter.
func NewElasticsearchEmitter(cfg config.ElasticsearchEmitterConfig, builder *document.Builder, log logger.ILogger, opts ...ElasticsearchOption) *ElasticsearchEmitter {
	if builder == nil {
		builder = document.NewBuilder()
	}
	e := &ElasticsearchEmitter{
		cfg:     cfg,
		builder: builder,
		factory: defaultIndexerFactory,
		logger:  log.SubLogger("ElasticsearchEmitter"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Name returns the emitter identifier.
func (e *ElasticsearchEmitter) Name() string {
	return "elasticsearch"
}

// Start initializes the Elasticsearch client and bulk indexer.
func (e *ElasticsearchEmitter) Start(ctx context.Context) error {
	indexer, err := e.factory(e.cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.indexer = indexer
	e.mu.Unlock()

	e.logger.Infof("bulk indexer ready: addresses=%v, prefix=%s", e.cfg.Addresses, e.builder.Router().Prefix())
	return nil
}

// Stop flushes and closes the bulk indexer.
func (e *ElasticsearchEmitter) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.indexer == nil {
		return nil
	}

	err := e.indexer.Close(ctx)
	stats := e.indexer.Stats()
	e.logger.Debugf("bulk indexer closed: indexed=%d, failed=%d", stats.NumIndexed, stats.NumFailed)
	e.indexer = nil
	return err
}

// Emit queues an event in the bulk indexer.
func (e *ElasticsearchEmitter) Emit(ctx context.Context, event *model.LogEvent) error {
	doc, err := e.builder.Build(event)
	if err != nil {
		return err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.indexer == nil {
		return ErrNotStarted
	}

	return e.indexer.Add(ctx, esutil.BulkIndexerItem{
		Action:     "create",
		Index:      doc.Index,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(doc.Source),
		OnSuccess:  e.onSuccess,
		OnFailure:  e.onFailure,
	})
}

// CountsDeliveries reports that the emitter counts events once the bulk
// response for them arrives.
func (e *ElasticsearchEmitter) CountsDeliveries() bool { return true }

func (e *ElasticsearchEmitter) onSuccess(context.Context, esutil.BulkIndexerItem, esutil.BulkIndexerResponseItem) {
	e.metrics.EventEmitted(e.Name(), 1)
}

func (e *ElasticsearchEmitter) onFailure(_ context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
	if err == nil && res.Status == http.StatusConflict {
		e.logger.Debugf("document already indexed: index=%s, id=%s", item.Index, item.DocumentID)
		e.metrics.Duplicate()
		return
	}

	e.metrics.EventFailed(e.Name(), 1)
	if err != nil {
		e.logger.Errorf("bulk request failed: index=%s, id=%s, error=%v", item.Index, item.DocumentID, err)
		return
	}
	e.logger.Errorf("document rejected: index=%s, id=%s, status=%d, type=%s, reason=%s",
		item.Index, item.DocumentID, res.Status, res.Error.Type, res.Error.Reason)
}
