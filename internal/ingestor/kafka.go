package ingestor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/config"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/model"
	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/segmentio/kafka-go"
)

// KafkaReader is the slice of kafka.Reader the consumer uses.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReaderFactory creates a reader from config.
type KafkaReaderFactory func(cfg config.KafkaIngestorConfig) KafkaReader

// KafkaOption configures a KafkaIngestor.
type KafkaOption func(*KafkaIngestor)

// WithKafkaReaderFactory overrides how the reader is created (for testing).
func WithKafkaReaderFactory(f KafkaReaderFactory) KafkaOption {
	return func(k *KafkaIngestor) {
		k.readerFactory = f
	}
}

func defaultKafkaReaderFactory(cfg config.KafkaIngestorConfig) KafkaReader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
}

// KafkaIngestor consumes subscription payloads from a Kafka topic as part of
// a consumer group. Each message value is one compressed batch.
type KafkaIngestor struct {
	cfg           config.KafkaIngestorConfig
	name          string
	readerFactory KafkaReaderFactory
	logger        logger.ILogger
}

// NewKafkaIngestor creates a new Kafka ingestor.
func NewKafkaIngestor(cfg config.KafkaIngestorConfig, log logger.ILogger, opts ...KafkaOption) *KafkaIngestor {
	k := &KafkaIngestor{
		cfg:           cfg,
		name:          "kafka",
		readerFactory: defaultKafkaReaderFactory,
		logger:        log.SubLogger("KafkaIngestor"),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Name returns the ingestor identifier.
func (k *KafkaIngestor) Name() string {
	return k.name
}

// Start fetches messages until ctx is cancelled. A message's offset is
// committed only after its payload has been handed to the pipeline.
func (k *KafkaIngestor) Start(ctx context.Context, out chan<- *model.Payload) error {
	defer close(out)

	reader := k.readerFactory(k.cfg)
	defer func() {
		if err := reader.Close(); err != nil {
			k.logger.Warningf("failed to close kafka reader: %v", err)
		}
	}()

	k.logger.Infof("consuming kafka topic: topic=%s, group=%s, brokers=%v", k.cfg.Topic, k.cfg.GroupID, k.cfg.Brokers)

	count := 0
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				k.logger.Debugf("kafka ingestor stopped: messages=%d", count)
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("fetching kafka message: %w", err)
		}

		if len(msg.Value) == 0 {
			k.logger.Debugf("skipping empty message: partition=%d, offset=%d", msg.Partition, msg.Offset)
		} else {
			key := msg.Topic + "/" + strconv.Itoa(msg.Partition)
			if err := send(ctx, out, model.NewPayload(k.name, key, msg.Value)); err != nil {
				return err
			}
			count++
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			k.logger.Warningf("failed to commit offset: partition=%d, offset=%d, err=%v", msg.Partition, msg.Offset, err)
		}
	}
}
