package ingestor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/config"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/model"
	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// KinesisAPI is the slice of the Kinesis client the poller uses.
type KinesisAPI interface {
	ListShards(ctx context.Context, params *kinesis.ListShardsInput, optFns ...func(*kinesis.Options)) (*kinesis.ListShardsOutput, error)
	GetShardIterator(ctx context.Context, params *kinesis.GetShardIteratorInput, optFns ...func(*kinesis.Options)) (*kinesis.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, params *kinesis.GetRecordsInput, optFns ...func(*kinesis.Options)) (*kinesis.GetRecordsOutput, error)
}

// KinesisClientFactory creates a client from config.
type KinesisClientFactory func(ctx context.Context, cfg config.KinesisIngestorConfig) (KinesisAPI, error)

// KinesisOption configures a KinesisIngestor.
type KinesisOption func(*KinesisIngestor)

// WithKinesisClientFactory overrides how the client is created (for testing).
func WithKinesisClientFactory(f KinesisClientFactory) KinesisOption {
	return func(k *KinesisIngestor) {
		k.clientFactory = f
	}
}

func defaultKinesisClientFactory(ctx context.Context, cfg config.KinesisIngestorConfig) (KinesisAPI, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return kinesis.NewFromConfig(awsCfg, func(o *kinesis.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// KinesisIngestor polls every shard of a Kinesis stream that a CloudWatch
// Logs subscription filter writes to. Each record is one compressed batch.
type KinesisIngestor struct {
	cfg           config.KinesisIngestorConfig
	name          string
	clientFactory KinesisClientFactory
	logger        logger.ILogger
}

// NewKinesisIngestor creates a new Kinesis ingestor.
func NewKinesisIngestor(cfg config.KinesisIngestorConfig, log logger.ILogger, opts ...KinesisOption) *KinesisIngestor {
	if cfg.IteratorType == "" {
		cfg.IteratorType = string(types.ShardIteratorTypeLatest)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	k := &KinesisIngestor{
		cfg:           cfg,
		name:          "kinesis",
		clientFactory: defaultKinesisClientFactory,
		logger:        log.SubLogger("KinesisIngestor"),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Name returns the ingestor identifier.
func (k *KinesisIngestor) Name() string {
	return k.name
}

// Start consumes all shards concurrently. It returns when ctx is cancelled,
// when every shard is closed, or on the first unrecoverable shard error.
func (k *KinesisIngestor) Start(ctx context.Context, out chan<- *model.Payload) error {
	defer close(out)

	client, err := k.clientFactory(ctx, k.cfg)
	if err != nil {
		return err
	}

	shards, err := k.listShards(ctx, client)
	if err != nil {
		return err
	}
	k.logger.Infof("consuming kinesis stream: stream=%s, shards=%d, iterator=%s", k.cfg.StreamName, len(shards), k.cfg.IteratorType)

	g, gctx := errgroup.WithContext(ctx)
	for _, shardID := range shards {
		g.Go(func() error {
			return k.consumeShard(gctx, client, shardID, out)
		})
	}
	return g.Wait()
}

func (k *KinesisIngestor) listShards(ctx context.Context, client KinesisAPI) ([]string, error) {
	var shards []string
	input := &kinesis.ListShardsInput{StreamName: aws.String(k.cfg.StreamName)}
	for {
		page, err := client.ListShards(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("listing shards of %s: %w", k.cfg.StreamName, err)
		}
		for _, s := range page.Shards {
			shards = append(shards, aws.ToString(s.ShardId))
		}
		if page.NextToken == nil {
			return shards, nil
		}
		// NextToken and StreamName are mutually exclusive.
		input = &kinesis.ListShardsInput{NextToken: page.NextToken}
	}
}

func (k *KinesisIngestor) iterator(ctx context.Context, client KinesisAPI, shardID, afterSeq string) (*string, error) {
	input := &kinesis.GetShardIteratorInput{
		StreamName:        aws.String(k.cfg.StreamName),
		ShardId:           aws.String(shardID),
		ShardIteratorType: types.ShardIteratorType(k.cfg.IteratorType),
	}
	if afterSeq != "" {
		input.ShardIteratorType = types.ShardIteratorTypeAfterSequenceNumber
		input.StartingSequenceNumber = aws.String(afterSeq)
	}

	resp, err := client.GetShardIterator(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("getting iterator for shard %s: %w", shardID, err)
	}
	return resp.ShardIterator, nil
}

func (k *KinesisIngestor) consumeShard(ctx context.Context, client KinesisAPI, shardID string, out chan<- *model.Payload) error {
	limiter := rate.NewLimiter(rate.Limit(k.cfg.RequestsPerSecond), 1)

	it, err := k.iterator(ctx, client, shardID, "")
	if err != nil {
		return err
	}

	var lastSeq string
	records := 0
	for it != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		input := &kinesis.GetRecordsInput{ShardIterator: it}
		if k.cfg.MaxRecords > 0 {
			input.Limit = aws.Int32(k.cfg.MaxRecords)
		}

		resp, err := client.GetRecords(ctx, input)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			var expired *types.ExpiredIteratorException
			if errors.As(err, &expired) {
				k.logger.Debugf("shard iterator expired, renewing: shard=%s, after=%s", shardID, lastSeq)
				if it, err = k.iterator(ctx, client, shardID, lastSeq); err != nil {
					return err
				}
				continue
			}

			var throttled *types.ProvisionedThroughputExceededException
			if errors.As(err, &throttled) {
				k.logger.Warningf("read throughput exceeded, backing off: shard=%s", shardID)
				if err := sleepCtx(ctx, k.cfg.PollInterval); err != nil {
					return err
				}
				continue
			}

			return fmt.Errorf("reading shard %s: %w", shardID, err)
		}

		for _, r := range resp.Records {
			if err := send(ctx, out, model.NewPayload(k.name, shardID, r.Data)); err != nil {
				return err
			}
			lastSeq = aws.ToString(r.SequenceNumber)
			records++
		}

		it = resp.NextShardIterator
		if len(resp.Records) == 0 && it != nil {
			if err := sleepCtx(ctx, k.cfg.PollInterval); err != nil {
				return err
			}
		}
	}

	k.logger.Infof("shard closed: shard=%s, records=%d", shardID, records)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
