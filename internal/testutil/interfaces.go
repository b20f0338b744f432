package testutil

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/segmentio/kafka-go"
)

// The interfaces below mirror the seams the connector injects, so mocks can be
// generated into testutil/mocks without importing production packages.
//
//go:generate mockery --name=WriteCloser --output=mocks --outpkg=mocks
//go:generate mockery --name=BulkIndexer --output=mocks --outpkg=mocks
//go:generate mockery --name=ObjectPutter --output=mocks --outpkg=mocks
//go:generate mockery --name=KinesisAPI --output=mocks --outpkg=mocks
//go:generate mockery --name=KafkaReader --output=mocks --outpkg=mocks

// WriteCloser wraps io.WriteCloser for mock generation
type WriteCloser interface {
	io.WriteCloser
}

// BulkIndexer wraps esutil.BulkIndexer for mock generation
type BulkIndexer interface {
	esutil.BulkIndexer
}

// ObjectPutter is the slice of the S3 client the archival emitter uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// KinesisAPI is the slice of the Kinesis client the stream poller uses.
type KinesisAPI interface {
	ListShards(ctx context.Context, params *kinesis.ListShardsInput, optFns ...func(*kinesis.Options)) (*kinesis.ListShardsOutput, error)
	GetShardIterator(ctx context.Context, params *kinesis.GetShardIteratorInput, optFns ...func(*kinesis.Options)) (*kinesis.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, params *kinesis.GetRecordsInput, optFns ...func(*kinesis.Options)) (*kinesis.GetRecordsOutput, error)
}

// KafkaReader is the slice of kafka.Reader the consumer uses.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
