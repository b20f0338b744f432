// Package config provides configuration loading with layered overrides.
// Load order: defaults -> YAML/JSON file -> environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	configloader "github.com/GabrielNunesIT/go-libs/config-loader"
)

// EnvPrefix namespaces environment overrides, e.g. CWLOGS_CONNECTOR_PIPELINE_WORKERS.
const EnvPrefix = "CWLOGS_CONNECTOR_"

// DefaultPaths are tried in order when no config file is given.
var DefaultPaths = []string{"./config.yaml", "/etc/cwlogs-connector/config.yaml"}

// Config is the root configuration structure for the connector.
type Config struct {
	LogLevel  string         `koanf:"loglevel" yaml:"log_level" json:"log_level"`
	Pipeline  PipelineConfig `koanf:"pipeline"`
	Document  DocumentConfig `koanf:"document"`
	Filter    FilterConfig   `koanf:"filter"`
	Ingestors IngestorConfig `koanf:"ingestors"`
	Emitters  EmitterConfig  `koanf:"emitters"`
	Ops       OpsConfig      `koanf:"ops"`
}

// PipelineConfig controls the pipeline behavior.
type PipelineConfig struct {
	BufferSize           int           `koanf:"buffersize" yaml:"buffer_size" json:"buffer_size"`
	Workers              int           `koanf:"workers"`
	ShutdownTimeout      time.Duration `koanf:"shutdowntimeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	DropOnFullBuffer     bool          `koanf:"droponbufferfull" yaml:"drop_on_full_buffer" json:"drop_on_full_buffer"`
	MaxDecompressedBytes int64         `koanf:"maxdecompressedbytes" yaml:"max_decompressed_bytes" json:"max_decompressed_bytes"`
}

// DocumentConfig controls how indexing documents are rendered.
type DocumentConfig struct {
	IndexPrefix   string `koanf:"indexprefix" yaml:"index_prefix" json:"index_prefix"`
	JSONFieldMode string `koanf:"jsonfieldmode" yaml:"json_field_mode" json:"json_field_mode"` // "replace" or "both"
}

// FilterConfig selects which events reach the emitters.
type FilterConfig struct {
	IncludeLogGroups []string `koanf:"includeloggroups" yaml:"include_log_groups" json:"include_log_groups"`
	ExcludeLogGroups []string `koanf:"excludeloggroups" yaml:"exclude_log_groups" json:"exclude_log_groups"`
}

// IngestorConfig holds configuration for all batch sources.
type IngestorConfig struct {
	Stdin   StdinIngestorConfig   `koanf:"stdin"`
	Dir     DirIngestorConfig     `koanf:"dir"`
	Kafka   KafkaIngestorConfig   `koanf:"kafka"`
	Kinesis KinesisIngestorConfig `koanf:"kinesis"`
}

// StdinIngestorConfig configures the stdin ingestor.
type StdinIngestorConfig struct {
	Enabled bool `koanf:"enabled"`
}

// DirIngestorConfig configures the directory watching ingestor.
type DirIngestorConfig struct {
	Enabled         bool   `koanf:"enabled"`
	Path            string `koanf:"path"`
	Pattern         string `koanf:"pattern"`
	DeleteAfterRead bool   `koanf:"deleteafterread" yaml:"delete_after_read" json:"delete_after_read"`
}

// KafkaIngestorConfig configures the Kafka consumer group ingestor.
type KafkaIngestorConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Brokers  []string `koanf:"brokers"`
	Topic    string   `koanf:"topic"`
	GroupID  string   `koanf:"groupid" yaml:"group_id" json:"group_id"`
	MinBytes int      `koanf:"minbytes" yaml:"min_bytes" json:"min_bytes"`
	MaxBytes int      `koanf:"maxbytes" yaml:"max_bytes" json:"max_bytes"`
}

// KinesisIngestorConfig configures the Kinesis stream poller.
type KinesisIngestorConfig struct {
	Enabled           bool          `koanf:"enabled"`
	StreamName        string        `koanf:"streamname" yaml:"stream_name" json:"stream_name"`
	Region            string        `koanf:"region"`
	Endpoint          string        `koanf:"endpoint"`
	IteratorType      string        `koanf:"iteratortype" yaml:"iterator_type" json:"iterator_type"` // "LATEST" or "TRIM_HORIZON"
	PollInterval      time.Duration `koanf:"pollinterval" yaml:"poll_interval" json:"poll_interval"`
	MaxRecords        int32         `koanf:"maxrecords" yaml:"max_records" json:"max_records"`
	RequestsPerSecond float64       `koanf:"requestspersecond" yaml:"requests_per_second" json:"requests_per_second"`
}

// EmitterConfig holds configuration for all sinks.
type EmitterConfig struct {
	Stdout        StdoutEmitterConfig        `koanf:"stdout"`
	File          FileEmitterConfig          `koanf:"file"`
	Elasticsearch ElasticsearchEmitterConfig `koanf:"elasticsearch"`
	S3            S3EmitterConfig            `koanf:"s3"`
	Loki          LokiEmitterConfig          `koanf:"loki"`
	VictoriaLogs  VictoriaLogsEmitterConfig  `koanf:"victorialogs"`
}

// StdoutEmitterConfig configures the stdout emitter.
type StdoutEmitterConfig struct {
	Enabled bool   `koanf:"enabled"`
	Format  string `koanf:"format"` // "text" or "json"
}

// FileEmitterConfig configures the archival file emitter.
type FileEmitterConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"`
	MaxSizeMB  int    `koanf:"maxsizemb" yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `koanf:"maxbackups" yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `koanf:"maxagedays" yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// ElasticsearchEmitterConfig configures the Elasticsearch emitter.
type ElasticsearchEmitterConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Addresses     []string      `koanf:"addresses"`
	Username      string        `koanf:"username"`
	Password      string        `koanf:"password"`
	NumWorkers    int           `koanf:"numworkers" yaml:"num_workers" json:"num_workers"`
	FlushBytes    int           `koanf:"flushbytes" yaml:"flush_bytes" json:"flush_bytes"`
	FlushInterval time.Duration `koanf:"flushinterval" yaml:"flush_interval" json:"flush_interval"`
}

// S3EmitterConfig configures the archival S3 emitter.
type S3EmitterConfig struct {
	Enabled           bool          `koanf:"enabled"`
	Bucket            string        `koanf:"bucket"`
	Prefix            string        `koanf:"prefix"`
	Region            string        `koanf:"region"`
	Endpoint          string        `koanf:"endpoint"`
	UsePathStyle      bool          `koanf:"usepathstyle" yaml:"use_path_style" json:"use_path_style"`
	Compression       string        `koanf:"compression"` // "gzip", "snappy" or "none"
	BatchSize         int           `koanf:"batchsize" yaml:"batch_size" json:"batch_size"`
	FlushInterval     time.Duration `koanf:"flushinterval" yaml:"flush_interval" json:"flush_interval"`
	MaxBufferedEvents int           `koanf:"maxbufferedevents" yaml:"max_buffered_events" json:"max_buffered_events"`
}

// LokiEmitterConfig configures the Loki emitter.
type LokiEmitterConfig struct {
	Enabled       bool              `koanf:"enabled"`
	URL           string            `koanf:"url"`
	TenantID      string            `koanf:"tenantid" yaml:"tenant_id" json:"tenant_id"`
	Labels        map[string]string `koanf:"labels"`
	BatchSize     int               `koanf:"batchsize" yaml:"batch_size" json:"batch_size"`
	FlushInterval time.Duration     `koanf:"flushinterval" yaml:"flush_interval" json:"flush_interval"`
}

// VictoriaLogsEmitterConfig configures the VictoriaLogs emitter.
type VictoriaLogsEmitterConfig struct {
	Enabled       bool          `koanf:"enabled"`
	URL           string        `koanf:"url"`
	BatchSize     int           `koanf:"batchsize" yaml:"batch_size" json:"batch_size"`
	FlushInterval time.Duration `koanf:"flushinterval" yaml:"flush_interval" json:"flush_interval"`
}

// OpsConfig configures the metrics and health endpoint. Empty Address disables it.
type OpsConfig struct {
	Address string `koanf:"address"`
}

// defaults returns the default configuration values.
func defaults() Config {
	return Config{
		LogLevel: "info",
		Pipeline: PipelineConfig{
			BufferSize:           1000,
			Workers:              4,
			ShutdownTimeout:      30 * time.Second,
			DropOnFullBuffer:     false,
			MaxDecompressedBytes: 64 << 20,
		},
		Document: DocumentConfig{
			IndexPrefix:   "cwl-",
			JSONFieldMode: "replace",
		},
		Ingestors: IngestorConfig{
			Dir: DirIngestorConfig{
				Pattern: "*.gz",
			},
			Kafka: KafkaIngestorConfig{
				GroupID:  "cwlogs-connector",
				MinBytes: 1,
				MaxBytes: 10 << 20,
			},
			Kinesis: KinesisIngestorConfig{
				IteratorType:      "LATEST",
				PollInterval:      time.Second,
				MaxRecords:        1000,
				RequestsPerSecond: 5,
			},
		},
		Emitters: EmitterConfig{
			Stdout: StdoutEmitterConfig{
				Enabled: true,
				Format:  "text",
			},
			File: FileEmitterConfig{
				MaxSizeMB:  100,
				MaxBackups: 3,
				MaxAgeDays: 7,
				Compress:   true,
			},
			Elasticsearch: ElasticsearchEmitterConfig{
				NumWorkers:    2,
				FlushBytes:    5 << 20,
				FlushInterval: 5 * time.Second,
			},
			S3: S3EmitterConfig{
				Compression:       "gzip",
				BatchSize:         1000,
				FlushInterval:     time.Minute,
				MaxBufferedEvents: 100000,
			},
			Loki: LokiEmitterConfig{
				BatchSize:     100,
				FlushInterval: 1 * time.Second,
			},
			VictoriaLogs: VictoriaLogsEmitterConfig{
				BatchSize:     100,
				FlushInterval: 1 * time.Second,
			},
		},
	}
}

// Defaults returns a copy of the default configuration.
func Defaults() Config {
	return defaults()
}

// Load reads configuration from all sources with proper override order.
// Order: defaults -> config file -> environment variables.
func Load(configPath string) (*Config, error) {
	opts := []configloader.Option[Config]{
		configloader.WithDefaults[Config](defaults()),
	}

	if path := ResolvePath(configPath); path != "" {
		opts = append(opts, configloader.WithFile[Config](path))
	}

	opts = append(opts, configloader.WithEnv[Config](EnvPrefix))

	loader := configloader.NewConfigLoader[Config](opts...)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return &cfg, nil
}

// ResolvePath returns configPath, or the first existing default location
// when configPath is empty. It returns "" when no file applies.
func ResolvePath(configPath string) string {
	if configPath != "" {
		return configPath
	}
	for _, path := range DefaultPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate checks settings that the loader cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.Pipeline.BufferSize <= 0 {
		errs = append(errs, errors.New("pipeline.buffersize must be positive"))
	}
	if c.Pipeline.Workers <= 0 {
		errs = append(errs, errors.New("pipeline.workers must be positive"))
	}
	switch c.Document.JSONFieldMode {
	case "", "replace", "both":
	default:
		errs = append(errs, fmt.Errorf("document.jsonfieldmode: unknown mode %q", c.Document.JSONFieldMode))
	}

	in := c.Ingestors
	if in.Dir.Enabled && in.Dir.Path == "" {
		errs = append(errs, errors.New("ingestors.dir.path is required"))
	}
	if in.Kafka.Enabled && (len(in.Kafka.Brokers) == 0 || in.Kafka.Topic == "") {
		errs = append(errs, errors.New("ingestors.kafka needs brokers and topic"))
	}
	if in.Kinesis.Enabled {
		if in.Kinesis.StreamName == "" {
			errs = append(errs, errors.New("ingestors.kinesis.streamname is required"))
		}
		switch in.Kinesis.IteratorType {
		case "LATEST", "TRIM_HORIZON":
		default:
			errs = append(errs, fmt.Errorf("ingestors.kinesis.iteratortype: unknown type %q", in.Kinesis.IteratorType))
		}
	}

	em := c.Emitters
	switch em.Stdout.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("emitters.stdout.format: unknown format %q", em.Stdout.Format))
	}
	if em.File.Enabled && em.File.Path == "" {
		errs = append(errs, errors.New("emitters.file.path is required"))
	}
	if em.Elasticsearch.Enabled && len(em.Elasticsearch.Addresses) == 0 {
		errs = append(errs, errors.New("emitters.elasticsearch.addresses is required"))
	}
	if em.S3.Enabled {
		if em.S3.Bucket == "" {
			errs = append(errs, errors.New("emitters.s3.bucket is required"))
		}
		switch em.S3.Compression {
		case "", "gzip", "snappy", "none":
		default:
			errs = append(errs, fmt.Errorf("emitters.s3.compression: unknown codec %q", em.S3.Compression))
		}
	}
	if em.Loki.Enabled && em.Loki.URL == "" {
		errs = append(errs, errors.New("emitters.loki.url is required"))
	}
	if em.VictoriaLogs.Enabled && em.VictoriaLogs.URL == "" {
		errs = append(errs, errors.New("emitters.victorialogs.url is required"))
	}

	return errors.Join(errs...)
}
