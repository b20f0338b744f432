package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdirTemp moves into an empty directory so no ./config.yaml is picked up.
func chdirTemp(t *testing.T) {
	t.Helper()
	origDir, _ := os.Getwd()
	_ = os.Chdir(t.TempDir())
	t.Cleanup(func() { _ = os.Chdir(origDir) })
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("expected loglevel=info, got %s", cfg.LogLevel)
	}
	if cfg.Pipeline.BufferSize != 1000 {
		t.Errorf("expected buffersize=1000, got %d", cfg.Pipeline.BufferSize)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("expected workers=4, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.ShutdownTimeout != 30*time.Second {
		t.Errorf("expected shutdowntimeout=30s, got %v", cfg.Pipeline.ShutdownTimeout)
	}
	if cfg.Pipeline.MaxDecompressedBytes != 64<<20 {
		t.Errorf("expected maxdecompressedbytes=64MiB, got %d", cfg.Pipeline.MaxDecompressedBytes)
	}
	if cfg.Document.IndexPrefix != "cwl-" {
		t.Errorf("expected indexprefix=cwl-, got %s", cfg.Document.IndexPrefix)
	}
	if cfg.Document.JSONFieldMode != "replace" {
		t.Errorf("expected jsonfieldmode=replace, got %s", cfg.Document.JSONFieldMode)
	}

	if !cfg.Emitters.Stdout.Enabled {
		t.Error("expected stdout emitter enabled by default")
	}
	if cfg.Emitters.Stdout.Format != "text" {
		t.Errorf("expected stdout format=text, got %s", cfg.Emitters.Stdout.Format)
	}

	in := cfg.Ingestors
	if in.Stdin.Enabled || in.Dir.Enabled || in.Kafka.Enabled || in.Kinesis.Enabled {
		t.Error("expected all ingestors disabled by default")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CWLOGS_CONNECTOR_LOGLEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("expected loglevel=debug from env, got %s", cfg.LogLevel)
	}
}

func TestLoad_NestedEnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CWLOGS_CONNECTOR_PIPELINE_WORKERS", "8")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Pipeline.Workers != 8 {
		t.Errorf("expected workers=8 from nested env, got %d", cfg.Pipeline.Workers)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
loglevel: warn
pipeline:
  buffersize: 500
document:
  indexprefix: logs-
  jsonfieldmode: both
filter:
  includeloggroups:
    - ^/aws/lambda/
ingestors:
  kinesis:
    enabled: true
    streamname: cwl-stream
    iteratortype: TRIM_HORIZON
emitters:
  stdout:
    enabled: false
  s3:
    enabled: true
    bucket: archive
    compression: snappy
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("expected loglevel=warn from file, got %s", cfg.LogLevel)
	}
	if cfg.Pipeline.BufferSize != 500 {
		t.Errorf("expected buffersize=500 from file, got %d", cfg.Pipeline.BufferSize)
	}
	if cfg.Document.IndexPrefix != "logs-" || cfg.Document.JSONFieldMode != "both" {
		t.Errorf("unexpected document config: %+v", cfg.Document)
	}
	if len(cfg.Filter.IncludeLogGroups) != 1 || cfg.Filter.IncludeLogGroups[0] != "^/aws/lambda/" {
		t.Errorf("unexpected include filter: %v", cfg.Filter.IncludeLogGroups)
	}
	if !cfg.Ingestors.Kinesis.Enabled || cfg.Ingestors.Kinesis.StreamName != "cwl-stream" {
		t.Errorf("unexpected kinesis config: %+v", cfg.Ingestors.Kinesis)
	}
	// Unset keys keep their defaults.
	if cfg.Ingestors.Kinesis.RequestsPerSecond != 5 {
		t.Errorf("expected requestspersecond default 5, got %v", cfg.Ingestors.Kinesis.RequestsPerSecond)
	}
	if cfg.Emitters.Stdout.Enabled {
		t.Error("expected stdout emitter disabled from file")
	}
	if cfg.Emitters.S3.Compression != "snappy" || cfg.Emitters.S3.BatchSize != 1000 {
		t.Errorf("unexpected s3 config: %+v", cfg.Emitters.S3)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", `loglevel: warn`)
	t.Setenv("CWLOGS_CONNECTOR_LOGLEVEL", "error")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "error" {
		t.Errorf("expected env to override file, got %s", cfg.LogLevel)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
loglevel: info
  invalid_indent: true
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestLoad_JSONFile(t *testing.T) {
	path := writeConfig(t, "config.json", `{
  "loglevel": "error",
  "pipeline": {
    "buffersize": 250
  }
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "error" {
		t.Errorf("expected loglevel=error from JSON file, got %s", cfg.LogLevel)
	}
	if cfg.Pipeline.BufferSize != 250 {
		t.Errorf("expected buffersize=250 from JSON file, got %d", cfg.Pipeline.BufferSize)
	}
}

func TestResolvePath(t *testing.T) {
	chdirTemp(t)

	if got := ResolvePath(""); got != "" {
		t.Errorf("expected no path, got %q", got)
	}
	if got := ResolvePath("explicit.yaml"); got != "explicit.yaml" {
		t.Errorf("expected explicit path, got %q", got)
	}

	if err := os.WriteFile("config.yaml", []byte("loglevel: debug\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	if got := ResolvePath(""); got != "./config.yaml" {
		t.Errorf("expected ./config.yaml, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Pipeline.Workers = 0 },
			wantErr: "pipeline.workers",
		},
		{
			name:    "zero buffer",
			mutate:  func(c *Config) { c.Pipeline.BufferSize = 0 },
			wantErr: "pipeline.buffersize",
		},
		{
			name:    "unknown json field mode",
			mutate:  func(c *Config) { c.Document.JSONFieldMode = "merge" },
			wantErr: "jsonfieldmode",
		},
		{
			name:    "dir without path",
			mutate:  func(c *Config) { c.Ingestors.Dir.Enabled = true },
			wantErr: "ingestors.dir.path",
		},
		{
			name:    "kafka without brokers",
			mutate:  func(c *Config) { c.Ingestors.Kafka.Enabled = true; c.Ingestors.Kafka.Topic = "t" },
			wantErr: "ingestors.kafka",
		},
		{
			name: "kinesis bad iterator",
			mutate: func(c *Config) {
				c.Ingestors.Kinesis.Enabled = true
				c.Ingestors.Kinesis.StreamName = "s"
				c.Ingestors.Kinesis.IteratorType = "AT_TIMESTAMP"
			},
			wantErr: "iteratortype",
		},
		{
			name:    "stdout bad format",
			mutate:  func(c *Config) { c.Emitters.Stdout.Format = "xml" },
			wantErr: "emitters.stdout.format",
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *Config) { c.Emitters.S3.Enabled = true },
			wantErr: "emitters.s3.bucket",
		},
		{
			name: "s3 bad codec",
			mutate: func(c *Config) {
				c.Emitters.S3.Enabled = true
				c.Emitters.S3.Bucket = "b"
				c.Emitters.S3.Compression = "zstd"
			},
			wantErr: "emitters.s3.compression",
		},
		{
			name:    "elasticsearch without addresses",
			mutate:  func(c *Config) { c.Emitters.Elasticsearch.Enabled = true },
			wantErr: "emitters.elasticsearch.addresses",
		},
		{
			name:    "loki without url",
			mutate:  func(c *Config) { c.Emitters.Loki.Enabled = true },
			wantErr: "emitters.loki.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
