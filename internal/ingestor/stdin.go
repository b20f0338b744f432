package ingestor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/config"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/model"
	"github.com/GabrielNunesIT/go-libs/logger"
)

// maxLineBytes bounds one base64 line; Kinesis records are at most 1 MiB raw.
const maxLineBytes = 2 << 20

// StdinIngestor reads base64-encoded payloads from standard input, one per
// line, the form `aws kinesis get-records` prints record data in.
type StdinIngestor struct {
	cfg    config.StdinIngestorConfig
	name   string
	reader io.Reader // Allows injection for testing
	logger logger.ILogger
}

// NewStdinIngestor creates a new stdin ingestor.
func NewStdinIngestor(cfg config.StdinIngestorConfig, log logger.ILogger) *StdinIngestor {
	return NewStdinIngestorWithReader(cfg, os.Stdin, log)
}

// NewStdinIngestorWithReader creates a stdin ingestor with a custom reader (for testing).
func NewStdinIngestorWithReader(cfg config.StdinIngestorConfig, reader io.Reader, log logger.ILogger) *StdinIngestor {
	return &StdinIngestor{
		cfg:    cfg,
		name:   "stdin",
		reader: reader,
		logger: log.SubLogger("StdinIngestor"),
	}
}

// Name returns the ingestor identifier.
func (s *StdinIngestor) Name() string {
	return s.name
}

// Start reads lines until EOF and sends each decoded payload to the output channel.
// All payloads share one key so they are decoded in input order.
// Lines that are not valid base64 are logged and skipped.
func (s *StdinIngestor) Start(ctx context.Context, out chan<- *model.Payload) error {
	defer close(out)

	s.logger.Info("reading payloads from stdin")

	scanner := bufio.NewScanner(s.reader)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo, sent, bad := 0, 0, 0
	for scanner.Scan() {
		lineNo++

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		data := make([]byte, base64.StdEncoding.DecodedLen(len(line)))
		n, err := base64.StdEncoding.Decode(data, line)
		if err != nil {
			bad++
			s.logger.Warningf("skipping undecodable line: line=%d, err=%v", lineNo, err)
			continue
		}

		if err := send(ctx, out, model.NewPayload(s.name, s.name, data[:n])); err != nil {
			s.logger.Debugf("stdin ingestor stopped: payloads_sent=%d", sent)
			return err
		}
		sent++
	}

	if err := scanner.Err(); err != nil {
		s.logger.Errorf("stdin read error: %v", err)
		return fmt.Errorf("reading stdin: %w", err)
	}

	s.logger.Infof("EOF reached: payloads_sent=%d, lines_skipped=%d", sent, bad)
	return nil
}
