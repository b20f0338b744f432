// Package subscription decodes CloudWatch Logs subscription batches.
package subscription

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/model"
	"github.com/klauspost/compress/gzip"
)

// DataMessage is the messageType of batches that carry log events.
const DataMessage = "DATA_MESSAGE"

// DefaultMaxDecompressedBytes bounds the inflated size of one batch.
const DefaultMaxDecompressedBytes int64 = 64 << 20

// ErrTooLarge is reported when a batch inflates past the configured limit.
var ErrTooLarge = errors.New("decompressed batch exceeds limit")

// SkipReason explains why a batch produced no events.
type SkipReason string

const (
	SkipNone           SkipReason = ""
	SkipDecompress     SkipReason = "decompress"
	SkipInvalidJSON    SkipReason = "invalid_json"
	SkipNoMessageType  SkipReason = "no_message_type"
	SkipControlMessage SkipReason = "control_message"
	SkipMalformed      SkipReason = "malformed"
)

// Result is the outcome of decoding one batch.
type Result struct {
	// Events preserves the order of the batch's logEvents array.
	Events []model.LogEvent

	// Reason is SkipNone unless the batch was abandoned.
	Reason SkipReason

	// Err describes the failure behind Reason, if any.
	Err error

	MessageType         string
	SubscriptionFilters []string
}

// Skipped reports whether the batch was abandoned.
func (r Result) Skipped() bool {
	return r.Reason != SkipNone
}

func skipped(reason SkipReason, messageType string, err error) Result {
	return Result{Reason: reason, Err: err, MessageType: messageType}
}

type envelope struct {
	MessageType         *string         `json:"messageType"`
	Owner               *string         `json:"owner"`
	LogGroup            *string         `json:"logGroup"`
	LogStream           *string         `json:"logStream"`
	SubscriptionFilters []string        `json:"subscriptionFilters"`
	LogEvents           []envelopeEvent `json:"logEvents"`
}

type envelopeEvent struct {
	ID              string                     `json:"id"`
	Timestamp       json.Number                `json:"timestamp"`
	Message         *string                    `json:"message"`
	ExtractedFields map[string]json.RawMessage `json:"extractedFields"`
}

// Decoder turns compressed batches into log events. It holds no mutable
// state and is safe for concurrent use.
type Decoder struct {
	maxBytes int64
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithMaxDecompressedBytes overrides DefaultMaxDecompressedBytes. Non-positive values are ignored.
func WithMaxDecompressedBytes(n int64) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxBytes = n
		}
	}
}

// NewDecoder creates a Decoder.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{maxBytes: DefaultMaxDecompressedBytes}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode decompresses and parses one batch. It never panics; bad input
// yields a skipped Result and the caller decides how to report it.
func (d *Decoder) Decode(data []byte) Result {
	raw, err := d.inflate(data)
	if err != nil {
		return skipped(SkipDecompress, "", err)
	}
	return DecodeJSON(raw)
}

func (d *Decoder) inflate(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, d.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read gzip stream: %w", err)
	}
	if int64(len(out)) > d.maxBytes {
		return nil, fmt.Errorf("%w: limit=%d", ErrTooLarge, d.maxBytes)
	}
	return out, nil
}

// DecodeJSON parses an already decompressed envelope.
func DecodeJSON(raw []byte) Result {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return skipped(SkipInvalidJSON, "", fmt.Errorf("parse envelope: %w", err))
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return skipped(SkipInvalidJSON, "", errors.New("parse envelope: trailing data"))
	}

	if env.MessageType == nil {
		return skipped(SkipNoMessageType, "", nil)
	}
	if *env.MessageType != DataMessage {
		return skipped(SkipControlMessage, *env.MessageType, nil)
	}

	if env.Owner == nil || env.LogGroup == nil || env.LogStream == nil {
		return skipped(SkipMalformed, DataMessage, errors.New("data message without owner, logGroup or logStream"))
	}

	events := make([]model.LogEvent, 0, len(env.LogEvents))
	for _, e := range env.LogEvents {
		event := model.LogEvent{
			ID:        e.ID,
			Timestamp: parseTimestamp(e.Timestamp),
			Owner:     *env.Owner,
			LogGroup:  *env.LogGroup,
			LogStream: *env.LogStream,
		}
		if e.Message != nil {
			event.Message = *e.Message
		}
		if e.ExtractedFields != nil {
			event.ExtractedFields = make(model.ExtractedFields, len(e.ExtractedFields))
			for name, v := range e.ExtractedFields {
				event.ExtractedFields[name] = textOf(v)
			}
		}
		events = append(events, event)
	}

	return Result{
		Events:              events,
		MessageType:         DataMessage,
		SubscriptionFilters: env.SubscriptionFilters,
	}
}

// parseTimestamp reads integer milliseconds, truncating fractional values.
// Anything unparsable becomes 0.
func parseTimestamp(n json.Number) int64 {
	if n == "" {
		return 0
	}
	if ms, err := n.Int64(); err == nil {
		return ms
	}
	if f, err := n.Float64(); err == nil {
		return int64(f)
	}
	return 0
}

// textOf returns the textual form of an extracted field value.
// JSON null maps to nil.
func textOf(v json.RawMessage) *string {
	trimmed := bytes.TrimSpace(v)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return &s
		}
	}

	if trimmed[0] == '{' || trimmed[0] == '[' {
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err == nil {
			s := buf.String()
			return &s
		}
	}

	// Numbers and booleans keep their literal text.
	s := string(trimmed)
	return &s
}
