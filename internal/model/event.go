// Package model defines the core data structures used throughout the connector.
package model

import (
	"time"
)

// ExtractedFields maps the names of fields CloudWatch Logs pre-parsed out of a log line
// to their raw textual values. A nil value is a field the source sent as JSON null.
type ExtractedFields map[string]*string

// LogEvent represents a single CloudWatch Logs event together with the
// metadata of the subscription batch it arrived in.
type LogEvent struct {
	// ID is the source-assigned event identifier, unique within a batch.
	ID string

	// Timestamp is the event time in milliseconds since the Unix epoch.
	Timestamp int64

	// Message is the raw log line.
	Message string

	// ExtractedFields is nil when the subscription filter extracted nothing.
	ExtractedFields ExtractedFields

	// Owner is the AWS account that owns the log group.
	Owner string

	LogGroup  string
	LogStream string
}

// Time returns the event timestamp as a UTC instant.
func (e *LogEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}

// Field returns the raw value of an extracted field.
// ok is false when the field is absent or null.
func (e *LogEvent) Field(name string) (value string, ok bool) {
	v, exists := e.ExtractedFields[name]
	if !exists || v == nil {
		return "", false
	}
	return *v, true
}

// FieldValue returns a pointer to v for building ExtractedFields literals.
func FieldValue(v string) *string {
	return &v
}

// Payload is one compressed subscription batch as delivered by an ingestor.
type Payload struct {
	// Source identifies which ingestor produced this payload.
	Source string

	// Key groups payloads that must be processed in order, such as a
	// Kinesis shard, a Kafka partition or a file name.
	Key string

	// Data holds the gzip-compressed envelope bytes.
	Data []byte

	// ReceivedAt is when the ingestor received the payload.
	ReceivedAt time.Time
}

// NewPayload creates a Payload stamped with the current time.
func NewPayload(source, key string, data []byte) *Payload {
	return &Payload{
		Source:     source,
		Key:        key,
		Data:       data,
		ReceivedAt: time.Now(),
	}
}
