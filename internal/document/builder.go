// Package document renders log events into the documents each sink stores.
package document

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/model"
)

// ErrSerialization is returned when a document cannot be serialized.
// It signals a bug rather than bad input, so callers treat it as fatal for the event.
var ErrSerialization = errors.New("document serialization failed")

// JSONFieldMode selects how extracted fields holding embedded JSON are stored.
type JSONFieldMode string

const (
	// JSONFieldReplace stores the nested structure under the field's own name.
	JSONFieldReplace JSONFieldMode = "replace"
	// JSONFieldBoth keeps the raw string under the field's name and adds the
	// nested structure under NestedFieldPrefix + name.
	JSONFieldBoth JSONFieldMode = "both"
)

// NestedFieldPrefix marks the nested copy of a JSON field in JSONFieldBoth mode.
const NestedFieldPrefix = "$"

// ParseJSONFieldMode validates a configured mode. Empty selects JSONFieldReplace.
func ParseJSONFieldMode(s string) (JSONFieldMode, error) {
	switch JSONFieldMode(s) {
	case "", JSONFieldReplace:
		return JSONFieldReplace, nil
	case JSONFieldBoth:
		return JSONFieldBoth, nil
	default:
		return "", fmt.Errorf("unknown json field mode %q", s)
	}
}

// IndexDocument is an indexing-sink document and its destination.
type IndexDocument struct {
	Destination
	Source []byte
}

// indexSource is the indexing document body. The reserved keys are struct
// fields, so the field container under "$" can never replace them.
type indexSource struct {
	ID        string          `json:"@id"`
	Timestamp int64           `json:"@timestamp"`
	Message   string          `json:"@message"`
	Fields    json.RawMessage `json:"$,omitempty"`
	Owner     string          `json:"@owner"`
	LogGroup  string          `json:"@log_group"`
	LogStream string          `json:"@log_stream"`
}

// Builder assembles indexing documents.
type Builder struct {
	router Router
	mode   JSONFieldMode
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithRouter sets the router used to compute destinations.
func WithRouter(r Router) BuilderOption {
	return func(b *Builder) {
		b.router = r
	}
}

// WithJSONFieldMode sets how JSON-valued extracted fields are stored.
func WithJSONFieldMode(mode JSONFieldMode) BuilderOption {
	return func(b *Builder) {
		b.mode = mode
	}
}

// NewBuilder creates a Builder using the default router and JSONFieldReplace.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		router: NewRouter(DefaultIndexPrefix),
		mode:   JSONFieldReplace,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Router returns the builder's router.
func (b *Builder) Router() Router {
	return b.router
}

// Build renders the indexing document for an event.
func (b *Builder) Build(event *model.LogEvent) (IndexDocument, error) {
	fields, err := b.Fields(event)
	if err != nil {
		return IndexDocument{}, err
	}

	src, err := json.Marshal(indexSource{
		ID:        event.ID,
		Timestamp: event.Timestamp,
		Message:   event.Message,
		Fields:    fields,
		Owner:     event.Owner,
		LogGroup:  event.LogGroup,
		LogStream: event.LogStream,
	})
	if err != nil {
		return IndexDocument{}, fmt.Errorf("%w: event %s: %v", ErrSerialization, event.ID, err)
	}

	return IndexDocument{
		Destination: b.router.Destination(event),
		Source:      src,
	}, nil
}

// Fields returns the field container for an event, or nil when it has none.
// Extracted fields win over JSON embedded in the message; no fields are invented.
func (b *Builder) Fields(event *model.LogEvent) (json.RawMessage, error) {
	if len(event.ExtractedFields) > 0 {
		container := make(map[string]any, len(event.ExtractedFields))
		for name, raw := range event.ExtractedFields {
			c := Coerce(raw)
			switch c.Kind {
			case KindNull:
				continue
			case KindJSON:
				if b.mode != JSONFieldBoth {
					container[name] = c.JSON
					continue
				}
				container[name] = *raw
				// A real field already named like the nested copy wins,
				// even when its value is null.
				if _, taken := event.ExtractedFields[NestedFieldPrefix+name]; !taken {
					container[NestedFieldPrefix+name] = c.JSON
				}
			default:
				container[name] = c.Value()
			}
		}

		data, err := json.Marshal(container)
		if err != nil {
			return nil, fmt.Errorf("%w: extracted fields of event %s: %v", ErrSerialization, event.ID, err)
		}
		return data, nil
	}

	if sub, ok := ProbeJSON(event.Message); ok {
		return json.RawMessage(sub), nil
	}

	return nil, nil
}
