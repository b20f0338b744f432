// Package emitter provides the sinks log events are delivered to.
package emitter

import (
	"context"
	"errors"
	"net/http"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/model"
)

// Emitter defines the interface for log event sinks.
type Emitter interface {
	// Start initializes the emitter (create connections, etc.).
	Start(ctx context.Context) error

	// Emit delivers a single event. Batching sinks may buffer it and
	// report delivery failures later through metrics.
	Emit(ctx context.Context, event *model.LogEvent) error

	// Stop flushes pending events and releases resources.
	Stop(ctx context.Context) error

	// Name returns the emitter identifier.
	Name() string
}

// DeliveryCounter is implemented by emitters that learn the outcome of an
// event only after Emit returns. They record delivered and failed events
// themselves, so callers count nothing for them.
type DeliveryCounter interface {
	CountsDeliveries() bool
}

// ErrDelivery wraps a failed batch upload. The emitter has already counted
// every event of the batch as failed.
var ErrDelivery = errors.New("batch delivery failed")

// HTTPDoer abstracts the HTTP client for testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
