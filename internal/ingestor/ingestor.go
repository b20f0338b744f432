// Package ingestor defines the interface and implementations for batch sources.
package ingestor

import (
	"context"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/model"
)

// Ingestor defines the contract for subscription batch sources.
// Each ingestor runs in its own goroutine and pushes compressed payloads to the output channel.
type Ingestor interface {
	// Start begins ingesting payloads and sends them to the output channel.
	// It blocks until the context is cancelled, the source is exhausted
	// or an unrecoverable error occurs.
	// The implementation must close the output channel when done.
	Start(ctx context.Context, out chan<- *model.Payload) error

	// Name returns a unique identifier for this ingestor instance.
	Name() string
}

// send delivers p unless ctx is cancelled first.
func send(ctx context.Context, out chan<- *model.Payload, p *model.Payload) error {
	select {
	case out <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
