// Package generate produces digests. The backend streams a generation through
// a Sink one event at a time; the transport decides how those events reach
// the client.
package generate

import (
	"context"

	"github.com/krakenlabs/krakbit/models"
)

// Sink receives a generation's events in order. Implementations are not
// required to be safe for concurrent use; a generator calls them from one
// goroutine.
type Sink interface {
	Status(ctx context.Context, message string) error
	Item(ctx context.Context, item models.Item) error
}

// Generator produces one digest. An empty query means the daily digest; a
// non-empty query focuses the generation on it.
type Generator interface {
	Generate(ctx context.Context, query string, sink Sink) error
}

// Answerer answers a single follow-up question against the accumulated
// digest content.
type Answerer interface {
	Answer(ctx context.Context, question, content string) (string, error)
}
