package generate

import (
	"context"
	"fmt"

	"github.com/krakenlabs/krakbit/models"
)

// StaticGenerator replays a fixed digest. It backs tests and local runs
// without a model provider.
type StaticGenerator struct {
	Statuses []string
	Items    []models.Item
}

func (g *StaticGenerator) Generate(ctx context.Context, query string, sink Sink) error {
	for _, msg := range g.Statuses {
		if err := sink.Status(ctx, msg); err != nil {
			return err
		}
	}
	for _, item := range g.Items {
		if err := sink.Item(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// StaticAnswerer answers every question with the same canned text.
type StaticAnswerer struct {
	Response string
	Err      error
}

func (a *StaticAnswerer) Answer(ctx context.Context, question, content string) (string, error) {
	if a.Err != nil {
		return "", a.Err
	}
	if a.Response != "" {
		return a.Response, nil
	}
	return fmt.Sprintf("No provider configured to answer %q.", question), nil
}
