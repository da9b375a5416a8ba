// Package session runs the digest session: one controller goroutine owns all
// mutable state and serializes inbound stream events, request completions and
// user navigation onto a single loop. Nothing in here takes a lock over
// session state; there is exactly one writer.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/krakenlabs/krakbit/internal/carousel"
	"github.com/krakenlabs/krakbit/internal/comms"
	"github.com/krakenlabs/krakbit/internal/query"
	"github.com/krakenlabs/krakbit/models"
)

// ErrSessionClosed is returned by controller calls after the loop has
// stopped.
var ErrSessionClosed = errors.New("session: closed")

// View is an immutable snapshot of the session for presentation: status,
// collections and the carousel position, captured atomically on the loop.
type View struct {
	Status        Status
	StatusMessage string
	Error         ErrorKind
	Items         []models.Item
	Trending      []models.TrendingPost
	Selected      int
	WindowStart   int
	WindowSize    int
}

// Controller drives one digest session. It dispatches events from the
// connection into the state, issues generation requests tagged with a
// monotonically increasing generation id, and keeps the carousel in step with
// the growing item collection.
type Controller struct {
	conn   comms.Conn
	single *query.Client
	logger *log.Logger

	state      *State
	nav        *carousel.Navigator
	generation uint64

	cmds chan func()
	done chan struct{}
}

// NewController wires a controller to its connection and single-shot client.
// The connection is injected so tests can feed synthetic event sequences.
func NewController(conn comms.Conn, single *query.Client, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.New(log.Writer(), "[SESSION] ", log.LstdFlags)
	}
	return &Controller{
		conn:   conn,
		single: single,
		logger: logger,
		state:  NewState(),
		nav:    carousel.New(carousel.DefaultWindowSize),
		cmds:   make(chan func()),
		done:   make(chan struct{}),
	}
}

// SetWindowSize replaces the carousel window size. It must be called before
// Run; a non-positive size keeps the default.
func (c *Controller) SetWindowSize(size int) {
	if size > 0 {
		c.nav = carousel.New(size)
	}
}

// Run processes events and commands to completion, one at a time, until ctx
// is cancelled or the connection's event channel closes. It must be called
// exactly once.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.conn.Events():
			if !ok {
				return
			}
			c.dispatch(ev)
		case fn := <-c.cmds:
			fn()
		}
	}
}

// dispatch routes one decoded event. The event union is closed, so the
// switch is exhaustive; anything unmatched is a programming error worth
// hearing about in the log, not a crash.
func (c *Controller) dispatch(ev comms.Event) {
	switch ev := ev.(type) {
	case comms.StatusEvent:
		if c.stale(ev.Generation) {
			c.logger.Printf("dropping status from superseded generation %d: %q", ev.Generation, ev.Message)
			return
		}
		c.state.SetStatusMessage(ev.Message)
	case comms.ItemEvent:
		if c.stale(ev.Generation) {
			c.logger.Printf("dropping item from superseded generation %d: %q", ev.Generation, ev.Item.Headline)
			return
		}
		c.state.AppendItem(ev.Item)
		c.nav.Resize(c.state.Len())
	case comms.TrendingEvent:
		c.state.ReplaceTrending(ev.Posts)
	case comms.ConnectedEvent:
		c.logger.Printf("stream connected")
	case comms.DisconnectedEvent:
		if ev.Err != nil {
			c.logger.Printf("stream dropped: %v", ev.Err)
			c.state.SetError(ErrorConnection, ev.Err.Error())
		} else {
			c.logger.Printf("stream closed")
		}
	default:
		c.logger.Printf("unhandled event %T", ev)
	}
}

// stale reports whether an event belongs to a superseded generation. Events
// without a generation tag predate the tagging scheme and pass through.
func (c *Controller) stale(generation uint64) bool {
	return generation != 0 && generation != c.generation
}

// GenerateDailyDigest starts a full-digest generation: the session resets to
// Requesting with an empty collection, and a gen_daily request goes out
// tagged with the new generation id.
func (c *Controller) GenerateDailyDigest(ctx context.Context) error {
	return c.generate(ctx, func(generation uint64) (comms.Request, error) {
		return comms.NewGenDaily(generation), nil
	})
}

// GenerateFromQuery starts a query-driven generation. The query must be
// non-empty.
func (c *Controller) GenerateFromQuery(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("session: query must not be empty")
	}
	return c.generate(ctx, func(generation uint64) (comms.Request, error) {
		return comms.NewGenQuestion(generation, text)
	})
}

func (c *Controller) generate(ctx context.Context, build func(uint64) (comms.Request, error)) error {
	return c.run(ctx, func() error {
		c.generation++
		c.state.Reset()
		c.nav.Resize(0)
		req, err := build(c.generation)
		if err != nil {
			return err
		}
		if err := c.conn.Send(ctx, req); err != nil {
			c.state.SetError(ErrorConnection, err.Error())
			return err
		}
		return nil
	})
}

// AskFollowUp sends a single request/response follow-up question carrying the
// concatenated content of the accumulated items. The reply resolves to the
// backend's free-text answer; a failure surfaces to the caller as
// query.ErrRequestFailed and leaves session state untouched. The loop is not
// suspended while the reply is pending, so stream events keep applying.
func (c *Controller) AskFollowUp(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("session: question must not be empty")
	}
	var content string
	if err := c.run(ctx, func() error {
		content = c.state.ContentText()
		return nil
	}); err != nil {
		return "", err
	}
	answer, err := c.single.AskQuestion(ctx, question, content)
	if err != nil {
		c.logger.Printf("follow-up failed: %v", err)
		return "", err
	}
	return answer, nil
}

// RefreshTrending fetches the trending feed once and replaces the session's
// copy. A failure is logged and reported without touching session state.
func (c *Controller) RefreshTrending(ctx context.Context) error {
	posts, err := c.single.Trending(ctx)
	if err != nil {
		c.logger.Printf("trending fetch failed: %v", err)
		return err
	}
	return c.run(ctx, func() error {
		c.state.ReplaceTrending(posts)
		return nil
	})
}

// SelectNext advances the carousel selection by one.
func (c *Controller) SelectNext(ctx context.Context) error {
	return c.run(ctx, func() error { c.nav.SelectNext(); return nil })
}

// SelectPrevious moves the carousel selection back by one.
func (c *Controller) SelectPrevious(ctx context.Context) error {
	return c.run(ctx, func() error { c.nav.SelectPrevious(); return nil })
}

// SelectByIndex jumps the carousel selection to i.
func (c *Controller) SelectByIndex(ctx context.Context, i int) error {
	return c.run(ctx, func() error { return c.nav.SelectByIndex(i) })
}

// ShiftWindow slides the visible thumbnail window without changing the
// selection.
func (c *Controller) ShiftWindow(ctx context.Context, dir carousel.Direction) error {
	return c.run(ctx, func() error { c.nav.ShiftWindow(dir); return nil })
}

// View captures a consistent snapshot of the session.
func (c *Controller) View(ctx context.Context) (View, error) {
	var v View
	err := c.run(ctx, func() error {
		v = View{
			Status:        c.state.Status(),
			StatusMessage: c.state.StatusMessage(),
			Error:         c.state.Error(),
			Items:         c.state.Items(),
			Trending:      c.state.Trending(),
			Selected:      c.nav.Selected(),
			WindowStart:   c.nav.WindowStart(),
			WindowSize:    c.nav.WindowSize(),
		}
		return nil
	})
	return v, err
}

// run executes fn on the controller loop and waits for its result.
func (c *Controller) run(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.cmds <- func() { reply <- fn() }:
	case <-c.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrSessionClosed
	}
}
