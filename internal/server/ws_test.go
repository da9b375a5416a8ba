package server

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/krakenlabs/krakbit/internal/comms"
	"github.com/krakenlabs/krakbit/internal/generate"
	"github.com/krakenlabs/krakbit/internal/trending"
	"github.com/krakenlabs/krakbit/models"
)

func startStreamServer(t *testing.T, gen generate.Generator, provider trending.Provider) *websocket.Conn {
	t.Helper()
	e := echo.New()
	h := &WSHandler{Gen: gen, Trending: provider, Logger: testLogger()}
	h.Register(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) comms.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	ev, err := comms.DecodeEvent(raw)
	if err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return ev
}

func TestStreamDailyGeneration(t *testing.T) {
	gen := &generate.StaticGenerator{
		Statuses: []string{"Connecting to Server", "Composing Articles"},
		Items: []models.Item{
			{ID: "a", Headline: "Alpha"},
			{ID: "b", Headline: "Bravo"},
		},
	}
	provider := trending.Static{{ID: "p1", Text: "to the moon"}}
	conn := startStreamServer(t, gen, provider)

	if err := conn.WriteJSON(comms.NewGenDaily(7)); err != nil {
		t.Fatalf("send: %v", err)
	}

	for _, want := range gen.Statuses {
		ev, ok := readEvent(t, conn).(comms.StatusEvent)
		if !ok || ev.Message != want || ev.Generation != 7 {
			t.Fatalf("expected status %q gen 7, got %+v", want, ev)
		}
	}
	for _, want := range gen.Items {
		ev, ok := readEvent(t, conn).(comms.ItemEvent)
		if !ok || ev.Item.ID != want.ID || ev.Generation != 7 {
			t.Fatalf("expected item %q gen 7, got %+v", want.ID, ev)
		}
	}
	ev, ok := readEvent(t, conn).(comms.TrendingEvent)
	if !ok || len(ev.Posts) != 1 || ev.Posts[0].ID != "p1" {
		t.Fatalf("expected trending push, got %+v", ev)
	}
}

type recordingGenerator struct {
	queries chan string
}

func (g *recordingGenerator) Generate(ctx context.Context, query string, sink generate.Sink) error {
	g.queries <- query
	return sink.Status(ctx, "Starting Generation")
}

func TestStreamFocusedGeneration(t *testing.T) {
	gen := &recordingGenerator{queries: make(chan string, 1)}
	conn := startStreamServer(t, gen, nil)

	req, err := comms.NewGenQuestion(3, "stablecoin rules")
	if err != nil {
		t.Fatalf("NewGenQuestion: %v", err)
	}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case q := <-gen.queries:
		if q != "stablecoin rules" {
			t.Fatalf("unexpected query %q", q)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("generation never started")
	}
	if ev, ok := readEvent(t, conn).(comms.StatusEvent); !ok || ev.Generation != 3 {
		t.Fatalf("expected status gen 3, got %+v", ev)
	}
}

func TestStreamSkipsBadFrames(t *testing.T) {
	gen := &generate.StaticGenerator{Statuses: []string{"Starting Generation"}}
	conn := startStreamServer(t, gen, nil)

	// None of these should start a generation or kill the connection.
	frames := []string{
		"{not json",
		`{"kind":"mystery"}`,
		`{"kind":"gen_question","data":{}}`,
	}
	for _, frame := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	if err := conn.WriteJSON(comms.NewGenDaily(1)); err != nil {
		t.Fatalf("send: %v", err)
	}
	ev, ok := readEvent(t, conn).(comms.StatusEvent)
	if !ok || ev.Generation != 1 {
		t.Fatalf("expected the valid request to stream, got %+v", ev)
	}
}

type failingGenerator struct{}

func (failingGenerator) Generate(ctx context.Context, query string, sink generate.Sink) error {
	return errors.New("provider exploded")
}

func TestStreamGenerationFailure(t *testing.T) {
	conn := startStreamServer(t, failingGenerator{}, nil)
	if err := conn.WriteJSON(comms.NewGenDaily(2)); err != nil {
		t.Fatalf("send: %v", err)
	}
	ev, ok := readEvent(t, conn).(comms.StatusEvent)
	if !ok || ev.Message != "Generation Failed" || ev.Generation != 2 {
		t.Fatalf("expected failure status, got %+v", ev)
	}
}
