package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/krakenlabs/krakbit/internal/comms"
	"github.com/krakenlabs/krakbit/internal/query"
	"github.com/krakenlabs/krakbit/models"
)

// fakeConn scripts the persistent connection: tests push events into the
// channel and inspect what the controller sent.
type fakeConn struct {
	events  chan comms.Event
	mu      sync.Mutex
	sent    []comms.Request
	sendErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan comms.Event, 32)}
}

func (f *fakeConn) Events() <-chan comms.Event { return f.events }

func (f *fakeConn) Send(_ context.Context, req comms.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeConn) sentRequests() []comms.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]comms.Request, len(f.sent))
	copy(out, f.sent)
	return out
}

func startController(t *testing.T, conn comms.Conn, single *query.Client) (*Controller, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c := NewController(conn, single, nil)
	go c.Run(ctx)
	return c, ctx
}

// waitFor polls the session view until cond holds. Events are applied
// asynchronously on the loop, so assertions about their effects need a wait.
func waitFor(t *testing.T, ctx context.Context, c *Controller, cond func(View) bool) View {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		v, err := c.View(ctx)
		if err != nil {
			t.Fatalf("view: %v", err)
		}
		if cond(v) {
			return v
		}
		time.Sleep(2 * time.Millisecond)
	}
	v, _ := c.View(ctx)
	t.Fatalf("condition not reached, final view: %+v", v)
	return View{}
}

func item(id, headline, content string) models.Item {
	return models.Item{ID: id, Headline: headline, Content: content}
}

func TestDailyDigestScenario(t *testing.T) {
	conn := newFakeConn()
	c, ctx := startController(t, conn, nil)

	v, err := c.View(ctx)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if v.Status != StatusIdle || len(v.Items) != 0 {
		t.Fatalf("fresh session should be idle and empty, got %+v", v)
	}

	if err := c.GenerateDailyDigest(ctx); err != nil {
		t.Fatalf("generate: %v", err)
	}
	v, _ = c.View(ctx)
	if v.Status != StatusRequesting || len(v.Items) != 0 {
		t.Fatalf("expected requesting with no items, got %+v", v)
	}
	sent := conn.sentRequests()
	if len(sent) != 1 || sent[0].Kind != comms.KindGenDaily || sent[0].Generation != 1 {
		t.Fatalf("unexpected outbound requests: %+v", sent)
	}

	conn.events <- comms.StatusEvent{Generation: 1, Message: "fetching sources"}
	v = waitFor(t, ctx, c, func(v View) bool { return v.StatusMessage == "fetching sources" })
	if len(v.Items) != 0 {
		t.Fatalf("status event must not touch items, got %d", len(v.Items))
	}

	conn.events <- comms.ItemEvent{Generation: 1, Item: item("a", "A", "alpha")}
	conn.events <- comms.ItemEvent{Generation: 1, Item: item("b", "B", "bravo")}
	conn.events <- comms.ItemEvent{Generation: 1, Item: item("c", "C", "charlie")}
	v = waitFor(t, ctx, c, func(v View) bool { return len(v.Items) == 3 })
	if v.Status != StatusStreaming {
		t.Fatalf("expected streaming after first item, got %s", v.Status)
	}
	for i, want := range []string{"a", "b", "c"} {
		if v.Items[i].ID != want {
			t.Fatalf("items out of order: %+v", v.Items)
		}
	}

	if err := c.SelectNext(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	if err := c.SelectNext(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	v, _ = c.View(ctx)
	if v.Selected != 2 || v.WindowStart != 0 {
		t.Fatalf("expected selected=2 windowStart=0, got selected=%d windowStart=%d", v.Selected, v.WindowStart)
	}
}

func TestSelectByIndexMovesWindow(t *testing.T) {
	conn := newFakeConn()
	c, ctx := startController(t, conn, nil)
	if err := c.GenerateDailyDigest(ctx); err != nil {
		t.Fatalf("generate: %v", err)
	}
	for i := 0; i < 10; i++ {
		conn.events <- comms.ItemEvent{Generation: 1, Item: item(string(rune('a'+i)), "h", "c")}
	}
	waitFor(t, ctx, c, func(v View) bool { return len(v.Items) == 10 })
	if err := c.SelectByIndex(ctx, 7); err != nil {
		t.Fatalf("select: %v", err)
	}
	v, _ := c.View(ctx)
	if v.Selected != 7 || v.WindowStart != 4 {
		t.Fatalf("expected selected=7 windowStart=4, got %d/%d", v.Selected, v.WindowStart)
	}
}

func TestResetClearsItemsAndStatusTogether(t *testing.T) {
	conn := newFakeConn()
	c, ctx := startController(t, conn, nil)
	if err := c.GenerateDailyDigest(ctx); err != nil {
		t.Fatalf("generate: %v", err)
	}
	conn.events <- comms.ItemEvent{Generation: 1, Item: item("a", "A", "alpha")}
	waitFor(t, ctx, c, func(v View) bool { return len(v.Items) == 1 })

	if err := c.GenerateFromQuery(ctx, "solana outage"); err != nil {
		t.Fatalf("generate from query: %v", err)
	}
	v, _ := c.View(ctx)
	if v.Status != StatusRequesting || len(v.Items) != 0 || v.Selected != 0 || v.WindowStart != 0 {
		t.Fatalf("reset must clear items, status and carousel together, got %+v", v)
	}

	sent := conn.sentRequests()
	if len(sent) != 2 || sent[1].Kind != comms.KindGenQuestion || sent[1].Generation != 2 {
		t.Fatalf("unexpected outbound requests: %+v", sent)
	}
	var payload comms.GenQuestionPayload
	if err := json.Unmarshal(sent[1].Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Query != "solana outage" {
		t.Fatalf("unexpected query payload: %+v", payload)
	}
}

func TestGenerateFromQueryRejectsEmpty(t *testing.T) {
	conn := newFakeConn()
	c, ctx := startController(t, conn, nil)
	if err := c.GenerateFromQuery(ctx, "  "); err == nil {
		t.Fatalf("expected empty query error")
	}
	if got := conn.sentRequests(); len(got) != 0 {
		t.Fatalf("nothing should be sent for an invalid query, got %+v", got)
	}
}

func TestStaleGenerationEventsDropped(t *testing.T) {
	conn := newFakeConn()
	c, ctx := startController(t, conn, nil)
	if err := c.GenerateDailyDigest(ctx); err != nil {
		t.Fatalf("generate: %v", err)
	}
	conn.events <- comms.ItemEvent{Generation: 1, Item: item("old-1", "Old", "stale")}
	waitFor(t, ctx, c, func(v View) bool { return len(v.Items) == 1 })

	if err := c.GenerateFromQuery(ctx, "bitcoin etf"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	// Late arrivals from the superseded generation must not leak into the
	// new collection.
	conn.events <- comms.ItemEvent{Generation: 1, Item: item("old-2", "Old", "stale")}
	conn.events <- comms.StatusEvent{Generation: 1, Message: "stale progress"}
	conn.events <- comms.ItemEvent{Generation: 2, Item: item("new-1", "New", "fresh")}
	v := waitFor(t, ctx, c, func(v View) bool { return len(v.Items) == 1 })
	if v.Items[0].ID != "new-1" {
		t.Fatalf("stale item leaked into new generation: %+v", v.Items)
	}
	if v.StatusMessage == "stale progress" {
		t.Fatalf("stale status applied to new generation")
	}
}

func TestUntaggedEventsApply(t *testing.T) {
	conn := newFakeConn()
	c, ctx := startController(t, conn, nil)
	if err := c.GenerateDailyDigest(ctx); err != nil {
		t.Fatalf("generate: %v", err)
	}
	// Backends that predate generation tagging send untagged events.
	conn.events <- comms.ItemEvent{Item: item("a", "A", "alpha")}
	v := waitFor(t, ctx, c, func(v View) bool { return len(v.Items) == 1 })
	if v.Status != StatusStreaming {
		t.Fatalf("expected streaming, got %s", v.Status)
	}
}

func TestTrendingReplacesWholesale(t *testing.T) {
	conn := newFakeConn()
	c, ctx := startController(t, conn, nil)
	conn.events <- comms.TrendingEvent{Posts: []models.TrendingPost{{ID: "1"}, {ID: "2"}}}
	waitFor(t, ctx, c, func(v View) bool { return len(v.Trending) == 2 })
	conn.events <- comms.TrendingEvent{Posts: []models.TrendingPost{{ID: "9"}}}
	v := waitFor(t, ctx, c, func(v View) bool { return len(v.Trending) == 1 })
	if v.Trending[0].ID != "9" {
		t.Fatalf("trending must be replaced, not appended: %+v", v.Trending)
	}
}

func TestConnectionDropSurfacesError(t *testing.T) {
	conn := newFakeConn()
	c, ctx := startController(t, conn, nil)
	conn.events <- comms.DisconnectedEvent{Err: errors.New("broken pipe")}
	v := waitFor(t, ctx, c, func(v View) bool { return v.Status == StatusError })
	if v.Error != ErrorConnection {
		t.Fatalf("expected connection error kind, got %q", v.Error)
	}
}

func TestSendFailureSurfacesError(t *testing.T) {
	conn := newFakeConn()
	conn.sendErr = errors.New("socket closed")
	c, ctx := startController(t, conn, nil)
	if err := c.GenerateDailyDigest(ctx); err == nil {
		t.Fatalf("expected send failure")
	}
	v, _ := c.View(ctx)
	if v.Status != StatusError || v.Error != ErrorConnection {
		t.Fatalf("expected error status, got %+v", v)
	}
}

func TestAskFollowUp(t *testing.T) {
	var got askBody
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ask_question" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode ask body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "prices dip on the news"})
	}))
	defer backend.Close()

	conn := newFakeConn()
	c, ctx := startController(t, conn, query.NewClient(backend.URL, time.Second))
	if err := c.GenerateDailyDigest(ctx); err != nil {
		t.Fatalf("generate: %v", err)
	}
	conn.events <- comms.ItemEvent{Generation: 1, Item: item("a", "A", "alpha")}
	conn.events <- comms.ItemEvent{Generation: 1, Item: item("b", "B", "bravo")}
	waitFor(t, ctx, c, func(v View) bool { return len(v.Items) == 2 })

	answer, err := c.AskFollowUp(ctx, "price impact?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if answer != "prices dip on the news" {
		t.Fatalf("unexpected answer %q", answer)
	}
	if got.Question != "price impact?" || got.Content != "alpha bravo" {
		t.Fatalf("unexpected ask payload %+v", got)
	}
	v, _ := c.View(ctx)
	if len(v.Items) != 2 || v.Status != StatusStreaming {
		t.Fatalf("follow-up must not mutate the session, got %+v", v)
	}
}

type askBody struct {
	Question string `json:"question"`
	Content  string `json:"content"`
}

func TestAskFollowUpRequestFailed(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusBadGateway)
	}))
	defer backend.Close()

	conn := newFakeConn()
	c, ctx := startController(t, conn, query.NewClient(backend.URL, time.Second))
	if err := c.GenerateDailyDigest(ctx); err != nil {
		t.Fatalf("generate: %v", err)
	}
	conn.events <- comms.ItemEvent{Generation: 1, Item: item("a", "A", "alpha")}
	waitFor(t, ctx, c, func(v View) bool { return len(v.Items) == 1 })

	if _, err := c.AskFollowUp(ctx, "why?"); !errors.Is(err, query.ErrRequestFailed) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
	v, _ := c.View(ctx)
	if len(v.Items) != 1 || v.Status != StatusStreaming {
		t.Fatalf("failed follow-up must not mutate the session, got %+v", v)
	}
}

func TestAskFollowUpRejectsEmptyQuestion(t *testing.T) {
	conn := newFakeConn()
	c, ctx := startController(t, conn, nil)
	if _, err := c.AskFollowUp(ctx, ""); err == nil {
		t.Fatalf("expected empty question error")
	}
}

func TestRefreshTrending(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get_x_trending" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"posts": []models.TrendingPost{{ID: "42", Text: "gm"}},
		})
	}))
	defer backend.Close()

	conn := newFakeConn()
	c, ctx := startController(t, conn, query.NewClient(backend.URL, time.Second))
	if err := c.RefreshTrending(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	v, _ := c.View(ctx)
	if len(v.Trending) != 1 || v.Trending[0].ID != "42" {
		t.Fatalf("unexpected trending feed: %+v", v.Trending)
	}
}

func TestNoAutoScrollWhileStreaming(t *testing.T) {
	conn := newFakeConn()
	c, ctx := startController(t, conn, nil)
	if err := c.GenerateDailyDigest(ctx); err != nil {
		t.Fatalf("generate: %v", err)
	}
	for i := 0; i < 6; i++ {
		conn.events <- comms.ItemEvent{Generation: 1, Item: item(string(rune('a'+i)), "h", "c")}
	}
	waitFor(t, ctx, c, func(v View) bool { return len(v.Items) == 6 })
	if err := c.ShiftWindow(ctx, 1); err != nil {
		t.Fatalf("shift: %v", err)
	}
	if err := c.ShiftWindow(ctx, 1); err != nil {
		t.Fatalf("shift: %v", err)
	}
	conn.events <- comms.ItemEvent{Generation: 1, Item: item("g", "h", "c")}
	v := waitFor(t, ctx, c, func(v View) bool { return len(v.Items) == 7 })
	if v.WindowStart != 2 {
		t.Fatalf("background append must not move the window, got start %d", v.WindowStart)
	}
}

func TestClosedControllerRejectsCalls(t *testing.T) {
	conn := newFakeConn()
	ctx, cancel := context.WithCancel(context.Background())
	c := NewController(conn, nil, nil)
	done := make(chan struct{})
	go func() { c.Run(ctx); close(done) }()
	cancel()
	<-done
	if err := c.SelectNext(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}
