package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/krakenlabs/krakbit/internal/archive"
	"github.com/krakenlabs/krakbit/internal/comms"
	"github.com/krakenlabs/krakbit/internal/generate"
	"github.com/krakenlabs/krakbit/internal/trending"
	"github.com/krakenlabs/krakbit/models"
)

// WSHandler serves the persistent client connection. Each gen_daily or
// gen_question request starts a generation whose events stream back tagged
// with the request's generation id; a new request cancels the previous
// generation so the stream always belongs to the latest one.
type WSHandler struct {
	Gen      generate.Generator
	Trending trending.Provider
	Archive  *archive.Store
	Logger   *log.Logger

	upgrader websocket.Upgrader
}

// Register mounts the stream endpoint.
func (h *WSHandler) Register(e *echo.Echo) {
	h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	e.GET("/ws", h.handle)
}

func (h *WSHandler) handle(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	client := &wsClient{conn: conn}
	h.Logger.Printf("client connected from %s", c.RealIP())

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	defer conn.Close()

	var genCancel context.CancelFunc
	defer func() {
		if genCancel != nil {
			genCancel()
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			h.Logger.Printf("client disconnected: %v", err)
			return nil
		}
		var req comms.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			h.Logger.Printf("dropping malformed request frame: %v", err)
			continue
		}
		switch req.Kind {
		case comms.KindGenDaily:
			genCancel = h.startGeneration(ctx, client, genCancel, req.Generation, "")
		case comms.KindGenQuestion:
			var payload comms.GenQuestionPayload
			if err := json.Unmarshal(req.Data, &payload); err != nil || payload.Query == "" {
				h.Logger.Printf("dropping gen_question without a query")
				continue
			}
			genCancel = h.startGeneration(ctx, client, genCancel, req.Generation, payload.Query)
		default:
			h.Logger.Printf("dropping request of unknown kind %q", req.Kind)
		}
	}
}

// startGeneration supersedes any in-flight generation and streams a fresh
// one.
func (h *WSHandler) startGeneration(ctx context.Context, client *wsClient, prev context.CancelFunc, generation uint64, query string) context.CancelFunc {
	if prev != nil {
		prev()
	}
	kind := comms.KindGenDaily
	if query != "" {
		kind = comms.KindGenQuestion
	}
	generationsStarted.WithLabelValues(kind).Inc()

	genCtx, cancel := context.WithCancel(ctx)
	go func() {
		sink := &streamSink{client: client, generation: generation}
		if err := h.Gen.Generate(genCtx, query, sink); err != nil {
			if genCtx.Err() != nil {
				h.Logger.Printf("generation %d superseded", generation)
				return
			}
			h.Logger.Printf("generation %d failed: %v", generation, err)
			_ = sink.Status(genCtx, "Generation Failed")
			return
		}
		h.finishGeneration(genCtx, client, generation, query, sink.items)
	}()
	return cancel
}

// finishGeneration pushes the trending feed alongside the finished digest and
// archives it when a store is configured.
func (h *WSHandler) finishGeneration(ctx context.Context, client *wsClient, generation uint64, query string, items []models.Item) {
	if h.Trending != nil {
		if posts, err := h.Trending.Trending(ctx); err != nil {
			h.Logger.Printf("trending fetch for stream failed: %v", err)
		} else if env, err := comms.EncodeTrending(posts); err == nil {
			eventsStreamed.WithLabelValues(comms.TypeTrending).Inc()
			_ = client.write(env)
		}
	}
	if h.Archive != nil && len(items) > 0 {
		id, err := h.Archive.SaveDigest(ctx, models.Digest{Query: query, Items: items})
		if err != nil {
			h.Logger.Printf("archive save failed: %v", err)
		} else {
			h.Logger.Printf("archived digest %s (%d items)", id, len(items))
		}
	}
}

// wsClient serializes writes to one websocket connection.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(env comms.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(env)
}

// streamSink adapts a websocket client into a generation sink, collecting the
// streamed items for archiving.
type streamSink struct {
	client     *wsClient
	generation uint64
	items      []models.Item
}

func (s *streamSink) Status(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	eventsStreamed.WithLabelValues(comms.TypeStatus).Inc()
	return s.client.write(comms.EncodeStatus(s.generation, message))
}

func (s *streamSink) Item(ctx context.Context, item models.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env, err := comms.EncodeItem(s.generation, item)
	if err != nil {
		return err
	}
	eventsStreamed.WithLabelValues(comms.TypeNewData).Inc()
	if err := s.client.write(env); err != nil {
		return err
	}
	s.items = append(s.items, item)
	return nil
}
