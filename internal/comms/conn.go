// Package comms owns the persistent connection to the digest backend and the
// wire envelopes exchanged over it. Inbound frames are decoded into a closed
// union of typed events and handed to the session over a bounded channel, so
// ordering and backpressure are explicit and event sequences can be injected
// in tests without a live connection.
package comms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultEventBuffer bounds the connection-to-session event channel.
const DefaultEventBuffer = 64

// ErrNotConnected is returned by Send before Connect has succeeded or after
// Close.
var ErrNotConnected = errors.New("comms: not connected")

// Conn is the minimal surface the session needs from a connection: an event
// source plus outbound sends. *Manager implements it; tests substitute a
// scripted fake.
type Conn interface {
	Events() <-chan Event
	Send(ctx context.Context, req Request) error
}

// Manager owns the lifecycle of one WebSocket connection. It is constructed
// per session and injected, never shared as ambient global state.
type Manager struct {
	url    string
	logger *log.Logger
	dialer *websocket.Dialer

	events chan Event

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewManager prepares a manager for the given websocket URL. No I/O happens
// until Connect.
func NewManager(url string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.Writer(), "[WS] ", log.LstdFlags)
	}
	return &Manager{
		url:    url,
		logger: logger,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		events: make(chan Event, DefaultEventBuffer),
	}
}

// Events is the single delivery channel for decoded inbound events and
// connection lifecycle signals. Events arrive in wire order.
func (m *Manager) Events() <-chan Event { return m.events }

// Connect opens the connection and starts the read loop. Calling Connect
// while already connected is a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		return nil
	}
	if m.closed {
		return fmt.Errorf("comms: manager already closed")
	}
	conn, _, err := m.dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return fmt.Errorf("comms: dial %s: %w", m.url, err)
	}
	m.conn = conn
	m.logger.Printf("connected to %s", m.url)
	m.events <- ConnectedEvent{}
	go m.readLoop(conn)
	return nil
}

// Send transmits one request frame. Sends are serialized; gorilla/websocket
// forbids concurrent writers.
func (m *Manager) Send(ctx context.Context, req Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return ErrNotConnected
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("comms: encode %s request: %w", req.Kind, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = m.conn.SetWriteDeadline(deadline)
	}
	if err := m.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("comms: send %s: %w", req.Kind, err)
	}
	return nil
}

// Close tears the connection down and releases its resources. The read loop
// emits a final DisconnectedEvent and exits. Close is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.conn == nil {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	_ = m.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := m.conn.Close()
	m.conn = nil
	return err
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			closed := m.closed
			m.mu.Unlock()
			if closed || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				m.logger.Printf("disconnected")
				m.events <- DisconnectedEvent{}
			} else {
				m.logger.Printf("connection dropped: %v", err)
				m.events <- DisconnectedEvent{Err: err}
			}
			return
		}
		ev, err := DecodeEvent(raw)
		if err != nil {
			// Unknown kinds and malformed frames never crash the
			// session; they are logged and skipped.
			if errors.Is(err, ErrUnknownKind) {
				m.logger.Printf("dropping event: %v", err)
			} else {
				m.logger.Printf("malformed event: %v", err)
			}
			continue
		}
		m.events <- ev
	}
}
