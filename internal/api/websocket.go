package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/pr-poehali-dev/heated-roof-strips-system/internal/logging"
	"github.com/pr-poehali-dev/heated-roof-strips-system/internal/state"
	"github.com/pr-poehali-dev/heated-roof-strips-system/model"
)

// StreamMessage is one websocket frame: what happened plus the state needed
// to render it.
type StreamMessage struct {
	Type      string        `json:"type"`
	Op        string        `json:"op,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	System    *model.System `json:"system"`
	Summary   model.Summary `json:"summary"`
}

// clientSendBuffer bounds how many frames may queue per client before the
// hub starts skipping frames for it.
const clientSendBuffer = 8

// streamClient is one connected consumer.
type streamClient struct {
	id   string
	conn *websocket.Conn
	send chan StreamMessage
}

// StreamHub broadcasts every committed change to connected websocket
// clients. A consumer that cannot keep up loses frames rather than stalling
// the state owner; every frame carries the full current state, so a skipped
// frame is recovered by the next one.
type StreamHub struct {
	panel *state.Panel
	log   logging.Logger

	upgrader websocket.Upgrader

	mu          sync.Mutex
	clients     map[string]*streamClient
	unsubscribe func()
	closed      bool
}

// NewStreamHub attaches a hub to the state owner.
func NewStreamHub(panel *state.Panel, log logging.Logger) *StreamHub {
	if log == nil {
		log = logging.Noop()
	}
	hub := &StreamHub{
		panel: panel,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The panel UI is served from another origin in development.
				return true
			},
		},
		clients: make(map[string]*streamClient),
	}
	hub.unsubscribe = panel.Subscribe(hub.broadcast)
	return hub
}

// Handle upgrades the connection, sends an immediate snapshot frame, and
// streams state changes until the client goes away.
func (hub *StreamHub) Handle(c echo.Context) error {
	conn, err := hub.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	cl := &streamClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan StreamMessage, clientSendBuffer),
	}

	// New clients render from this frame instead of waiting for the next
	// change. Written before registration, so it cannot interleave with the
	// write loop.
	greeting := StreamMessage{
		Type:      "snapshot",
		Timestamp: hub.panel.DisplayTime(),
		System:    hub.panel.SystemSnapshot(),
		Summary:   hub.panel.Summary(),
	}
	if err := conn.WriteJSON(greeting); err != nil {
		conn.Close()
		return nil
	}

	hub.mu.Lock()
	if hub.closed {
		hub.mu.Unlock()
		conn.Close()
		return nil
	}
	hub.clients[cl.id] = cl
	hub.mu.Unlock()

	ctx := c.Request().Context()
	hub.log.Info(ctx, "websocket client connected", logging.String("client", cl.id))

	go hub.writeLoop(cl)
	hub.readLoop(cl)

	hub.drop(cl)
	hub.log.Info(ctx, "websocket client disconnected", logging.String("client", cl.id))
	return nil
}

// ClientCount reports how many clients are connected.
func (hub *StreamHub) ClientCount() int {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	return len(hub.clients)
}

// Close detaches from the state owner and disconnects every client.
func (hub *StreamHub) Close() {
	hub.mu.Lock()
	if hub.closed {
		hub.mu.Unlock()
		return
	}
	hub.closed = true
	clients := make([]*streamClient, 0, len(hub.clients))
	for _, cl := range hub.clients {
		clients = append(clients, cl)
	}
	hub.clients = make(map[string]*streamClient)
	hub.mu.Unlock()

	if hub.unsubscribe != nil {
		hub.unsubscribe()
	}
	for _, cl := range clients {
		close(cl.send)
		cl.conn.Close()
	}
}

// broadcast composes one frame per event and fans it out without blocking.
func (hub *StreamHub) broadcast(ev state.Event) {
	msg := StreamMessage{
		Type:      string(ev.Kind),
		Op:        ev.Op,
		Timestamp: ev.At,
		System:    hub.panel.SystemSnapshot(),
		Summary:   hub.panel.Summary(),
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()
	for _, cl := range hub.clients {
		select {
		case cl.send <- msg:
		default:
		}
	}
}

func (hub *StreamHub) writeLoop(cl *streamClient) {
	for msg := range cl.send {
		if err := cl.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// readLoop consumes control frames and client chatter until the connection
// errors, which is the disconnect signal.
func (hub *StreamHub) readLoop(cl *streamClient) {
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				hub.log.Debug(context.Background(), "websocket read failed", logging.Err(err))
			}
			return
		}
	}
}

func (hub *StreamHub) drop(cl *streamClient) {
	hub.mu.Lock()
	if _, ok := hub.clients[cl.id]; ok {
		delete(hub.clients, cl.id)
		close(cl.send)
	}
	hub.mu.Unlock()
	cl.conn.Close()
}
