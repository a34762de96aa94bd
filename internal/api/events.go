package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/pbaille/newschat/internal/domain"
)

// Event types pushed to browsers.
const (
	EventBusy   = "busy"
	EventNotice = "notice"
	EventSpeak  = "speak"
	EventInput  = "input"
	EventRender = "render"
)

const (
	clientBuffer = 32
	writeTimeout = 5 * time.Second
)

// Event is one message on the /ws stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Hub fans session events out to every connected browser. It implements
// domain.UI, domain.Notifier and domain.Speaker; every method only enqueues
// and never blocks on a slow client.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	last    *Event
	closed  bool

	originPatterns []string
	log            *slog.Logger
}

type client struct {
	send chan []byte
}

// NewHub creates a Hub accepting connections from the given origin host
// patterns ("*" for any).
func NewHub(originPatterns []string, log *slog.Logger) *Hub {
	return &Hub{
		clients:        make(map[*client]struct{}),
		originPatterns: originPatterns,
		log:            log.With("component", "events"),
	}
}

func (h *Hub) SetBusy(busy bool) {
	h.broadcast(Event{Type: EventBusy, Data: busy})
}

func (h *Hub) ClearInput() {
	h.broadcast(Event{Type: EventInput, Data: ""})
}

func (h *Hub) SetInput(text string) {
	h.broadcast(Event{Type: EventInput, Data: text})
}

// Render broadcasts the snapshot and remembers it for clients that connect later.
func (h *Hub) Render(snap domain.Snapshot) {
	ev := Event{Type: EventRender, Data: snap}
	h.mu.Lock()
	h.last = &ev
	h.mu.Unlock()
	h.broadcast(ev)
}

func (h *Hub) Notify(n domain.Notice) {
	h.broadcast(Event{Type: EventNotice, Data: n})
}

// Speak asks browsers to read the utterance with their own voice.
func (h *Hub) Speak(utterance string) {
	h.broadcast(Event{Type: EventSpeak, Data: utterance})
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// ServeHTTP upgrades the request and streams events until either side leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.log.Warn("websocket accept failed", "error", err, "ip", r.RemoteAddr)
		return
	}

	c, ok := h.register()
	if !ok {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.unregister(c)
	h.log.Info("client connected", "ip", r.RemoteAddr, "clients", h.Clients())

	// Inbound messages are not part of the protocol.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			h.log.Debug("client left", "ip", r.RemoteAddr)
			return
		case msg, ok := <-c.send:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "disconnected")
				return
			}
			if err := write(ctx, conn, msg); err != nil {
				h.log.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, msg)
}

func (h *Hub) register() (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}

	c := &client{send: make(chan []byte, clientBuffer)}
	if h.last != nil {
		if data, err := json.Marshal(h.last); err == nil {
			c.send <- data
		}
	}
	h.clients[c] = struct{}{}
	return c, true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("failed to encode event", "type", ev.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Slow consumer; it reconnects and gets the last render.
			h.log.Warn("dropping slow client", "type", ev.Type)
			delete(h.clients, c)
			close(c.send)
		}
	}
}
