package harness

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub fans controller state changes out to connected WebSocket clients.
// Each client gets its own write pump so one slow consumer cannot stall the
// poll loop; a client whose queue fills up is dropped.
type Hub struct {
	log *slog.Logger

	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient

	mu      sync.Mutex
	clients map[*wsClient]struct{}

	// snapshot produces the payload for the state_init message sent to a
	// client right after it connects.
	snapshot func() any
}

const (
	clientSendBuf = 32
	hubSendBuf    = 128

	wsWriteWait  = 5 * time.Second
	wsPongWait   = 30 * time.Second
	wsPingPeriod = 20 * time.Second
)

// envelope is the wire format for outbound frames.
type envelope struct {
	Type string    `json:"type"`
	Ts   time.Time `json:"ts"`
	Data any       `json:"data,omitempty"`
}

func NewHub(log *slog.Logger, snapshot func() any) *Hub {
	return &Hub{
		log:        log,
		broadcast:  make(chan []byte, hubSendBuf),
		register:   make(chan *wsClient, 8),
		unregister: make(chan *wsClient, 8),
		clients:    make(map[*wsClient]struct{}),
		snapshot:   snapshot,
	}
}

// Run processes hub events until ctx is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				if c.conn != nil {
					_ = c.conn.Close()
				}
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Info("State feed client connected", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.drop(c, "disconnect")

		case msg := <-h.broadcast:
			var slow []*wsClient
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()
			for _, c := range slow {
				h.drop(c, "slow_client")
			}
		}
	}
}

func (h *Hub) drop(c *wsClient, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		close(c.send)
		h.log.Info("State feed client dropped", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

// Broadcast serializes an event and queues it for every client. It never
// blocks; when the queue is full the event is dropped.
func (h *Hub) Broadcast(eventType string, data any) {
	msg, err := json.Marshal(envelope{Type: eventType, Ts: time.Now().UTC(), Data: data})
	if err != nil {
		h.log.Error("State feed marshal failed", "type", eventType, "error", err)
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("State feed queue full, dropping event", "type", eventType)
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the request and registers the client. The pumps outlive
// the handler on purpose; tying them to the request context would kill the
// connection as soon as the handler returns.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("State feed upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, clientSendBuf),
		remoteAddr: r.RemoteAddr,
	}

	if h.snapshot != nil {
		if init, err := json.Marshal(envelope{Type: "state_init", Ts: time.Now().UTC(), Data: h.snapshot()}); err == nil {
			c.send <- init
		}
	}

	h.register <- c
	go c.writePump()
	go c.readPump()
}

type wsClient struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
}

// writePump drains the send queue onto the socket and keeps the connection
// alive with pings. It exits when send is closed or a write fails.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; the feed is one-way. A read error means
// the client went away, which unregisters it.
func (c *wsClient) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.hub.unregister <- c
			return
		}
	}
}
