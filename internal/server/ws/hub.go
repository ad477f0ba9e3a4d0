// Package ws pushes opportunity lists to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/metrics"
	"github.com/alanyoungcy/arbscanner/internal/scanner"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing frames per client.
	sendBufferSize = 16
)

// Frame types.
const (
	FrameSnapshot = "snapshot"
	FrameUpdate   = "update"
)

// Frame is one message sent to a client.
type Frame struct {
	Type          string               `json:"type"`
	Count         int                  `json:"count"`
	Opportunities []domain.Opportunity `json:"opportunities"`
	TS            float64              `json:"ts"`
}

// Feed is the broker surface the hub reads from.
type Feed interface {
	Subscribe() <-chan []domain.Opportunity
	Unsubscribe(ch <-chan []domain.Opportunity)
	Latest() []domain.Opportunity
}

// Filter supplies the active sets applied to every frame. It is consulted
// per frame so settings changes apply to open connections.
type Filter interface {
	Snapshot() scanner.Snapshot
}

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Origins are enforced by the CORS middleware.
		return true
	},
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans broker payloads out to connected clients. A new client first
// receives a snapshot of the latest list, then one update per publish.
type Hub struct {
	feed   Feed
	filter Filter
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	clients map[*client]struct{}

	register   chan *client
	unregister chan *client
	done       chan struct{}
}

// NewHub creates a hub over feed.
func NewHub(feed Feed, filter Filter, logger *slog.Logger) *Hub {
	return &Hub{
		feed:       feed,
		filter:     filter,
		logger:     logger.With(slog.String("component", "ws_hub")),
		now:        time.Now,
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop. It returns nil once ctx is cancelled, after
// closing every client.
func (h *Hub) Run(ctx context.Context) error {
	payloads := h.feed.Subscribe()
	defer h.feed.Unsubscribe(payloads)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			metrics.WSClients.Set(0)
			close(h.done)
			return nil

		case c := <-h.register:
			// The snapshot is queued before the client can see any update.
			if msg, err := h.frame(FrameSnapshot, h.feed.Latest()); err == nil {
				c.send <- msg
			}
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WSClients.Set(float64(n))
			h.logger.Info("ws: client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WSClients.Set(float64(n))
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", n))

		case payload, ok := <-payloads:
			if !ok {
				payloads = nil
				continue
			}
			msg, err := h.frame(FrameUpdate, payload)
			if err != nil {
				h.logger.Error("ws: encode frame", slog.String("error", err.Error()))
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Client's send buffer is full; drop the frame.
					h.logger.Warn("ws: dropping frame for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) frame(kind string, payload []domain.Opportunity) ([]byte, error) {
	opps := h.filter.Snapshot().Filter(payload)
	return json.Marshal(Frame{
		Type:          kind,
		Count:         len(opps),
		Opportunities: opps,
		TS:            float64(h.now().UnixNano()) / float64(time.Second),
	})
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub.
// GET /ws/opportunities
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump drains client messages so control frames are processed, and
// unregisters the client when the connection ends.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

// writePump writes queued frames as text messages and pings periodically.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
