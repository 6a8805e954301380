package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/greenbond-oracle/internal/domain"
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

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Feed supplies the oracle updates of a bond.
type Feed interface {
	LiveFeed(ctx context.Context, bondID string) ([]domain.FeedEvent, error)
	Subscribe(ctx context.Context, bondID string) (<-chan []byte, error)
}

// client is a single WebSocket connection watching one bond.
type client struct {
	hub    *Hub
	bondID string
	conn   *websocket.Conn
	send   chan []byte
}

type broadcastMsg struct {
	bondID string
	data   []byte
}

// Hub relays oracle updates from the signal bus to WebSocket clients. It
// holds one bus subscription per bond that has at least one client.
type Hub struct {
	feed       Feed
	clients    map[string]map[*client]bool
	cancels    map[string]context.CancelFunc
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a Hub reading from feed.
func NewHub(feed Feed, logger *slog.Logger) *Hub {
	return &Hub{
		feed:       feed,
		clients:    make(map[string]map[*client]bool),
		cancels:    make(map[string]context.CancelFunc),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "ws")),
	}
}

// Run is the hub's event loop. It returns when ctx is cancelled, closing
// every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for bondID, set := range h.clients {
				for c := range set {
					close(c.send)
				}
				delete(h.clients, bondID)
			}
			for bondID, cancel := range h.cancels {
				cancel()
				delete(h.cancels, bondID)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			set := h.clients[c.bondID]
			if set == nil {
				set = make(map[*client]bool)
				h.clients[c.bondID] = set
				subCtx, cancel := context.WithCancel(ctx)
				h.cancels[c.bondID] = cancel
				go h.relay(subCtx, c.bondID)
			}
			set[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.String("bond_id", c.bondID),
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.clients[c.bondID]; ok && set[c] {
				delete(set, c)
				close(c.send)
				if len(set) == 0 {
					delete(h.clients, c.bondID)
					if cancel, ok := h.cancels[c.bondID]; ok {
						cancel()
						delete(h.cancels, c.bondID)
					}
				}
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.String("bond_id", c.bondID),
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients[msg.bondID] {
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("ws: dropping message for slow client",
						slog.String("bond_id", msg.bondID),
					)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// relay forwards bus messages for bondID to the hub until ctx ends.
func (h *Hub) relay(ctx context.Context, bondID string) {
	msgCh, err := h.feed.Subscribe(ctx, bondID)
	if err != nil {
		h.logger.Error("ws: failed to subscribe",
			slog.String("bond_id", bondID),
			slog.String("error", err.Error()),
		)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				return
			}
			select {
			case h.broadcast <- broadcastMsg{bondID: bondID, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades the request and streams ORACLE_UPDATE events for the
// bond in the path, starting with the updates already retained on it.
// GET /ws/oracle/{bond_id}
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	bondID := r.PathValue("bond_id")
	backlog, err := h.feed.LiveFeed(r.Context(), bondID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:    h,
		bondID: bondID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}
	for _, evt := range backlog {
		if data, err := json.Marshal(evt); err == nil {
			select {
			case c.send <- data:
			default:
			}
		}
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// readPump drains client frames so control messages are processed, and
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

// writePump sends queued updates as JSON text frames and keeps the
// connection alive with pings.
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
