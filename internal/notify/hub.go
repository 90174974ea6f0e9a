package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xenking/kitchen-orders/internal/domain/order"
	"github.com/xenking/kitchen-orders/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

type message struct {
	branchID string
	data     []byte
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	// branchID limits the feed to one branch. Empty receives every branch.
	branchID string
}

// Hub pushes order events to connected staff WebSocket clients. A client
// only receives events of its own branch unless it subscribed to all
// branches. Slow clients whose buffer fills up are disconnected.
type Hub struct {
	upgrader   websocket.Upgrader
	clients    map[*client]struct{}
	broadcast  chan message
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
	lg         *zap.Logger
}

var _ order.EventSink = (*Hub)(nil)

// NewHub creates a hub. checkOrigin may be nil to accept any origin.
func NewHub(lg *zap.Logger, checkOrigin func(r *http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		upgrader:   websocket.Upgrader{CheckOrigin: checkOrigin},
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan message, sendBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		lg:         lg,
	}
}

// Run dispatches messages until ctx is done, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.lg.Info("Staff client connected", zap.String("branch_id", c.branchID), zap.Int("client_count", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.lg.Info("Staff client disconnected", zap.String("branch_id", c.branchID), zap.Int("client_count", n))

		case m := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if c.branchID != "" && c.branchID != m.branchID {
					continue
				}
				select {
				case c.send <- m.data:
				default:
					delete(h.clients, c)
					close(c.send)
					h.lg.Warn("Dropped slow staff client", zap.String("branch_id", c.branchID))
				}
			}
			h.mu.Unlock()
		}
	}
}

// Emit queues the event for every subscribed client. The event is dropped
// when the broadcast queue is full.
func (h *Hub) Emit(_ context.Context, e order.Event) {
	select {
	case h.broadcast <- message{branchID: e.BranchID, data: wire.Event(e)}:
	default:
		h.lg.Warn("Broadcast queue full, dropping order event", eventFields(e)...)
	}
}

// Serve upgrades the request and subscribes the connection to events of
// branchID, or of every branch when branchID is empty. The caller is
// responsible for authorising the subscription.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, branchID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.lg.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		branchID: branchID,
	}
	select {
	case h.register <- c:
	case <-r.Context().Done():
		_ = conn.Close()
		return
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump discards client input and detects disconnects.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.lg.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
