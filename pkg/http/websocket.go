package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"interaction-dashboard/pkg/dashboard"
	"interaction-dashboard/pkg/metrics"
	"interaction-dashboard/pkg/util"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
	sendBuffer     = 64
)

// WebSocketUpgrader configures the WebSocket connection
var WebSocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client represents a connected WebSocket client
type Client struct {
	hub  *EventHub
	conn *websocket.Conn
	send chan []byte
}

// EventHub fans dataset events out to WebSocket clients so open dashboards
// can refetch their views
type EventHub struct {
	logger       *logrus.Logger
	pingInterval time.Duration
	clients      map[*Client]bool
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *Client
	done         chan struct{}
	running      atomic.Bool
	recovery     *util.PanicHandler
	mutex        sync.RWMutex
}

// NewEventHub creates a hub; it does nothing until Start
func NewEventHub(logger *logrus.Logger, pingInterval time.Duration) *EventHub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &EventHub{
		logger:       logger,
		pingInterval: pingInterval,
		clients:      make(map[*Client]bool),
		broadcast:    make(chan []byte, sendBuffer),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		done:         make(chan struct{}),
		recovery:     util.NewPanicHandler(logger),
	}
}

// Start runs the hub until ctx is done
func (h *EventHub) Start(ctx context.Context) {
	h.running.Store(true)
	h.recovery.SafeGo("websocket-hub", func() { h.run(ctx) })
}

// IsRunning reports whether the hub accepts clients and events
func (h *EventHub) IsRunning() bool {
	return h.running.Load()
}

// ClientCount returns the number of connected clients
func (h *EventHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *EventHub) run(ctx context.Context) {
	h.logger.Info("Starting WebSocket event hub")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Shutting down WebSocket event hub")
			h.running.Store(false)
			h.mutex.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()
			metrics.SetWebSocketClients(0)
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			metrics.SetWebSocketClients(count)
			h.logger.WithField("clients", count).Debug("Client connected to WebSocket")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mutex.Unlock()
			metrics.SetWebSocketClients(count)
			h.logger.WithField("clients", count).Debug("Client disconnected from WebSocket")

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow consumer
					delete(h.clients, client)
					close(client.send)
				}
			}
			count := len(h.clients)
			h.mutex.Unlock()
			metrics.SetWebSocketClients(count)
		}
	}
}

// Publish implements dashboard.EventPublisher
func (h *EventHub) Publish(ctx context.Context, event dashboard.Event) error {
	if !h.IsRunning() {
		return fmt.Errorf("websocket event hub not running")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal dataset event: %w", err)
	}

	select {
	case h.broadcast <- data:
		return nil
	case <-h.done:
		return fmt.Errorf("websocket event hub stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServeWs handles WebSocket requests from clients
func (h *EventHub) ServeWs(w http.ResponseWriter, r *http.Request) {
	if !h.IsRunning() {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := WebSocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to upgrade connection to WebSocket")
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	h.recovery.SafeGo("websocket-writer", func() { client.writePump(h.pingInterval) })
	h.recovery.SafeGo("websocket-reader", func() { client.readPump(h.pingInterval) })
}

// readPump discards client messages and notices when the peer goes away
func (c *Client) readPump(pingInterval time.Duration) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	pongWait := 2 * pingInterval
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
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
