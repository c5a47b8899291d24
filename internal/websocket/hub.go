// Package websocket streams subscription status updates to connected clients.
package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/boostly/entitlementd/internal/entitlement"
	"github.com/boostly/entitlementd/internal/metrics"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
)

// Message is the wire envelope sent to clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub upgrades HTTP connections and relays the manager's status stream to
// each client. Every client gets an independent subscription, so the current
// status is replayed on connect and slow clients cannot stall others.
type Hub struct {
	manager *entitlement.Manager

	mu             sync.RWMutex
	allowedOrigins []string
}

// NewHub creates a hub over the given manager.
func NewHub(manager *entitlement.Manager) *Hub {
	return &Hub{manager: manager}
}

// SetAllowedOrigins restricts which Origin headers may upgrade. Empty allows
// same-host requests only; "*" allows any origin.
func (h *Hub) SetAllowedOrigins(origins []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.allowedOrigins = origins
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	h.mu.RLock()
	origins := h.allowedOrigins
	h.mu.RUnlock()

	if len(origins) == 0 {
		return strings.Contains(origin, r.Host)
	}
	for _, allowed := range origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HandleWebSocket handles WebSocket upgrade requests.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	id, updates := h.manager.Subscribe()
	metrics.StatusSubscribers.Set(float64(h.manager.SubscriberCount()))
	log.Info().Str("client", id).Msg("WebSocket client connected")

	client := &client{
		hub:     h,
		conn:    conn,
		id:      id,
		updates: updates,
	}
	go client.writePump()
	go client.readPump()
}

type client struct {
	hub     *Hub
	conn    *websocket.Conn
	id      string
	updates <-chan entitlement.SubscriptionStatus

	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.hub.manager.Unsubscribe(c.id)
		metrics.StatusSubscribers.Set(float64(c.hub.manager.SubscriberCount()))
		c.conn.Close()
		log.Info().Str("client", c.id).Msg("WebSocket client disconnected")
	})
}

// writePump forwards status updates to the client. The first value on the
// subscription channel is the replayed current status.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case status, ok := <-c.updates:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			msg := Message{Type: "status", Data: status}
			data, err := json.Marshal(msg)
			if err != nil {
				log.Error().Err(err).Str("client", c.id).Msg("Failed to marshal status message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("client", c.id).Msg("Failed to write status message")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames to process pongs and detect closure.
func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("client", c.id).Msg("WebSocket read error")
			}
			return
		}
	}
}
