package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/auragrid/arbiter-server-go/internal/game"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

// Hub fans authoritative state updates out to the clients subscribed to
// each match. It implements game.UpdatePublisher; publishing never blocks
// a match, slow clients get disconnected instead.
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[string]map[*wsClient]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[string]map[*wsClient]struct{}),
	}
}

// PublishUpdate serializes the update once and queues it to every client
// subscribed to the match. Fire-and-forget: a client whose send buffer is
// full is dropped.
func (h *Hub) PublishUpdate(matchID string, update game.StateUpdate) {
	data, err := json.Marshal(update)
	if err != nil {
		h.logger.Error("failed to marshal state update",
			zap.String("match_id", matchID),
			zap.Error(err),
		)
		return
	}

	h.mu.RLock()
	subscribers := make([]*wsClient, 0, len(h.clients[matchID]))
	for client := range h.clients[matchID] {
		subscribers = append(subscribers, client)
	}
	h.mu.RUnlock()

	for _, client := range subscribers {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("dropping slow websocket client",
				zap.String("match_id", matchID),
				zap.String("player", client.playerID),
			)
			h.unregister(client)
		}
	}
}

func (h *Hub) register(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[client.matchID] == nil {
		h.clients[client.matchID] = make(map[*wsClient]struct{})
	}
	h.clients[client.matchID][client] = struct{}{}
}

func (h *Hub) unregister(client *wsClient) {
	h.mu.Lock()
	if subscribers, ok := h.clients[client.matchID]; ok {
		if _, present := subscribers[client]; present {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, client.matchID)
			}
			close(client.send)
		}
	}
	h.mu.Unlock()
}

// SubscriberCount returns how many clients follow a match.
func (h *Hub) SubscriberCount(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[matchID])
}

type wsClient struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	matchID  string
	playerID string
}

// serve attaches the client to the hub and starts its pumps.
func (h *Hub) serve(conn *websocket.Conn, matchID, playerID string) {
	client := &wsClient{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		matchID:  matchID,
		playerID: playerID,
	}
	h.register(client)

	go client.writePump()
	go client.readPump()
}

// readPump discards inbound frames; the socket is push-only. It exists to
// process control messages and detect disconnects.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
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
				c.hub.logger.Debug("websocket read error",
					zap.String("match_id", c.matchID),
					zap.String("player", c.playerID),
					zap.Error(err),
				)
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
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

// upgrader builds the websocket upgrader honoring the configured origin.
func upgrader(allowedOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}
}
