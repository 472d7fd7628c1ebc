package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/switchsync/switchsync-core/internal/auth"
	"github.com/switchsync/switchsync-core/internal/device"
	"github.com/switchsync/switchsync-core/internal/infrastructure/config"
	"github.com/switchsync/switchsync-core/internal/infrastructure/logging"
	statesync "github.com/switchsync/switchsync-core/internal/sync"
)

// sendBufferSize is the per-client outbound message buffer. Clients that
// fall further behind than this are dropped.
const sendBufferSize = 256

// writeWait is the maximum time allowed to write a single message.
const writeWait = 10 * time.Second

// wsMessage is the wire format for all WebSocket traffic in both directions.
//
// Inbound types: status (a state report), change, ping.
// Outbound types: status (the canonical-state broadcast), error, pong.
type wsMessage struct {
	Type     string       `json:"type"`
	DeviceID string       `json:"device_id,omitempty"`
	State    device.State `json:"state,omitempty"`
	Code     string       `json:"code,omitempty"`
	Message  string       `json:"message,omitempty"`
}

// Outbound error codes.
const (
	wsErrMalformed      = "malformed"
	wsErrDeviceNotFound = "device_not_found"
	wsErrWriteFailed    = "write_failed"
	wsErrUnknownType    = "unknown_type"
)

// Hub manages all active WebSocket connections and delivers state updates
// on behalf of the sync engine.
//
// It implements the engine's Broadcaster interface: BroadcastAll fans an
// update out to every connection, BroadcastTo targets specific connections
// by ID. Both are non-blocking; a client whose send buffer is full loses
// the message rather than stalling the engine.
//
// Thread Safety: All methods are safe for concurrent use.
type Hub struct {
	wsCfg  config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[string]*WSClient

	// engine is set once with SetEngine before the server starts.
	// The hub is created first because the engine broadcasts through it.
	engine *statesync.Engine
}

// NewHub creates a WebSocket hub.
//
// Call SetEngine before serving connections; the hub forwards report and
// change messages to the engine.
func NewHub(wsCfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		wsCfg:   wsCfg,
		logger:  logger,
		clients: make(map[string]*WSClient),
	}
}

// SetEngine wires the sync engine the hub dispatches inbound messages to.
func (h *Hub) SetEngine(engine *statesync.Engine) {
	h.engine = engine
}

// Run blocks until the context is cancelled, then closes all connections.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// BroadcastAll delivers a state update to every connected client.
func (h *Hub) BroadcastAll(update statesync.StateUpdate) {
	data, err := json.Marshal(wsMessage{
		Type:     "status",
		DeviceID: update.DeviceID,
		State:    update.State,
	})
	if err != nil {
		h.logger.Error("failed to marshal state update", "error", err)
		return
	}

	// Snapshot under read lock, send outside it.
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.trySend(data)
	}
}

// BroadcastTo delivers a state update to the named connections only.
//
// Unknown connection IDs are skipped silently; the caller's view of who
// is connected may lag behind disconnections.
func (h *Hub) BroadcastTo(connIDs []string, update statesync.StateUpdate) {
	data, err := json.Marshal(wsMessage{
		Type:     "status",
		DeviceID: update.DeviceID,
		State:    update.State,
	})
	if err != nil {
		h.logger.Error("failed to marshal state update", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(connIDs))
	for _, id := range connIDs {
		if client, ok := h.clients[id]; ok {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.trySend(data)
	}
}

// register adds a client to the hub.
func (h *Hub) register(client *WSClient) {
	h.mu.Lock()
	h.clients[client.id] = client
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("websocket client connected",
		"conn_id", client.id,
		"account_id", client.accountID,
		"total", count,
	)
}

// unregister removes a client, releases its device sessions, and closes
// its send channel. Safe to call multiple times for the same client.
func (h *Hub) unregister(client *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[client.id]
	if ok {
		delete(h.clients, client.id)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}

	released := h.engine.HandleDisconnect(client.id)
	client.closeSend()

	h.logger.Debug("websocket client disconnected",
		"conn_id", client.id,
		"device_released", released,
		"total", count,
	)
}

// closeAll disconnects every client. Used during shutdown.
func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*WSClient, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[string]*WSClient)
	h.mu.Unlock()

	for _, client := range clients {
		h.engine.HandleDisconnect(client.id)
		client.closeSend()
		client.conn.Close()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// WSClient represents a single WebSocket connection.
type WSClient struct {
	id        string
	accountID string
	conn      *websocket.Conn
	hub       *Hub

	// mu guards send and closed so a broadcast can never race the
	// channel close in closeSend.
	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// trySend queues a message without blocking.
//
// Dropping beats stalling: a wedged client must not hold up the engine's
// broadcast path. Sends after closeSend are no-ops.
func (c *WSClient) trySend(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("dropping message for slow websocket client",
			"conn_id", c.id,
		)
	}
}

// closeSend marks the client closed and closes its send channel, which
// stops the write pump. Safe to call more than once.
func (c *WSClient) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// sendMessage marshals and queues an outbound message.
func (c *WSClient) sendMessage(msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("failed to marshal websocket message", "error", err)
		return
	}
	c.trySend(data)
}

// sendError queues an error message for this client only.
func (c *WSClient) sendError(deviceID, code, message string) {
	c.sendMessage(wsMessage{
		Type:     "error",
		DeviceID: deviceID,
		Code:     code,
		Message:  message,
	})
}

// handleWS upgrades an HTTP request to a WebSocket connection.
//
// Browsers can't set headers on WebSocket requests, so the token comes
// from the "token" query parameter instead of the Authorization header.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	claims, err := auth.ParseToken(token, s.secCfg.JWT.Secret)
	if err != nil {
		writeUnauthorized(w, "Invalid or missing token")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients (controllers) send no Origin header.
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		id:        uuid.NewString(),
		accountID: claims.AccountID(),
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		hub:       s.hub,
	}

	s.hub.register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

// readPump reads messages from the connection until it closes.
//
// Runs in its own goroutine, one per connection. Handles pong responses
// to keep the read deadline fresh.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	pongTimeout := time.Duration(cfg.PongTimeout) * time.Second
	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read error",
					"conn_id", c.id,
					"error", err,
				)
			}
			return
		}
		c.handleMessage(data)
	}
}

// writePump writes queued messages and periodic pings to the connection.
//
// Runs in its own goroutine, one per connection. Exits when the send
// channel is closed by unregister.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
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

// handleMessage dispatches a single inbound message.
//
// Status reports and changes bind the connection to the device before the
// engine processes them, so the connection becomes a watcher and receives
// the device's subsequent updates. Malformed frames are rejected here,
// before they can touch the watch or the engine.
func (c *WSClient) handleMessage(data []byte) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", wsErrMalformed, "Invalid JSON")
		return
	}

	ctx := context.Background()

	switch msg.Type {
	case "status":
		if msg.DeviceID == "" || msg.State == nil {
			c.sendError(msg.DeviceID, wsErrMalformed, "status requires device_id and state")
			return
		}
		c.hub.engine.Attach(c.id, msg.DeviceID)
		if err := c.hub.engine.HandleReport(ctx, c.id, msg.DeviceID, msg.State); err != nil {
			c.sendError(msg.DeviceID, wsErrMalformed, err.Error())
		}

	case "change":
		if msg.DeviceID == "" || msg.State == nil {
			c.sendError(msg.DeviceID, wsErrMalformed, "change requires device_id and state")
			return
		}
		c.hub.engine.Attach(c.id, msg.DeviceID)
		err := c.hub.engine.HandleChange(ctx, c.id, msg.DeviceID, msg.State, device.StateHistorySourceChange)
		if err != nil {
			// Failures go to the initiator only; watchers keep the
			// last confirmed state.
			switch {
			case errors.Is(err, device.ErrDeviceNotFound):
				c.sendError(msg.DeviceID, wsErrDeviceNotFound, "Device not found")
			case errors.Is(err, device.ErrWriteFailed):
				c.sendError(msg.DeviceID, wsErrWriteFailed, "State change could not be saved")
			default:
				c.sendError(msg.DeviceID, wsErrMalformed, err.Error())
			}
		}

	case "ping":
		c.sendMessage(wsMessage{Type: "pong"})

	default:
		c.sendError("", wsErrUnknownType, "Unknown message type: "+msg.Type)
	}
}
