package websocket

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/raaihank/consolemask/internal/logger"
	"github.com/raaihank/consolemask/internal/masking"
)

// The zero CheckOrigin rejects cross-origin handshakes, so other sites the
// user visits cannot drive commands.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// CommandHandler runs a command message against a live document.
type CommandHandler interface {
	HandleCommand(ctx context.Context, action, documentID string) (masking.Ack, error)
}

// HubConfig contains configuration for the WebSocket hub
type HubConfig struct {
	BroadcastMasking     bool
	BroadcastSystem      bool
	BroadcastConnections bool
	Username             string
	Password             string
	PingInterval         time.Duration
	PongTimeout          time.Duration
	WriteTimeout         time.Duration
	MaxMessageSize       int64
	CommandTimeout       time.Duration
}

func (c *HubConfig) withDefaults() *HubConfig {
	out := *c
	if out.PongTimeout <= 0 {
		out.PongTimeout = 60 * time.Second
	}
	if out.PingInterval <= 0 || out.PingInterval >= out.PongTimeout {
		out.PingInterval = (out.PongTimeout * 9) / 10
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 10 * time.Second
	}
	if out.MaxMessageSize <= 0 {
		out.MaxMessageSize = 4096
	}
	if out.CommandTimeout <= 0 {
		out.CommandTimeout = 30 * time.Second
	}
	return &out
}

// Hub maintains the set of active clients and broadcasts events to them. It
// also implements masking.EventSink.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Events waiting to be fanned out
	broadcast chan Event

	config   *HubConfig
	commands CommandHandler
	logger   *logger.Logger

	mu    sync.RWMutex
	stats *HubStats
}

// HubStats tracks WebSocket hub statistics
type HubStats struct {
	TotalConnections   int64     `json:"total_connections"`
	ActiveConnections  int64     `json:"active_connections"`
	TotalMessages      int64     `json:"total_messages"`
	TotalBroadcasts    int64     `json:"total_broadcasts"`
	LastConnectionTime time.Time `json:"last_connection_time"`
	LastDisconnectTime time.Time `json:"last_disconnect_time"`
	LastBroadcastTime  time.Time `json:"last_broadcast_time"`
}

// NewHub creates a new WebSocket hub. commands may be nil, in which case
// command messages are answered with an error event.
func NewHub(config *HubConfig, commands CommandHandler, log *logger.Logger) *Hub {
	if config == nil {
		config = &HubConfig{}
	}
	return &Hub{
		clients:   make(map[*Client]bool),
		broadcast: make(chan Event, 256),
		config:    config.withDefaults(),
		commands:  commands,
		logger:    log.WithComponent("websocket"),
		stats:     &HubStats{},
	}
}

// Run fans out broadcasts until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("Starting WebSocket hub")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case event := <-h.broadcast:
			h.broadcastEvent(event, nil)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.stats.TotalConnections++
	h.stats.ActiveConnections++
	h.stats.LastConnectionTime = time.Now()
	active := h.stats.ActiveConnections
	h.mu.Unlock()

	h.logger.Info("Client connected",
		zap.String("client_id", client.ID),
		zap.String("client_ip", client.IP),
		zap.Int64("active_connections", active),
	)

	if h.config.BroadcastConnections {
		h.broadcastEvent(h.connectionEvent("connected", client), client)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	removed := h.removeLocked(client)
	if removed {
		h.stats.LastDisconnectTime = time.Now()
	}
	active := h.stats.ActiveConnections
	h.mu.Unlock()

	if !removed {
		return
	}

	h.logger.Info("Client disconnected",
		zap.String("client_id", client.ID),
		zap.String("client_ip", client.IP),
		zap.Int64("active_connections", active),
	)

	if h.config.BroadcastConnections {
		h.broadcastEvent(h.connectionEvent("disconnected", client), nil)
	}
}

// removeLocked drops client and closes its send channel exactly once.
func (h *Hub) removeLocked(client *Client) bool {
	if _, ok := h.clients[client]; !ok {
		return false
	}
	delete(h.clients, client)
	close(client.Send)
	h.stats.ActiveConnections--
	return true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.removeLocked(client)
	}
}

func (h *Hub) connectionEvent(action string, client *Client) Event {
	return Event{
		Type:      EventTypeConnection,
		Timestamp: time.Now(),
		Data: ConnectionEvent{
			Action:    action,
			ClientID:  client.ID,
			ClientIP:  client.IP,
			UserAgent: client.UserAgent,
		},
	}
}

// broadcastEvent delivers event to every subscribed client except exclude.
// Clients that cannot keep up are dropped.
func (h *Hub) broadcastEvent(event Event, exclude *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stats.TotalBroadcasts++
	h.stats.LastBroadcastTime = time.Now()

	for client := range h.clients {
		if client == exclude || !client.wants(event.Type) {
			continue
		}
		select {
		case client.Send <- event:
			h.stats.TotalMessages++
		default:
			h.logger.Warn("Client send channel full, closing connection",
				zap.String("client_id", client.ID),
			)
			h.removeLocked(client)
		}
	}
}

// sendTo queues event for one client. It is a no-op once the client is gone.
func (h *Hub) sendTo(client *Client, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client] {
		return
	}
	select {
	case client.Send <- event:
		h.stats.TotalMessages++
	default:
		h.logger.Warn("Client send channel full, dropping reply",
			zap.String("client_id", client.ID),
			zap.String("event_type", string(event.Type)),
		)
	}
}

// BroadcastEvent queues an event for all clients if its type is enabled.
func (h *Hub) BroadcastEvent(event Event) {
	if !h.shouldBroadcastEvent(event.Type) {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Broadcast channel full, dropping event",
			zap.String("event_type", string(event.Type)),
		)
	}
}

func (h *Hub) shouldBroadcastEvent(eventType EventType) bool {
	switch eventType {
	case EventTypeMaskApplied, EventTypeMaskRemoved:
		return h.config.BroadcastMasking
	case EventTypeSystemStatus:
		return h.config.BroadcastSystem
	case EventTypeConnection:
		return h.config.BroadcastConnections
	default:
		return false
	}
}

// Publish implements masking.EventSink. Only successful commands are
// broadcast; failures reach the caller through the ack.
func (h *Hub) Publish(ack masking.Ack) {
	if !ack.Success {
		return
	}

	eventType := EventTypeMaskApplied
	if ack.Command == masking.CommandRemove {
		eventType = EventTypeMaskRemoved
	}
	h.BroadcastEvent(Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      maskEventFromAck(ack),
	})
}

// PublishStatus broadcasts a system status snapshot.
func (h *Hub) PublishStatus(status SystemStatusEvent) {
	status.ConnectedClients = h.ClientCount()
	h.BroadcastEvent(Event{Type: EventTypeSystemStatus, Timestamp: time.Now(), Data: status})
}

func maskEventFromAck(ack masking.Ack) MaskEvent {
	ev := MaskEvent{DocumentID: ack.DocumentID, Command: string(ack.Command)}
	if ack.Outcome == nil {
		return ev
	}
	ev.Documents = len(ack.Outcome.Documents)
	ev.Markers = ack.Outcome.Markers()
	for _, d := range ack.Outcome.Documents {
		ev.Removed += d.Removed
	}
	ev.Skipped = len(ack.Outcome.Skipped)
	ev.Patterns = ack.Outcome.Patterns
	ev.DurationMS = float64(ack.Outcome.Duration.Microseconds()) / 1000
	return ev
}

// HandleWebSocket upgrades the request and serves the client until it
// disconnects. Basic auth is enforced when a username is configured.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="consolemask"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          "client_" + uuid.New().String(),
		Conn:        conn,
		Send:        make(chan Event, 256),
		ConnectedAt: time.Now(),
		IP:          getClientIP(r),
		UserAgent:   r.UserAgent(),
	}

	h.registerClient(client)

	go h.handleClientWrite(client)
	go h.handleClientRead(client)
}

func (h *Hub) authorized(r *http.Request) bool {
	if h.config.Username == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(h.config.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(h.config.Password)) == 1
	return userOK && passOK
}

func (h *Hub) handleClientWrite(client *Client) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Conn.WriteJSON(event); err != nil {
				h.logger.Error("Failed to write WebSocket message",
					zap.String("client_id", client.ID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handleClientRead(client *Client) {
	defer func() {
		h.unregisterClient(client)
		client.Conn.Close()
	}()

	conn := client.Conn
	conn.SetReadLimit(h.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	})

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket read error",
					zap.String("client_id", client.ID),
					zap.Error(err),
				)
			}
			return
		}

		h.handleClientMessage(client, msg)
	}
}

func (h *Hub) handleClientMessage(client *Client, msg ClientMessage) {
	switch msg.Type {
	case "subscribe":
		var subscription SubscriptionRequest
		if err := json.Unmarshal(msg.Data, &subscription); err != nil {
			h.sendError(client, fmt.Sprintf("invalid subscription: %v", err))
			return
		}
		client.setSubscription(&subscription)
		h.logger.Debug("Client subscription updated",
			zap.String("client_id", client.ID),
			zap.Any("events", subscription.Events),
		)

	case "ping":
		h.sendTo(client, Event{
			Type:      EventTypePong,
			Timestamp: time.Now(),
			Data:      map[string]string{"message": "pong"},
		})

	case "command":
		h.handleCommand(client, msg.Data)

	default:
		h.sendError(client, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// handleCommand runs the command on the reading goroutine, so one client's
// commands settle in the order it sent them.
func (h *Hub) handleCommand(client *Client, data json.RawMessage) {
	var req CommandRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendError(client, fmt.Sprintf("invalid command: %v", err))
		return
	}
	if h.commands == nil {
		h.sendError(client, "commands are not supported")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.CommandTimeout)
	defer cancel()

	ack, err := h.commands.HandleCommand(ctx, req.Action, req.DocumentID)
	if err != nil {
		ack = masking.Ack{
			Success:    false,
			Command:    masking.Command(req.Action),
			DocumentID: req.DocumentID,
			Error:      err.Error(),
		}
	}

	h.sendTo(client, Event{
		Type:      EventTypeCommandAck,
		Timestamp: time.Now(),
		Data:      ack,
	})
}

func (h *Hub) sendError(client *Client, message string) {
	h.sendTo(client, Event{
		Type:      EventTypeError,
		Timestamp: time.Now(),
		Data:      ErrorEvent{Message: message},
	})
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := *h.stats
	stats.ActiveConnections = int64(len(h.clients))
	return stats
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
