package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeMaskApplied is broadcast after a successful apply command
	EventTypeMaskApplied EventType = "mask_applied"
	// EventTypeMaskRemoved is broadcast after a successful remove command
	EventTypeMaskRemoved EventType = "mask_removed"
	// EventTypeCommandAck answers a command message, to its sender only
	EventTypeCommandAck EventType = "command_ack"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a ping message
	EventTypePong EventType = "pong"
	// EventTypeError reports a malformed client message
	EventTypeError EventType = "error"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// MaskEvent summarises a settled apply or remove command
type MaskEvent struct {
	DocumentID string   `json:"document_id,omitempty"`
	Command    string   `json:"command"`
	Documents  int      `json:"documents"`
	Markers    int      `json:"markers"`
	Removed    int      `json:"removed"`
	Skipped    int      `json:"skipped_frames"`
	Patterns   []string `json:"patterns,omitempty"`
	DurationMS float64  `json:"duration_ms"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string   `json:"status"`
	Uptime           string   `json:"uptime"`
	Pages            int      `json:"pages"`
	ActivePatterns   []string `json:"active_patterns"`
	StoreBackend     string   `json:"store_backend"`
	ConnectedClients int      `json:"connected_clients"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ErrorEvent carries a message the server could not act on
type ErrorEvent struct {
	Message string `json:"message"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}

// CommandRequest asks the server to run apply or remove on a live document
type CommandRequest struct {
	Action     string `json:"action"`
	DocumentID string `json:"document_id"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	mu           sync.Mutex
	subscription *SubscriptionRequest
}

func (c *Client) setSubscription(s *SubscriptionRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscription = s
}

func (c *Client) wants(t EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subscription == nil {
		return true
	}
	for _, e := range c.subscription.Events {
		if e == t {
			return true
		}
	}
	return false
}
