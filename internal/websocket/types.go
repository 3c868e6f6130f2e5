package websocket

import (
	"time"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeEmbedding is emitted when a sentence embedding is produced
	EventTypeEmbedding EventType = "embedding"
	// EventTypeClassification is emitted when a text is classified
	EventTypeClassification EventType = "classification"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// EmbeddingEvent describes one completed embedding request
type EmbeddingEvent struct {
	RequestID  string  `json:"request_id"`
	Texts      int     `json:"texts"`
	Dims       int     `json:"dims"`
	TokenCount int     `json:"token_count"`
	CacheHit   bool    `json:"cache_hit"`
	DurationMS float64 `json:"duration_ms"`
}

// ClassificationEvent describes one completed classification request
type ClassificationEvent struct {
	RequestID  string  `json:"request_id"`
	Texts      int     `json:"texts"`
	Label      int     `json:"label"`
	LabelText  string  `json:"label_text,omitempty"`
	Confidence float32 `json:"confidence"`
	DurationMS float64 `json:"duration_ms"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
	Message  string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}

