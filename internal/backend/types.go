// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

// DefaultSystemPrompt is sent with every request unless overridden.
const DefaultSystemPrompt = "You are a helpful assistant for SQL queries."

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ContentPart is one typed piece of message content.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// WireMessage is a message in the shape the backend expects.
type WireMessage struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// NewTextMessage wraps plain text as a single text part.
func NewTextMessage(role, text string) WireMessage {
	return WireMessage{
		Role:    role,
		Content: []ContentPart{{Type: "text", Text: text}},
	}
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	System    string        `json:"system,omitempty"`
	Tools     []any         `json:"tools"`
	Messages  []WireMessage `json:"messages"`
	ShowQuery bool          `json:"show_query"`
}

// =============================================================================
// STREAM TYPES
// =============================================================================

// Event types in the data: stream.
const (
	EventTextDelta = "text-delta"
	doneMarker     = "[DONE]"
	dataPrefix     = "data: "
)

// StreamEvent is one decoded data: payload.
type StreamEvent struct {
	Type      string `json:"type"`
	TextDelta string `json:"textDelta,omitempty"`
}

// Delta is a piece of assistant text delivered to stream callbacks.
type Delta struct {
	Text string
	Done bool
}

// StreamCallback receives deltas in arrival order.
type StreamCallback func(Delta)

// =============================================================================
// CONNECTION STATUS
// =============================================================================

// Status is the last known backend reachability.
type Status string

const (
	StatusUnknown      Status = "unknown"
	StatusChecking     Status = "checking"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// ConnectionResult is the outcome of a connection test.
type ConnectionResult struct {
	Connected bool   `json:"connected"`
	Status    Status `json:"status"`
	Detail    string `json:"detail"`
}
