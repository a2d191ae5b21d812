package ws

import "encoding/json"

// Event identifies the kind of realtime message.
type Event string

const (
	// Client to Server events.
	EventJoinProject  Event = "join_project"  // Subscribe to a project's room
	EventLeaveProject Event = "leave_project" // Unsubscribe from a room
	EventSendPatch    Event = "send_patch"    // Submit an operation

	// Server to Client events.
	EventAck   Event = "ack"   // Reply to a client event carrying an id
	EventPatch Event = "patch" // An operation accepted on a joined project
	EventError Event = "error" // A message the server could not handle
)

// Message is the envelope for all realtime communication.
// ID correlates a client event with its ack and is echoed verbatim.
type Message struct {
	Event Event           `json:"event"`
	ID    json.RawMessage `json:"id,omitempty"`
	Data  any             `json:"data,omitempty"`
}

// Inbound is a message read from a client with its data left raw.
type Inbound struct {
	Event Event           `json:"event"`
	ID    json.RawMessage `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ProjectPayload names a room to join or leave.
type ProjectPayload struct {
	Project string `json:"project"`
}

// AckPayload answers a client event.
type AckPayload struct {
	OK      bool   `json:"ok"`
	Version int    `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorPayload reports a message the server could not handle.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeUnknownEvent   = "unknown_event"
	ErrorCodeInternalError  = "internal_error"
)
