package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EventType tags every message exchanged with clients.
type EventType string

// Inbound events.
const (
	EventJoinRoom        EventType = "join-room"
	EventOffer           EventType = "offer"
	EventAnswer          EventType = "answer"
	EventICECandidate    EventType = "ice-candidate"
	EventConnectionState EventType = "connection-state"
	EventLeaveRoom       EventType = "leave-room"
	EventPing            EventType = "ping"
)

// Outbound events.
const (
	EventConnected      EventType = "connected"
	EventRoomJoined     EventType = "room-joined"
	EventUserJoined     EventType = "user-joined"
	EventUserLeft       EventType = "user-left"
	EventServerShutdown EventType = "server-shutdown"
	EventError          EventType = "error"
	EventPong           EventType = "pong"
)

// ClientMessage is the union of all inbound event payloads. SDP and
// candidate bodies are opaque to the relay and carried as raw JSON.
//
// Unknown fields are tolerated so clients can evolve independently; unknown
// types and missing required fields are rejected by Validate.
type ClientMessage struct {
	Type      EventType       `json:"type"`
	RoomID    string          `json:"roomId,omitempty"`
	TargetID  string          `json:"targetId,omitempty"`
	Username  string          `json:"username,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	State     string          `json:"state,omitempty"`
}

// ValidationError reports a malformed inbound payload. It is surfaced to the
// sending connection only and never mutates registry state.
type ValidationError struct {
	Event  EventType
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Event, e.Reason)
}

func ParseClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, &ValidationError{Event: "message", Reason: "malformed json"}
	}
	if err := msg.Validate(); err != nil {
		return ClientMessage{}, err
	}
	return msg, nil
}

func (m ClientMessage) Validate() error {
	switch m.Type {
	case EventJoinRoom, EventLeaveRoom:
		if m.RoomID == "" {
			return &ValidationError{Event: m.Type, Reason: "missing roomId"}
		}
	case EventOffer:
		if isAbsent(m.Offer) {
			return &ValidationError{Event: m.Type, Reason: "missing offer"}
		}
		if m.RoomID == "" {
			return &ValidationError{Event: m.Type, Reason: "missing roomId"}
		}
		if m.TargetID == "" {
			return &ValidationError{Event: m.Type, Reason: "missing targetId"}
		}
	case EventAnswer:
		if isAbsent(m.Answer) {
			return &ValidationError{Event: m.Type, Reason: "missing answer"}
		}
		if m.RoomID == "" {
			return &ValidationError{Event: m.Type, Reason: "missing roomId"}
		}
		if m.TargetID == "" {
			return &ValidationError{Event: m.Type, Reason: "missing targetId"}
		}
	case EventICECandidate:
		// A null or absent candidate body is a valid end-of-candidates
		// marker and is forwarded as-is.
		if m.RoomID == "" {
			return &ValidationError{Event: m.Type, Reason: "missing roomId"}
		}
	case EventConnectionState:
		if m.RoomID == "" {
			return &ValidationError{Event: m.Type, Reason: "missing roomId"}
		}
		if m.State == "" {
			return &ValidationError{Event: m.Type, Reason: "missing state"}
		}
	case EventPing:
	default:
		return &ValidationError{Event: m.Type, Reason: "unknown event type"}
	}
	return nil
}

// isAbsent reports whether a required raw JSON value is missing. JSON null
// counts as missing for required fields.
func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// Member is a room participant as reported to joining clients.
type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// ServerMessage is the union of all outbound event payloads. Every outbound
// message carries a server-stamped timestamp in Unix milliseconds.
type ServerMessage struct {
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"`
	ID        string          `json:"id,omitempty"`
	Version   string          `json:"version,omitempty"`
	Message   string          `json:"message,omitempty"`
	RoomID    string          `json:"roomId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Username  string          `json:"username,omitempty"`
	From      string          `json:"from,omitempty"`
	Members   []Member        `json:"members,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	State     string          `json:"state,omitempty"`
}
