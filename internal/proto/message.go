package proto

import "encoding/json"

// Message types exchanged over the collaboration socket. Every frame is a
// flat JSON object carrying a mandatory "type" plus type-specific fields.
const (
	TypeAuth        = "auth"
	TypeAuthSuccess = "auth:success"
	TypeAuthError   = "auth:error"
	TypeRoomJoin    = "room:join"
	TypeRoomJoined  = "room:joined"
	TypeRoomLeave   = "room:leave"
	TypeRoomLeft    = "room:left"

	TypePresenceJoin  = "presence:join"
	TypePresenceLeave = "presence:leave"

	TypeError = "error"
)

// Envelope extracts only the type tag from an inbound frame. The remaining
// fields are decoded by whichever handler owns the type.
type Envelope struct {
	Type string `json:"type"`
}

// PeekType returns the type tag of a raw frame, or "" if the frame is not a
// JSON object or carries no type.
func PeekType(raw []byte) string {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	return env.Type
}

// Auth is the first frame a client must send: a bearer credential.
type Auth struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// AuthSuccess acknowledges a successful handshake.
type AuthSuccess struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// AuthError reports a failed handshake; the server closes the connection
// after sending it.
type AuthError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// RoomJoin requests membership in the collaboration room for one trip.
type RoomJoin struct {
	Type   string `json:"type"`
	TripID string `json:"tripId"`
}

// RoomJoined acknowledges a join and carries the authoritative member list
// as of the join instant.
type RoomJoined struct {
	Type        string   `json:"type"`
	TripID      string   `json:"tripId"`
	ActiveUsers []string `json:"activeUsers"`
}

// RoomLeft acknowledges an explicit leave.
type RoomLeft struct {
	Type string `json:"type"`
}

// Presence notifies remaining members that a user joined or left the room.
type Presence struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// Error is the generic failure reply; the connection stays open unless the
// failure is an authentication one. Code is a machine-readable tag alongside
// the human-readable message.
type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// NewError builds a coded error reply.
func NewError(code, message string) Error {
	return Error{Type: TypeError, Code: code, Message: message}
}
