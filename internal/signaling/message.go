package signaling

import (
	"encoding/json"
	"fmt"
)

// Message is every websocket frame exchanged between a participant and the
// rendezvous service. Directed messages carry To; the service stamps From.
type Message struct {
	Type    string          `json:"type"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Room    string          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants.
const (
	MessageTypeRegister   = "user:register"
	MessageTypeRegistered = "user:registered"
	MessageTypeRoomJoin   = "room:join"
	MessageTypeRoomJoined = "room:joined"
	MessageTypeRoomLeave  = "room:leave"
	MessageTypePeerJoined = "user:joined"
	MessageTypePeerLeft   = "user:left"
	MessageTypeError      = "error"

	MessageTypeCallOffer           = "user:call"
	MessageTypeCallAnswer          = "call:accepted"
	MessageTypeCallDeclined        = "call:declined"
	MessageTypeIceCandidate        = "ice:candidate"
	MessageTypeRenegotiationOffer  = "peer:nego:needed"
	MessageTypeRenegotiationAnswer = "peer:nego:done"
	MessageTypeCallEnded           = "call:ended"
)

// Directed reports whether t is relayed participant to participant.
func Directed(t string) bool {
	switch t {
	case MessageTypeCallOffer, MessageTypeCallAnswer, MessageTypeCallDeclined,
		MessageTypeIceCandidate, MessageTypeRenegotiationOffer,
		MessageTypeRenegotiationAnswer, MessageTypeCallEnded:
		return true
	}
	return false
}

// RegisterPayload is sent once after dialing.
type RegisterPayload struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// RegisteredPayload carries the transport id the service assigned.
type RegisteredPayload struct {
	ID string `json:"id"`
}

// JoinPayload asks to enter a room. An empty Room asks the service to mint one.
type JoinPayload struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Room  string `json:"room"`
}

// RoomJoinedPayload acknowledges a join.
type RoomJoinedPayload struct {
	Room     string `json:"room"`
	Capacity int    `json:"capacity,omitempty"`
}

// PeerPayload describes another occupant.
type PeerPayload struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// ErrorPayload represents error messages from server.
type ErrorPayload struct {
	Error string `json:"error"`
}

// NewMessage builds a message with payload marshalled to JSON. A nil payload
// leaves Payload empty.
func NewMessage(msgType, to string, payload any) (*Message, error) {
	msg := &Message{Type: msgType, To: to}
	if payload == nil {
		return msg, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	msg.Payload = b
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("decode %s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s: %w", m.Type, err)
	}
	return nil
}
