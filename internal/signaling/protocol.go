package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/overdive/call-relay/internal/auth"
)

type MessageType string

// Client → server requests.
const (
	TypeCheckRoom    MessageType = "check-room"
	TypeAutoMatch    MessageType = "auto-match"
	TypeJoinRoom     MessageType = "join-room"
	TypeLeaveRoom    MessageType = "leave-room"
	TypeOffer        MessageType = "offer"
	TypeAnswer       MessageType = "answer"
	TypeICECandidate MessageType = "ice-candidate"
)

// Server → client replies and notifications.
const (
	TypeRoomStatus  MessageType = "room-status"
	TypeMatchResult MessageType = "match-result"
	TypeJoinResult  MessageType = "join-result"
	TypeUserJoined  MessageType = "user-joined"
	TypeUserLeft    MessageType = "user-left"
	TypeError       MessageType = "error"
)

// Error codes surfaced to the requesting connection. Room-operation
// failures never close the connection.
const (
	CodeRoomNotFound = "ROOM_NOT_FOUND"
	CodeNoPeer       = "NO_PEER"
)

// join-result error strings.
const (
	errRoomNotFound = "Room not found"
	errRoomFull     = "Room is full"
)

// Message is the single wire envelope for both directions. SDP and
// Candidate are carried as raw JSON: the relay forwards them verbatim and
// never inspects their contents.
type Message struct {
	Type   MessageType `json:"type"`
	RoomID string      `json:"roomId,omitempty"`

	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`

	// Server → client only.
	Exists    *bool           `json:"exists,omitempty"`
	Success   *bool           `json:"success,omitempty"`
	IsCreator *bool           `json:"isCreator,omitempty"`
	From      *auth.Principal `json:"from,omitempty"`
	Error     string          `json:"error,omitempty"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// ParseMessage decodes one inbound message strictly: unknown fields,
// trailing data, and server-only fields are all rejected.
func ParseMessage(data []byte) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var msg Message
	if err := dec.Decode(&msg); err != nil {
		return Message{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Message{}, fmt.Errorf("unexpected trailing data")
	}
	if err := msg.validateInbound(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (m Message) validateInbound() error {
	if m.Exists != nil || m.Success != nil || m.IsCreator != nil || m.From != nil ||
		m.Error != "" || m.Code != "" || m.Message != "" {
		return fmt.Errorf("%s message has server-only fields", m.Type)
	}

	switch m.Type {
	case TypeCheckRoom, TypeLeaveRoom:
		if m.RoomID == "" {
			return fmt.Errorf("%s message missing roomId", m.Type)
		}
		if m.SDP != nil || m.Candidate != nil {
			return fmt.Errorf("%s message has unexpected fields", m.Type)
		}
	case TypeAutoMatch:
		if m.RoomID != "" || m.SDP != nil || m.Candidate != nil {
			return fmt.Errorf("%s message has unexpected fields", m.Type)
		}
	case TypeJoinRoom:
		// roomId is optional: absent means "create a room for me".
		if m.SDP != nil || m.Candidate != nil {
			return fmt.Errorf("%s message has unexpected fields", m.Type)
		}
	case TypeOffer, TypeAnswer:
		if m.RoomID == "" {
			return fmt.Errorf("%s message missing roomId", m.Type)
		}
		if len(m.SDP) == 0 {
			return fmt.Errorf("%s message missing sdp", m.Type)
		}
		if m.Candidate != nil {
			return fmt.Errorf("%s message has unexpected fields", m.Type)
		}
	case TypeICECandidate:
		if m.RoomID == "" {
			return fmt.Errorf("%s message missing roomId", m.Type)
		}
		if len(m.Candidate) == 0 {
			return fmt.Errorf("%s message missing candidate", m.Type)
		}
		if m.SDP != nil {
			return fmt.Errorf("%s message has unexpected fields", m.Type)
		}
	default:
		return fmt.Errorf("unsupported message type %q", m.Type)
	}
	return nil
}

func boolPtr(v bool) *bool { return &v }
