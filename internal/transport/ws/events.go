package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dkolar7/paperback/internal/domain"
)

// Event types - Client → Server
const (
	EventTypeJoinRoom    = "join_room"
	EventTypeLeaveRoom   = "leave_room"
	EventTypeSendMessage = "send_message"
	EventTypeTypingStart = "typing_start"
	EventTypeTypingStop  = "typing_stop"
	EventTypePing        = "ping"
)

// Event types - Server → Client
const (
	EventTypePresenceChanged      = "presence_changed"
	EventTypeMessagePersisted     = "message_persisted"
	EventTypeConversationActivity = "conversation_activity"
	EventTypeSendAcknowledged     = "send_acknowledged"
	EventTypeTypingChanged        = "typing_changed"
	EventTypeRoomJoined           = "room_joined"
	EventTypeOperationFailed      = "operation_failed"
	EventTypePong                 = "pong"
)

// TypingExpiry is how long a typing marker stays meaningful without a
// refresh. Consumers rendering "is typing" expire it locally after this
// window; the server sends no sweep events for stale markers.
const TypingExpiry = 6 * time.Second

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type           string          `json:"type"`
	ConversationID *uuid.UUID      `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Timestamp      int64           `json:"ts,omitempty"`
}

// --- Client → Server payloads ---

type RoomPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

type SendMessagePayload struct {
	RecipientID uuid.UUID          `json:"recipient_id"`
	Type        string             `json:"type,omitempty"`
	Content     string             `json:"content"`
	Attachment  *domain.Attachment `json:"attachment,omitempty"`
	TempID      string             `json:"temp_id,omitempty"`
}

// --- Server → Client payloads ---

type PresencePayload struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Online   bool      `json:"online"`
}

type MessagePayload struct {
	domain.Message
}

type ConversationActivityPayload struct {
	Message        domain.Message `json:"message"`
	ConversationID uuid.UUID      `json:"conversation_id"`
}

type AckPayload struct {
	TempID  string         `json:"temp_id,omitempty"`
	Message domain.Message `json:"message"`
}

type TypingChangedPayload struct {
	UserID         uuid.UUID `json:"user_id"`
	Username       string    `json:"username"`
	ConversationID uuid.UUID `json:"conversation_id"`
	IsTyping       bool      `json:"is_typing"`
}

type ErrorPayload struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, conversationID *uuid.UUID, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:           eventType,
		ConversationID: conversationID,
		Payload:        data,
		Timestamp:      time.Now().Unix(),
	}, nil
}
