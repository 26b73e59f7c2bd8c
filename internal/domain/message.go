package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeVideo    = "video"
	MessageTypeDocument = "document"
)

// ValidMessageType reports whether t is one of the supported message types.
func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo, MessageTypeDocument:
		return true
	}
	return false
}

type Message struct {
	ID             uuid.UUID   `json:"id"`
	ConversationID uuid.UUID   `json:"conversation_id"`
	SenderID       uuid.UUID   `json:"sender_id"`
	Type           string      `json:"type"`
	Content        string      `json:"content"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	Edited         bool        `json:"edited"`
	EditedAt       *time.Time  `json:"edited_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	// Joined fields
	SenderUsername    string `json:"sender_username,omitempty"`
	SenderDisplayName string `json:"sender_display_name,omitempty"`
}

// Attachment describes a non-text payload already uploaded to the
// external file store. The server never touches the bytes; it carries
// the descriptor through as-is.
type Attachment struct {
	URL       string `json:"url"`
	StorageID string `json:"storage_id"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	ByteSize  int64  `json:"byte_size"`
}

// Preview returns the text used for a conversation's last-message
// summary: the content for text messages, a placeholder otherwise.
func (m *Message) Preview() string {
	if m.Content != "" {
		return m.Content
	}
	switch m.Type {
	case MessageTypeImage:
		return "Sent an image"
	case MessageTypeVideo:
		return "Sent a video"
	case MessageTypeDocument:
		return "Sent a document"
	}
	return ""
}
