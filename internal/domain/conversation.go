package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a direct conversation between exactly two users.
// User1ID < User2ID always holds (canonical pair order), so a given pair
// maps to exactly one row.
type Conversation struct {
	ID            uuid.UUID    `json:"id"`
	User1ID       uuid.UUID    `json:"user1_id"`
	User2ID       uuid.UUID    `json:"user2_id"`
	LastMessageAt time.Time    `json:"last_message_at"`
	LastMessage   *LastMessage `json:"last_message,omitempty"`
	HiddenFor     []uuid.UUID  `json:"-"`
	CreatedAt     time.Time    `json:"created_at"`
	// Joined fields for the listing endpoint
	OtherUserID          uuid.UUID `json:"other_user_id"`
	OtherUserUsername    string    `json:"other_username,omitempty"`
	OtherUserDisplayName string    `json:"other_display_name,omitempty"`
}

// LastMessage is the denormalized summary kept on the conversation so
// listings don't need a join into messages.
type LastMessage struct {
	Content  string    `json:"content"`
	SenderID uuid.UUID `json:"sender_id"`
	Type     string    `json:"type"`
}

// CanonicalPair orders two user IDs so that (a,b) and (b,a) resolve to
// the same conversation row.
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

// HasParticipant reports whether id is one of the two participants.
func (c *Conversation) HasParticipant(id uuid.UUID) bool {
	return c.User1ID == id || c.User2ID == id
}

// OtherParticipant returns the participant that is not id. Callers must
// have checked HasParticipant first.
func (c *Conversation) OtherParticipant(id uuid.UUID) uuid.UUID {
	if c.User1ID == id {
		return c.User2ID
	}
	return c.User1ID
}

// HiddenForUser reports whether the given participant has hidden this
// conversation from their own list.
func (c *Conversation) HiddenForUser(id uuid.UUID) bool {
	for _, h := range c.HiddenFor {
		if h == id {
			return true
		}
	}
	return false
}
