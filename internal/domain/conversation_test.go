package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPair(t *testing.T) {
	req := require.New(t)

	a := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	b := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	x1, y1 := CanonicalPair(a, b)
	x2, y2 := CanonicalPair(b, a)
	req.Equal(x1, x2)
	req.Equal(y1, y2)
	req.Equal(a, x1)
	req.Equal(b, y1)
}

func TestConversationParticipants(t *testing.T) {
	req := require.New(t)

	u1 := uuid.New()
	u2 := uuid.New()
	a, b := CanonicalPair(u1, u2)
	conv := Conversation{User1ID: a, User2ID: b}

	req.True(conv.HasParticipant(u1))
	req.True(conv.HasParticipant(u2))
	req.False(conv.HasParticipant(uuid.New()))

	req.Equal(u2, conv.OtherParticipant(u1))
	req.Equal(u1, conv.OtherParticipant(u2))
}

func TestConversationHiddenForUser(t *testing.T) {
	req := require.New(t)

	u1 := uuid.New()
	u2 := uuid.New()
	conv := Conversation{HiddenFor: []uuid.UUID{u1}}

	req.True(conv.HiddenForUser(u1))
	req.False(conv.HiddenForUser(u2))
	req.False((&Conversation{}).HiddenForUser(u1))
}

func TestMessagePreview(t *testing.T) {
	req := require.New(t)

	req.Equal("hey", (&Message{Type: MessageTypeText, Content: "hey"}).Preview())
	req.Equal("Sent an image", (&Message{Type: MessageTypeImage}).Preview())
	req.Equal("Sent a video", (&Message{Type: MessageTypeVideo}).Preview())
	req.Equal("Sent a document", (&Message{Type: MessageTypeDocument}).Preview())
	// A caption wins over the placeholder
	req.Equal("look at this", (&Message{Type: MessageTypeImage, Content: "look at this"}).Preview())
}

func TestValidMessageType(t *testing.T) {
	for _, typ := range []string{MessageTypeText, MessageTypeImage, MessageTypeVideo, MessageTypeDocument} {
		require.True(t, ValidMessageType(typ), typ)
	}
	require.False(t, ValidMessageType("audio"))
	require.False(t, ValidMessageType(""))
}
