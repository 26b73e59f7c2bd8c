package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dkolar7/paperback/internal/domain"
)

type chatFixture struct {
	svc      *ChatService
	convSvc  *ConversationService
	convRepo *fakeConversationRepo
	msgRepo  *fakeMessageRepo
	blocks   *fakeBlockRepo
	notifier *recordingNotifier
}

func newChatFixture(users ...*domain.User) *chatFixture {
	convRepo := newFakeConversationRepo()
	msgRepo := newFakeMessageRepo(convRepo)
	blocks := newFakeBlockRepo()
	convSvc := NewConversationService(convRepo, msgRepo, newFakeUserRepo(users...))
	svc := NewChatService(convSvc, msgRepo, blocks, zap.NewNop())
	notifier := &recordingNotifier{}
	svc.SetNotifier(notifier)
	return &chatFixture{
		svc:      svc,
		convSvc:  convSvc,
		convRepo: convRepo,
		msgRepo:  msgRepo,
		blocks:   blocks,
		notifier: notifier,
	}
}

func TestSend_FirstContactCreatesConversation(t *testing.T) {
	req := require.New(t)
	alice := newTestUser("alice")
	bob := newTestUser("bob")
	fx := newChatFixture(alice, bob)
	ctx := context.Background()

	msg, conv, err := fx.svc.Send(ctx, alice.ID, SendInput{
		RecipientID: bob.ID,
		Content:     "hi",
	})
	req.NoError(err)

	// One conversation with the canonical pair
	req.Len(fx.convRepo.convs, 1)
	req.True(conv.HasParticipant(alice.ID))
	req.True(conv.HasParticipant(bob.ID))

	// One stored message, defaulted to text, with a store timestamp
	req.Len(fx.msgRepo.messages, 1)
	req.Equal("hi", msg.Content)
	req.Equal(domain.MessageTypeText, msg.Type)
	req.Equal(alice.ID, msg.SenderID)
	req.False(msg.CreatedAt.IsZero())

	// Summary refreshed in the same step
	stored, err := fx.convRepo.GetByID(ctx, conv.ID)
	req.NoError(err)
	req.NotNil(stored.LastMessage)
	req.Equal("hi", stored.LastMessage.Content)
	req.Equal(alice.ID, stored.LastMessage.SenderID)
	req.Equal(msg.CreatedAt, stored.LastMessageAt)

	// Fan-out: room broadcast plus recipient activity
	req.Len(fx.notifier.persisted, 1)
	req.Equal(msg.ID, fx.notifier.persisted[0].ID)
	req.Len(fx.notifier.activity, 1)
	req.Equal(bob.ID, fx.notifier.activity[0].recipientID)
}

func TestSend_BlockedEitherDirection(t *testing.T) {
	req := require.New(t)
	alice := newTestUser("alice")
	bob := newTestUser("bob")
	ctx := context.Background()

	for _, pair := range [][2]uuid.UUID{
		{alice.ID, bob.ID},
		{bob.ID, alice.ID},
	} {
		fx := newChatFixture(alice, bob)
		req.NoError(fx.blocks.Block(ctx, pair[0], pair[1]))

		_, _, err := fx.svc.Send(ctx, alice.ID, SendInput{RecipientID: bob.ID, Content: "hi"})
		req.ErrorIs(err, ErrBlocked)

		// Nothing persisted, nothing broadcast
		req.Empty(fx.msgRepo.messages)
		req.Empty(fx.convRepo.convs)
		req.Empty(fx.notifier.persisted)
		req.Empty(fx.notifier.activity)
	}
}

func TestSend_RecipientNotFound(t *testing.T) {
	req := require.New(t)
	alice := newTestUser("alice")
	fx := newChatFixture(alice)

	_, _, err := fx.svc.Send(context.Background(), alice.ID, SendInput{
		RecipientID: uuid.New(),
		Content:     "hi",
	})
	req.ErrorIs(err, ErrRecipientNotFound)
	req.Empty(fx.notifier.persisted)
}

func TestSend_InvalidInput(t *testing.T) {
	req := require.New(t)
	alice := newTestUser("alice")
	bob := newTestUser("bob")
	fx := newChatFixture(alice, bob)
	ctx := context.Background()

	_, _, err := fx.svc.Send(ctx, alice.ID, SendInput{RecipientID: bob.ID, Type: "audio", Content: "x"})
	req.ErrorIs(err, ErrInvalidMessageType)

	_, _, err = fx.svc.Send(ctx, alice.ID, SendInput{RecipientID: bob.ID})
	req.ErrorIs(err, ErrEmptyMessage)
}

func TestSend_AttachmentOnlyMessage(t *testing.T) {
	req := require.New(t)
	alice := newTestUser("alice")
	bob := newTestUser("bob")
	fx := newChatFixture(alice, bob)

	att := &domain.Attachment{
		URL:       "https://files.example.com/a.png",
		StorageID: "a",
		FileName:  "a.png",
		MimeType:  "image/png",
		ByteSize:  1024,
	}
	msg, conv, err := fx.svc.Send(context.Background(), alice.ID, SendInput{
		RecipientID: bob.ID,
		Type:        domain.MessageTypeImage,
		Attachment:  att,
	})
	req.NoError(err)
	req.Equal(att, msg.Attachment)

	stored, err := fx.convRepo.GetByID(context.Background(), conv.ID)
	req.NoError(err)
	req.Equal("Sent an image", stored.LastMessage.Content)
}

func TestSend_PersistenceFailureIsTerminal(t *testing.T) {
	req := require.New(t)
	alice := newTestUser("alice")
	bob := newTestUser("bob")
	fx := newChatFixture(alice, bob)
	fx.msgRepo.appendErr = errors.New("disk full")

	_, _, err := fx.svc.Send(context.Background(), alice.ID, SendInput{RecipientID: bob.ID, Content: "hi"})
	req.Error(err)
	req.NotErrorIs(err, ErrBlocked)
	req.Empty(fx.msgRepo.messages)
	req.Empty(fx.notifier.persisted)
	req.Empty(fx.notifier.activity)
}

func TestSend_UnhidesConversationForRecipient(t *testing.T) {
	req := require.New(t)
	alice := newTestUser("alice")
	bob := newTestUser("bob")
	fx := newChatFixture(alice, bob)
	ctx := context.Background()

	_, conv, err := fx.svc.Send(ctx, alice.ID, SendInput{RecipientID: bob.ID, Content: "hi"})
	req.NoError(err)

	// Alice hides the conversation, then Bob writes into it
	req.NoError(fx.convSvc.Hide(ctx, alice.ID, conv.ID))
	list, err := fx.convSvc.List(ctx, alice.ID)
	req.NoError(err)
	req.Empty(list)

	_, _, err = fx.svc.Send(ctx, bob.ID, SendInput{RecipientID: alice.ID, Content: "you there?"})
	req.NoError(err)

	list, err = fx.convSvc.List(ctx, alice.ID)
	req.NoError(err)
	req.Len(list, 1)
	req.Equal(conv.ID, list[0].ID)
	req.Equal("you there?", list[0].LastMessage.Content)
}

func TestSend_OfflineRecipientStillPersists(t *testing.T) {
	req := require.New(t)
	alice := newTestUser("alice")
	bob := newTestUser("bob")

	// No notifier wired at all: nobody is connected.
	convRepo := newFakeConversationRepo()
	msgRepo := newFakeMessageRepo(convRepo)
	convSvc := NewConversationService(convRepo, msgRepo, newFakeUserRepo(alice, bob))
	svc := NewChatService(convSvc, msgRepo, newFakeBlockRepo(), zap.NewNop())

	msg, _, err := svc.Send(context.Background(), alice.ID, SendInput{RecipientID: bob.ID, Content: "hi"})
	req.NoError(err)
	req.Len(msgRepo.messages, 1)

	// Bob sees it on his next listing, no redelivery needed
	list, err := convSvc.List(context.Background(), bob.ID)
	req.NoError(err)
	req.Len(list, 1)
	req.Equal(msg.Content, list[0].LastMessage.Content)
}

func TestSend_ConcurrentAppendsKeepTimestampOrder(t *testing.T) {
	req := require.New(t)
	alice := newTestUser("alice")
	bob := newTestUser("bob")
	fx := newChatFixture(alice, bob)
	ctx := context.Background()

	// Resolve up front so every goroutine contends on the same
	// conversation's append path, not on first-contact creation.
	conv, err := fx.convSvc.ResolveOrCreate(ctx, alice.ID, bob.ID)
	req.NoError(err)

	const senders = 16
	var wg sync.WaitGroup
	errs := make(chan error, senders)
	for i := 0; i < senders; i++ {
		sender, recipient := alice.ID, bob.ID
		if i%2 == 1 {
			sender, recipient = recipient, sender
		}
		wg.Add(1)
		go func(sender, recipient uuid.UUID) {
			defer wg.Done()
			_, _, err := fx.svc.Send(ctx, sender, SendInput{RecipientID: recipient, Content: "m"})
			errs <- err
		}(sender, recipient)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	// Timestamps must be assigned under the store's append lock: in
	// persistence order they never go backwards, whatever interleaving
	// the senders hit.
	resp, err := fx.convSvc.Messages(ctx, alice.ID, conv.ID, nil, 100)
	req.NoError(err)
	req.Len(resp.Messages, senders)
	for i := 1; i < len(resp.Messages); i++ {
		req.False(resp.Messages[i].CreatedAt.Before(resp.Messages[i-1].CreatedAt))
	}
}

func TestSend_TimestampsNonDecreasingPerConversation(t *testing.T) {
	req := require.New(t)
	alice := newTestUser("alice")
	bob := newTestUser("bob")
	fx := newChatFixture(alice, bob)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		sender, recipient := alice.ID, bob.ID
		if i%2 == 1 {
			sender, recipient = recipient, sender
		}
		_, _, err := fx.svc.Send(ctx, sender, SendInput{RecipientID: recipient, Content: "m"})
		req.NoError(err)
	}

	conv, err := fx.convSvc.ResolveOrCreate(ctx, alice.ID, bob.ID)
	req.NoError(err)
	resp, err := fx.convSvc.Messages(ctx, alice.ID, conv.ID, nil, 100)
	req.NoError(err)
	req.Len(resp.Messages, 10)
	for i := 1; i < len(resp.Messages); i++ {
		req.False(resp.Messages[i].CreatedAt.Before(resp.Messages[i-1].CreatedAt))
	}
}
