package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dkolar7/paperback/internal/domain"
	"github.com/dkolar7/paperback/internal/repository"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("you are not a participant of this conversation")
	ErrRecipientNotFound    = errors.New("recipient not found")
	ErrCannotMessageSelf    = errors.New("cannot start a conversation with yourself")
)

// ConversationService resolves participant pairs to their unique
// conversation and serves the read side (listing, history) for the
// HTTP layer.
type ConversationService struct {
	convRepo    repository.ConversationRepository
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
}

func NewConversationService(
	convRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
) *ConversationService {
	return &ConversationService{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
	}
}

type MessageListResponse struct {
	Messages []domain.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// ResolveOrCreate returns the unique conversation for the pair, creating
// it on first contact. (a,b) and (b,a) always resolve to the same row:
// the pair is canonicalized before lookup, and creation is
// first-writer-wins — a loser in a concurrent race re-reads and returns
// the winner's record.
func (s *ConversationService) ResolveOrCreate(ctx context.Context, userID, otherUserID uuid.UUID) (*domain.Conversation, error) {
	if userID == otherUserID {
		return nil, ErrCannotMessageSelf
	}

	other, err := s.userRepo.GetByID(ctx, otherUserID)
	if err != nil {
		return nil, err
	}
	if other == nil {
		return nil, ErrRecipientNotFound
	}

	u1, u2 := domain.CanonicalPair(userID, otherUserID)

	conv, err := s.convRepo.GetByUsers(ctx, u1, u2)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	now := time.Now()
	fresh := &domain.Conversation{
		ID:            uuid.New(),
		User1ID:       u1,
		User2ID:       u2,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	if err := s.convRepo.CreateIfAbsent(ctx, fresh); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	// Re-read: if a concurrent caller won the insert race, this returns
	// their row rather than ours.
	conv, err = s.convRepo.GetByUsers(ctx, u1, u2)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation for pair %s/%s missing after create", u1, u2)
	}
	return conv, nil
}

// List returns the caller's conversations, newest activity first,
// excluding ones they have hidden.
func (s *ConversationService) List(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	convs, err := s.convRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	return convs, nil
}

// Messages returns a page of history in persistence order.
func (s *ConversationService) Messages(ctx context.Context, userID, conversationID uuid.UUID, before *uuid.UUID, limit int) (*MessageListResponse, error) {
	if _, err := s.requireParticipant(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	messages, err := s.messageRepo.ListByConversation(ctx, conversationID, before, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[len(messages)-limit:]
	}

	if messages == nil {
		messages = []domain.Message{}
	}

	return &MessageListResponse{
		Messages: messages,
		HasMore:  hasMore,
	}, nil
}

// Hide removes the conversation from the caller's own list. The other
// participant keeps it, and any new message un-hides it again.
func (s *ConversationService) Hide(ctx context.Context, userID, conversationID uuid.UUID) error {
	if _, err := s.requireParticipant(ctx, userID, conversationID); err != nil {
		return err
	}
	return s.convRepo.Hide(ctx, conversationID, userID)
}

// IsParticipant reports whether userID belongs to the conversation.
// Room-scoped transport operations use this for silent rejection.
func (s *ConversationService) IsParticipant(ctx context.Context, userID, conversationID uuid.UUID) (bool, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return conv != nil && conv.HasParticipant(userID), nil
}

func (s *ConversationService) requireParticipant(ctx context.Context, userID, conversationID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}
