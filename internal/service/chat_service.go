package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dkolar7/paperback/internal/domain"
	"github.com/dkolar7/paperback/internal/repository"
)

var (
	ErrBlocked            = errors.New("messaging is blocked between these users")
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrEmptyMessage       = errors.New("message has no content or attachment")
)

// Notifier pushes real-time events to connected sessions. The chat
// service calls it only after a message is durably stored; a nil
// notifier just means nobody is listening.
type Notifier interface {
	// MessagePersisted fans the stored message out to every session
	// joined to the conversation's room, sender included.
	MessagePersisted(msg *domain.Message)
	// ConversationActivity nudges the recipient's sessions that are
	// connected but not in the room.
	ConversationActivity(msg *domain.Message, recipientID uuid.UUID)
}

// ChatService drives a send from an authenticated identity to a durable,
// fanned-out message: block check, conversation resolution, transactional
// persistence, then broadcast. Every failure is terminal and belongs to
// the sender alone; nothing is broadcast on a failed send.
type ChatService struct {
	conversations *ConversationService
	messageRepo   repository.MessageRepository
	blockRepo     repository.BlockRepository
	notifier      Notifier
	logger        *zap.Logger
}

func NewChatService(
	conversations *ConversationService,
	messageRepo repository.MessageRepository,
	blockRepo repository.BlockRepository,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		conversations: conversations,
		messageRepo:   messageRepo,
		blockRepo:     blockRepo,
		logger:        logger,
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *ChatService) SetNotifier(n Notifier) {
	s.notifier = n
}

type SendInput struct {
	RecipientID uuid.UUID          `json:"recipient_id"`
	Type        string             `json:"type"`
	Content     string             `json:"content"`
	Attachment  *domain.Attachment `json:"attachment,omitempty"`
}

// Send runs the full delivery pipeline and returns the persisted message
// with its authoritative id and timestamp. The sender identity comes
// from the authenticated session, never from the payload.
func (s *ChatService) Send(ctx context.Context, senderID uuid.UUID, input SendInput) (*domain.Message, *domain.Conversation, error) {
	msgType := input.Type
	if msgType == "" {
		msgType = domain.MessageTypeText
	}
	if !domain.ValidMessageType(msgType) {
		return nil, nil, ErrInvalidMessageType
	}
	if input.Content == "" && input.Attachment == nil {
		return nil, nil, ErrEmptyMessage
	}

	blocked, err := s.blockRepo.IsBlocked(ctx, senderID, input.RecipientID)
	if err != nil {
		return nil, nil, fmt.Errorf("checking block relation: %w", err)
	}
	if blocked {
		return nil, nil, ErrBlocked
	}

	conv, err := s.conversations.ResolveOrCreate(ctx, senderID, input.RecipientID)
	if err != nil {
		return nil, nil, err
	}

	msg := &domain.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Type:           msgType,
		Content:        input.Content,
		Attachment:     input.Attachment,
	}

	// Timestamp assignment, summary refresh and recipient un-hide happen
	// inside the store as one unit.
	if err := s.messageRepo.Append(ctx, msg, input.RecipientID); err != nil {
		return nil, nil, fmt.Errorf("persisting message: %w", err)
	}

	full, err := s.messageRepo.GetByID(ctx, msg.ID)
	if err != nil || full == nil {
		// The message is stored; fall back to what we have rather than
		// failing a send that already passed its durability boundary.
		s.logger.Warn("reloading persisted message failed",
			zap.String("message_id", msg.ID.String()), zap.Error(err))
		full = msg
	}

	if s.notifier != nil {
		s.notifier.MessagePersisted(full)
		s.notifier.ConversationActivity(full, input.RecipientID)
	}

	return full, conv, nil
}
