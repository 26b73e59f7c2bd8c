package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/dkolar7/paperback/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	Search(ctx context.Context, term string, excludeID uuid.UUID, limit int) ([]domain.PublicUser, error)
	TouchLastActive(ctx context.Context, id uuid.UUID) error
}

type ConversationRepository interface {
	// CreateIfAbsent inserts the canonical pair row unless one already
	// exists; concurrent callers are safe and the survivor's row is what
	// a subsequent GetByUsers returns.
	CreateIfAbsent(ctx context.Context, conv *domain.Conversation) error
	GetByUsers(ctx context.Context, user1ID, user2ID uuid.UUID) (*domain.Conversation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	// ListForUser returns conversations the user participates in and has
	// not hidden, newest activity first.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error)
	Hide(ctx context.Context, conversationID, userID uuid.UUID) error
}

type MessageRepository interface {
	// Append durably stores the message with a server-assigned timestamp
	// and, in the same transaction, refreshes the conversation summary
	// and un-hides the conversation for the recipient. msg.CreatedAt is
	// populated from the stored row on return.
	Append(ctx context.Context, msg *domain.Message, recipientID uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	// ListByConversation returns messages in persistence order
	// (ascending), at most limit, older than the cursor when given.
	ListByConversation(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error)
}

type BlockRepository interface {
	Block(ctx context.Context, blockerID, blockedID uuid.UUID) error
	Unblock(ctx context.Context, blockerID, blockedID uuid.UUID) error
	// IsBlocked reports whether either user has blocked the other.
	IsBlocked(ctx context.Context, a, b uuid.UUID) (bool, error)
	ListBlocked(ctx context.Context, blockerID uuid.UUID) ([]uuid.UUID, error)
}
