package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkolar7/paperback/internal/domain"
)

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

// CreateIfAbsent relies on the unique (user1_id, user2_id) constraint:
// the losing writer in a race hits the conflict, inserts nothing, and
// the caller re-reads the winner's row.
func (r *ConversationRepo) CreateIfAbsent(ctx context.Context, conv *domain.Conversation) error {
	query := `
		INSERT INTO conversations (id, user1_id, user2_id, last_message_at, hidden_for, created_at)
		VALUES ($1, $2, $3, $4, '{}', $5)
		ON CONFLICT (user1_id, user2_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query,
		conv.ID, conv.User1ID, conv.User2ID, conv.LastMessageAt, conv.CreatedAt,
	)
	return err
}

func (r *ConversationRepo) GetByUsers(ctx context.Context, user1ID, user2ID uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT id, user1_id, user2_id, last_message_at,
			last_message_content, last_message_sender_id, last_message_type,
			hidden_for, created_at
		FROM conversations
		WHERE user1_id = $1 AND user2_id = $2`
	return r.scanConversation(r.pool.QueryRow(ctx, query, user1ID, user2ID))
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT id, user1_id, user2_id, last_message_at,
			last_message_content, last_message_sender_id, last_message_type,
			hidden_for, created_at
		FROM conversations
		WHERE id = $1`
	return r.scanConversation(r.pool.QueryRow(ctx, query, id))
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	query := `
		SELECT c.id, c.user1_id, c.user2_id, c.last_message_at,
			c.last_message_content, c.last_message_sender_id, c.last_message_type,
			c.hidden_for, c.created_at,
			CASE WHEN c.user1_id = $1 THEN c.user2_id ELSE c.user1_id END AS other_user_id,
			CASE WHEN c.user1_id = $1 THEN u2.username ELSE u1.username END AS other_username,
			CASE WHEN c.user1_id = $1 THEN u2.display_name ELSE u1.display_name END AS other_display_name
		FROM conversations c
		JOIN users u1 ON c.user1_id = u1.id
		JOIN users u2 ON c.user2_id = u2.id
		WHERE (c.user1_id = $1 OR c.user2_id = $1)
			AND NOT (c.hidden_for @> ARRAY[$1]::uuid[])
		ORDER BY c.last_message_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		var conv domain.Conversation
		var content, msgType *string
		var senderID *uuid.UUID
		if err := rows.Scan(
			&conv.ID, &conv.User1ID, &conv.User2ID, &conv.LastMessageAt,
			&content, &senderID, &msgType,
			&conv.HiddenFor, &conv.CreatedAt,
			&conv.OtherUserID, &conv.OtherUserUsername, &conv.OtherUserDisplayName,
		); err != nil {
			return nil, err
		}
		conv.LastMessage = buildSummary(content, senderID, msgType)
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

func (r *ConversationRepo) Hide(ctx context.Context, conversationID, userID uuid.UUID) error {
	query := `
		UPDATE conversations
		SET hidden_for = array_append(hidden_for, $2)
		WHERE id = $1 AND NOT (hidden_for @> ARRAY[$2]::uuid[])`
	_, err := r.pool.Exec(ctx, query, conversationID, userID)
	return err
}

func (r *ConversationRepo) scanConversation(row pgx.Row) (*domain.Conversation, error) {
	var conv domain.Conversation
	var content, msgType *string
	var senderID *uuid.UUID
	err := row.Scan(
		&conv.ID, &conv.User1ID, &conv.User2ID, &conv.LastMessageAt,
		&content, &senderID, &msgType,
		&conv.HiddenFor, &conv.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	conv.LastMessage = buildSummary(content, senderID, msgType)
	return &conv, nil
}

func buildSummary(content *string, senderID *uuid.UUID, msgType *string) *domain.LastMessage {
	if content == nil || senderID == nil || msgType == nil {
		return nil
	}
	return &domain.LastMessage{
		Content:  *content,
		SenderID: *senderID,
		Type:     *msgType,
	}
}
