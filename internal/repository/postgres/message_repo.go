package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkolar7/paperback/internal/domain"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// Append stores the message and refreshes the owning conversation in one
// transaction. The conversation row is locked first, which serializes
// concurrent appends into the same conversation: timestamps are assigned
// by the database under the lock, so persistence order and timestamp
// order agree. The INSERT uses clock_timestamp(), not now(): now() is
// fixed at BEGIN, which runs before the lock is acquired.
func (r *MessageRepo) Append(ctx context.Context, msg *domain.Message, recipientID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var convExists uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM conversations WHERE id = $1 FOR UPDATE`,
		msg.ConversationID,
	).Scan(&convExists)
	if err != nil {
		return fmt.Errorf("locking conversation: %w", err)
	}

	var att *domain.Attachment
	if msg.Attachment != nil {
		att = msg.Attachment
	} else {
		att = &domain.Attachment{}
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, type, content,
			file_url, file_storage_id, file_name, file_mime_type, file_byte_size,
			edited, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, 0), false, clock_timestamp())
		RETURNING created_at`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Type, msg.Content,
		att.URL, att.StorageID, att.FileName, att.MimeType, att.ByteSize,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations
		SET last_message_at = $2,
			last_message_content = $3,
			last_message_sender_id = $4,
			last_message_type = $5,
			hidden_for = array_remove(hidden_for, $6)
		WHERE id = $1`,
		msg.ConversationID, msg.CreatedAt, msg.Preview(), msg.SenderID, msg.Type, recipientID,
	)
	if err != nil {
		return fmt.Errorf("updating conversation summary: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.type, m.content,
			m.file_url, m.file_storage_id, m.file_name, m.file_mime_type, m.file_byte_size,
			m.edited, m.edited_at, m.created_at, u.username, u.display_name
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.id = $1`
	msg, err := scanMessage(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error) {
	var query string
	var args []any

	if before != nil {
		query = `
			SELECT m.id, m.conversation_id, m.sender_id, m.type, m.content,
				m.file_url, m.file_storage_id, m.file_name, m.file_mime_type, m.file_byte_size,
				m.edited, m.edited_at, m.created_at, u.username, u.display_name
			FROM messages m
			JOIN users u ON m.sender_id = u.id
			WHERE m.conversation_id = $1
				AND (m.created_at, m.id) < (SELECT created_at, id FROM messages WHERE id = $2)
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT $3`
		args = []any{conversationID, *before, limit}
	} else {
		query = `
			SELECT m.id, m.conversation_id, m.sender_id, m.type, m.content,
				m.file_url, m.file_storage_id, m.file_name, m.file_mime_type, m.file_byte_size,
				m.edited, m.edited_at, m.created_at, u.username, u.display_name
			FROM messages m
			JOIN users u ON m.sender_id = u.id
			WHERE m.conversation_id = $1
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT $2`
		args = []any{conversationID, limit}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returns newest-first; callers get persistence order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var msg domain.Message
	var fileURL, fileStorageID, fileName, fileMime *string
	var fileSize *int64
	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Type, &msg.Content,
		&fileURL, &fileStorageID, &fileName, &fileMime, &fileSize,
		&msg.Edited, &msg.EditedAt, &msg.CreatedAt,
		&msg.SenderUsername, &msg.SenderDisplayName,
	)
	if err != nil {
		return nil, err
	}
	if fileURL != nil {
		msg.Attachment = &domain.Attachment{URL: *fileURL}
		if fileStorageID != nil {
			msg.Attachment.StorageID = *fileStorageID
		}
		if fileName != nil {
			msg.Attachment.FileName = *fileName
		}
		if fileMime != nil {
			msg.Attachment.MimeType = *fileMime
		}
		if fileSize != nil {
			msg.Attachment.ByteSize = *fileSize
		}
	}
	return &msg, nil
}
