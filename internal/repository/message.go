package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error)
	ListRecent(ctx context.Context, room *string, limit, offset int) ([]*domain.Message, error)
	UpdateContent(ctx context.Context, messageID uuid.UUID, content string) error
	SoftDelete(ctx context.Context, messageID uuid.UUID) error
	SetReactions(ctx context.Context, messageID uuid.UUID, reactions []domain.Reaction) error
}

type messageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) error {
	reactions, err := json.Marshal(message.Reactions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO messages (id, content, sender_id, sender_username, room, message_type,
		                      created_at, is_edited, is_deleted, reactions, mentions, reply_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.Exec(ctx, query,
		message.ID, message.Content, message.Sender.ID, message.Sender.Username,
		message.Room, message.MessageType, message.Timestamp,
		message.IsEdited, message.IsDeleted, reactions, message.Mentions, message.ReplyTo,
	)
	if err != nil {
		r.log.Error("Failed to create message", "error", err)
		return err
	}

	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	query := `
		SELECT id, content, sender_id, sender_username, room, message_type,
		       created_at, is_edited, is_deleted, reactions, mentions, reply_to
		FROM messages
		WHERE id = $1
	`

	message, err := r.scanMessage(r.db.QueryRow(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		r.log.Error("Failed to get message", "error", err, "message_id", messageID)
		return nil, err
	}

	return message, nil
}

// ListRecent возвращает последние limit сообщений в хронологическом
// порядке. room == nil — глобальный чат (room IS NULL).
func (r *messageRepository) ListRecent(ctx context.Context, room *string, limit, offset int) ([]*domain.Message, error) {
	query := `
		SELECT id, content, sender_id, sender_username, room, message_type,
		       created_at, is_edited, is_deleted, reactions, mentions, reply_to
		FROM messages
		WHERE ($1::text IS NULL AND room IS NULL) OR room = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, room, limit, offset)
	if err != nil {
		r.log.Error("Failed to list messages", "error", err)
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		message, err := r.scanMessage(rows)
		if err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, err
		}
		messages = append(messages, message)
	}

	// Разворачиваем в хронологический порядок (от старых к новым)
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *messageRepository) UpdateContent(ctx context.Context, messageID uuid.UUID, content string) error {
	query := `UPDATE messages SET content = $2, is_edited = true WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, messageID, content)
	if err != nil {
		r.log.Error("Failed to update message", "error", err, "message_id", messageID)
		return err
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrMessageNotFound
	}

	return nil
}

// SoftDelete: запись остается, контент заменяется плейсхолдером
func (r *messageRepository) SoftDelete(ctx context.Context, messageID uuid.UUID) error {
	query := `UPDATE messages SET content = $2, is_deleted = true WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, messageID, domain.DeletedMessagePlaceholder)
	if err != nil {
		r.log.Error("Failed to delete message", "error", err, "message_id", messageID)
		return err
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrMessageNotFound
	}

	return nil
}

func (r *messageRepository) SetReactions(ctx context.Context, messageID uuid.UUID, reactions []domain.Reaction) error {
	data, err := json.Marshal(reactions)
	if err != nil {
		return err
	}

	query := `UPDATE messages SET reactions = $2 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, messageID, data)
	if err != nil {
		r.log.Error("Failed to set reactions", "error", err, "message_id", messageID)
		return err
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrMessageNotFound
	}

	return nil
}

func (r *messageRepository) scanMessage(row pgx.Row) (*domain.Message, error) {
	message := &domain.Message{}
	var reactions []byte

	err := row.Scan(
		&message.ID, &message.Content, &message.Sender.ID, &message.Sender.Username,
		&message.Room, &message.MessageType, &message.Timestamp,
		&message.IsEdited, &message.IsDeleted, &reactions, &message.Mentions, &message.ReplyTo,
	)
	if err != nil {
		return nil, err
	}

	if len(reactions) > 0 {
		if err := json.Unmarshal(reactions, &message.Reactions); err != nil {
			r.log.Warn("Failed to unmarshal reactions", "message_id", message.ID, "error", err)
		}
	}
	if message.Reactions == nil {
		message.Reactions = []domain.Reaction{}
	}

	return message, nil
}
