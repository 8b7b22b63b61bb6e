package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"realtime_chat/internal/domain"
	"realtime_chat/pkg/logger"
)

type AuditRepository interface {
	CreateLog(ctx context.Context, entry *domain.AuditLog) error
	ListByRoom(ctx context.Context, room string, limit int) ([]*domain.AuditLog, error)
}

type auditRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewAuditRepository(db *pgxpool.Pool, log logger.Logger) AuditRepository {
	return &auditRepository{db: db, log: log}
}

func (r *auditRepository) CreateLog(ctx context.Context, entry *domain.AuditLog) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_logs (event_time, actor_user_id, room, event_type, payload)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = r.db.Exec(ctx, query,
		entry.EventTime, entry.ActorUserID, entry.Room, entry.EventType, payload,
	)
	if err != nil {
		r.log.Error("Failed to create audit log", "error", err, "event_type", entry.EventType)
		return err
	}

	return nil
}

func (r *auditRepository) ListByRoom(ctx context.Context, room string, limit int) ([]*domain.AuditLog, error) {
	query := `
		SELECT id, event_time, actor_user_id, room, event_type, payload
		FROM audit_logs
		WHERE room = $1
		ORDER BY event_time DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, room, limit)
	if err != nil {
		r.log.Error("Failed to list audit logs", "error", err, "room", room)
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.AuditLog
	for rows.Next() {
		entry := &domain.AuditLog{}
		var payload []byte
		err := rows.Scan(&entry.ID, &entry.EventTime, &entry.ActorUserID, &entry.Room, &entry.EventType, &payload)
		if err != nil {
			r.log.Error("Failed to scan audit log", "error", err)
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &entry.Payload); err != nil {
				r.log.Warn("Failed to unmarshal audit payload", "error", err)
			}
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
