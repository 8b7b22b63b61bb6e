package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByName(ctx context.Context, name string) (*domain.Room, error)
	ListActive(ctx context.Context, limit, offset int) ([]*domain.Room, error)
	SoftDelete(ctx context.Context, name string) error
	TouchActivity(ctx context.Context, name string) error
	IncrementMessageCount(ctx context.Context, name string) error

	AddParticipantIfCapacity(ctx context.Context, p *domain.RoomParticipant) error
	GetParticipant(ctx context.Context, roomName string, userID uuid.UUID) (*domain.RoomParticipant, error)
	GetParticipantsByRoom(ctx context.Context, roomName string) ([]*domain.RoomParticipant, error)
	ReactivateParticipant(ctx context.Context, roomName string, userID uuid.UUID) error
	DeactivateParticipant(ctx context.Context, roomName string, userID uuid.UUID) (bool, error)
	RemoveParticipant(ctx context.Context, roomName string, userID uuid.UUID) error
	UpdateParticipantRole(ctx context.Context, roomName string, userID uuid.UUID, role string) error
	TouchParticipantLastSeen(ctx context.Context, roomName string, userID uuid.UUID) error
	ListUserRooms(ctx context.Context, userID uuid.UUID) ([]string, error)
}

type roomRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewRoomRepository(db *pgxpool.Pool, log logger.Logger) RoomRepository {
	return &roomRepository{db: db, log: log}
}

func (r *roomRepository) Create(ctx context.Context, room *domain.Room) error {
	query := `
		INSERT INTO rooms (name, room_type, max_participants, is_active, message_count, last_activity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO NOTHING
	`

	tag, err := r.db.Exec(ctx, query,
		room.Name, room.RoomType, room.MaxParticipants, room.IsActive,
		room.MessageCount, room.LastActivity, room.CreatedAt,
	)
	if err != nil {
		r.log.Error("Failed to create room", "error", err, "room", room.Name)
		return err
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrRoomAlreadyExists
	}

	return nil
}

func (r *roomRepository) GetByName(ctx context.Context, name string) (*domain.Room, error) {
	query := `
		SELECT name, room_type, max_participants, is_active, message_count, last_activity, created_at
		FROM rooms
		WHERE name = $1
	`

	room := &domain.Room{}
	err := r.db.QueryRow(ctx, query, name).Scan(
		&room.Name, &room.RoomType, &room.MaxParticipants, &room.IsActive,
		&room.MessageCount, &room.LastActivity, &room.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrRoomNotFound
		}
		r.log.Error("Failed to get room by name", "error", err, "room", name)
		return nil, err
	}

	return room, nil
}

func (r *roomRepository) ListActive(ctx context.Context, limit, offset int) ([]*domain.Room, error) {
	query := `
		SELECT name, room_type, max_participants, is_active, message_count, last_activity, created_at
		FROM rooms
		WHERE is_active = true
		ORDER BY last_activity DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		r.log.Error("Failed to list rooms", "error", err)
		return nil, err
	}
	defer rows.Close()

	var rooms []*domain.Room
	for rows.Next() {
		room := &domain.Room{}
		err := rows.Scan(
			&room.Name, &room.RoomType, &room.MaxParticipants, &room.IsActive,
			&room.MessageCount, &room.LastActivity, &room.CreatedAt,
		)
		if err != nil {
			r.log.Error("Failed to scan room", "error", err)
			return nil, err
		}
		rooms = append(rooms, room)
	}

	return rooms, nil
}

func (r *roomRepository) SoftDelete(ctx context.Context, name string) error {
	query := `UPDATE rooms SET is_active = false WHERE name = $1`
	_, err := r.db.Exec(ctx, query, name)
	if err != nil {
		r.log.Error("Failed to soft delete room", "error", err, "room", name)
		return err
	}
	return nil
}

func (r *roomRepository) TouchActivity(ctx context.Context, name string) error {
	query := `UPDATE rooms SET last_activity = $2 WHERE name = $1`
	_, err := r.db.Exec(ctx, query, name, time.Now())
	if err != nil {
		r.log.Error("Failed to touch room activity", "error", err, "room", name)
		return err
	}
	return nil
}

func (r *roomRepository) IncrementMessageCount(ctx context.Context, name string) error {
	query := `UPDATE rooms SET message_count = message_count + 1, last_activity = $2 WHERE name = $1`
	_, err := r.db.Exec(ctx, query, name, time.Now())
	if err != nil {
		r.log.Error("Failed to increment message count", "error", err, "room", name)
		return err
	}
	return nil
}

// AddParticipantIfCapacity добавляет участника одним условным INSERT:
// проверка capacity и вставка выполняются в одном statement, поэтому два
// конкурентных join не могут оба пройти мимо лимита. Считаются только
// is_active участники.
func (r *roomRepository) AddParticipantIfCapacity(ctx context.Context, p *domain.RoomParticipant) error {
	query := `
		INSERT INTO room_participants (room_name, user_id, username, role, is_active, joined_at, last_seen)
		SELECT $1, $2, $3, $4, true, $5, $5
		WHERE (
			SELECT count(*) FROM room_participants
			WHERE room_name = $1 AND is_active = true
		) < (
			SELECT max_participants FROM rooms WHERE name = $1
		)
	`

	tag, err := r.db.Exec(ctx, query, p.RoomName, p.UserID, p.Username, p.Role, p.JoinedAt)
	if err != nil {
		r.log.Error("Failed to add participant", "error", err, "room", p.RoomName)
		return err
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrRoomFull
	}

	return nil
}

func (r *roomRepository) GetParticipant(ctx context.Context, roomName string, userID uuid.UUID) (*domain.RoomParticipant, error) {
	query := `
		SELECT room_name, user_id, username, role, is_active, joined_at, last_seen
		FROM room_participants
		WHERE room_name = $1 AND user_id = $2
	`

	p := &domain.RoomParticipant{}
	err := r.db.QueryRow(ctx, query, roomName, userID).Scan(
		&p.RoomName, &p.UserID, &p.Username, &p.Role, &p.IsActive, &p.JoinedAt, &p.LastSeen,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrParticipantNotFound
		}
		r.log.Error("Failed to get participant", "error", err, "room", roomName)
		return nil, err
	}

	return p, nil
}

func (r *roomRepository) GetParticipantsByRoom(ctx context.Context, roomName string) ([]*domain.RoomParticipant, error) {
	query := `
		SELECT room_name, user_id, username, role, is_active, joined_at, last_seen
		FROM room_participants
		WHERE room_name = $1
		ORDER BY joined_at ASC
	`

	rows, err := r.db.Query(ctx, query, roomName)
	if err != nil {
		r.log.Error("Failed to get participants", "error", err, "room", roomName)
		return nil, err
	}
	defer rows.Close()

	var participants []*domain.RoomParticipant
	for rows.Next() {
		p := &domain.RoomParticipant{}
		err := rows.Scan(&p.RoomName, &p.UserID, &p.Username, &p.Role, &p.IsActive, &p.JoinedAt, &p.LastSeen)
		if err != nil {
			r.log.Error("Failed to scan participant", "error", err)
			return nil, err
		}
		participants = append(participants, p)
	}

	return participants, nil
}

func (r *roomRepository) ReactivateParticipant(ctx context.Context, roomName string, userID uuid.UUID) error {
	query := `
		UPDATE room_participants
		SET is_active = true, last_seen = $3
		WHERE room_name = $1 AND user_id = $2
	`

	_, err := r.db.Exec(ctx, query, roomName, userID, time.Now())
	if err != nil {
		r.log.Error("Failed to reactivate participant", "error", err, "room", roomName)
		return err
	}

	return nil
}

// DeactivateParticipant переводит участника в is_active=false.
// Отсутствие участника — не ошибка, возвращается found=false.
func (r *roomRepository) DeactivateParticipant(ctx context.Context, roomName string, userID uuid.UUID) (bool, error) {
	query := `
		UPDATE room_participants
		SET is_active = false, last_seen = $3
		WHERE room_name = $1 AND user_id = $2 AND is_active = true
	`

	tag, err := r.db.Exec(ctx, query, roomName, userID, time.Now())
	if err != nil {
		r.log.Error("Failed to deactivate participant", "error", err, "room", roomName)
		return false, err
	}

	return tag.RowsAffected() > 0, nil
}

func (r *roomRepository) RemoveParticipant(ctx context.Context, roomName string, userID uuid.UUID) error {
	query := `DELETE FROM room_participants WHERE room_name = $1 AND user_id = $2`
	_, err := r.db.Exec(ctx, query, roomName, userID)
	if err != nil {
		r.log.Error("Failed to remove participant", "error", err, "room", roomName)
		return err
	}
	return nil
}

func (r *roomRepository) UpdateParticipantRole(ctx context.Context, roomName string, userID uuid.UUID, role string) error {
	query := `UPDATE room_participants SET role = $3 WHERE room_name = $1 AND user_id = $2`

	tag, err := r.db.Exec(ctx, query, roomName, userID, role)
	if err != nil {
		r.log.Error("Failed to update participant role", "error", err, "room", roomName)
		return err
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrParticipantNotFound
	}

	return nil
}

func (r *roomRepository) TouchParticipantLastSeen(ctx context.Context, roomName string, userID uuid.UUID) error {
	query := `UPDATE room_participants SET last_seen = $3 WHERE room_name = $1 AND user_id = $2`
	_, err := r.db.Exec(ctx, query, roomName, userID, time.Now())
	if err != nil {
		r.log.Error("Failed to touch participant last seen", "error", err, "room", roomName)
		return err
	}
	return nil
}

// ListUserRooms возвращает имена активных комнат, где пользователь —
// активный участник. Используется для восстановления подписок при
// reconnect и для "my rooms".
func (r *roomRepository) ListUserRooms(ctx context.Context, userID uuid.UUID) ([]string, error) {
	query := `
		SELECT p.room_name
		FROM room_participants p
		JOIN rooms r ON r.name = p.room_name
		WHERE p.user_id = $1 AND p.is_active = true AND r.is_active = true
		ORDER BY p.joined_at ASC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.log.Error("Failed to list user rooms", "error", err, "user_id", userID)
		return nil, err
	}
	defer rows.Close()

	var rooms []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			r.log.Error("Failed to scan room name", "error", err)
			return nil, err
		}
		rooms = append(rooms, name)
	}

	return rooms, nil
}
