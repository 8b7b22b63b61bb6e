package domain

import (
	"time"

	"github.com/google/uuid"
)

// Room — персистентная комната. Ключ — имя (уникальное), комнаты никогда
// не удаляются физически, только is_active=false.
type Room struct {
	Name            string             `json:"name"`
	RoomType        string             `json:"roomType"`
	MaxParticipants int                `json:"maxParticipants"`
	IsActive        bool               `json:"isActive"`
	MessageCount    int64              `json:"messageCount"`
	LastActivity    time.Time          `json:"lastActivity"`
	CreatedAt       time.Time          `json:"createdAt"`
	Participants    []*RoomParticipant `json:"participants,omitempty"`
}

// RoomParticipant — запись об участии пользователя в комнате.
// Инвариант: не более одной записи на (room, user); is_active=false
// не считается против capacity.
type RoomParticipant struct {
	RoomName string    `json:"room"`
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
	Role     string    `json:"role"`
	IsActive bool      `json:"isActive"`
	JoinedAt time.Time `json:"joinedAt"`
	LastSeen time.Time `json:"lastSeen"`
}

const (
	RoomTypePublic  = "public"
	RoomTypePrivate = "private"
	RoomTypeDirect  = "direct"
)

const (
	ParticipantRoleAdmin     = "admin"
	ParticipantRoleModerator = "moderator"
	ParticipantRoleMember    = "member"
)

// ValidRole проверяет, что роль входит в закрытый набор
func ValidRole(role string) bool {
	switch role {
	case ParticipantRoleAdmin, ParticipantRoleModerator, ParticipantRoleMember:
		return true
	}
	return false
}

// CanModerate — модератор и админ могут кикать и менять настройки
func CanModerate(role string) bool {
	return role == ParticipantRoleAdmin || role == ParticipantRoleModerator
}

// RoomStats — presence-срез по комнате, вычисляется инверсией
// Membership Index, не хранится
type RoomStats struct {
	Room      string   `json:"room"`
	UserCount int      `json:"userCount"`
	Users     []string `json:"users"`
}
