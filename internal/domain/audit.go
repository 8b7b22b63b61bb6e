package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID          int64                  `json:"id"`
	EventTime   time.Time              `json:"event_time"`
	ActorUserID *uuid.UUID             `json:"actor_user_id,omitempty"`
	Room        *string                `json:"room,omitempty"`
	EventType   string                 `json:"event_type"`
	Payload     map[string]interface{} `json:"payload"`
}

const (
	EventTypeRoomCreated = "room_created"
	EventTypeRoomDeleted = "room_deleted"
	EventTypeUserKicked  = "user_kicked"
	EventTypeRoleChanged = "role_changed"
)
