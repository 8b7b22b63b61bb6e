package domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Протокол реального времени: JSON-кадры {"type": ..., "payload": ...}
// в обе стороны. Набор типов закрытый, payload каждого типа имеет
// фиксированную схему — диспетчеризация по type исчерпывающая.

// Входящие события (клиент -> сервер)
const (
	EventJoin          = "join"
	EventSendMessage   = "send_message"
	EventJoinRoom      = "join_room"
	EventLeaveRoom     = "leave_room"
	EventTyping        = "typing"
	EventAddReaction   = "add_reaction"
	EventEditMessage   = "edit_message"
	EventDeleteMessage = "delete_message"
)

// Исходящие события (сервер -> клиент)
const (
	EventJoined          = "joined"
	EventRoomJoined      = "room_joined"
	EventRoomLeft        = "room_left"
	EventRoomHistory     = "room_history"
	EventUserJoined      = "user_joined"
	EventUserLeft        = "user_left"
	EventReceiveMessage  = "receive_message"
	EventUserTyping      = "user_typing"
	EventMessageReaction = "message_reaction"
	EventMessageEdited   = "message_edited"
	EventMessageDeleted  = "message_deleted"
	EventNotification    = "notification"
	EventError           = "error"
)

// Envelope — кадр протокола; payload декодируется после
// диспетчеризации по type
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type OutboundFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Payload входящих событий

type JoinPayload struct {
	Room string `json:"room,omitempty"`
}

type SendMessagePayload struct {
	Message  string     `json:"message"`
	Room     string     `json:"room,omitempty"`
	ReplyTo  *uuid.UUID `json:"replyTo,omitempty"`
	Mentions []string   `json:"mentions,omitempty"`
}

type JoinRoomPayload struct {
	Room string `json:"room"`
}

type LeaveRoomPayload struct {
	Room string `json:"room,omitempty"`
}

type TypingPayload struct {
	Room     string `json:"room,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

type AddReactionPayload struct {
	MessageID uuid.UUID `json:"messageId"`
	Emoji     string    `json:"emoji"`
}

type EditMessagePayload struct {
	MessageID  uuid.UUID `json:"messageId"`
	NewContent string    `json:"newContent"`
}

type DeleteMessagePayload struct {
	MessageID uuid.UUID `json:"messageId"`
}

// Payload исходящих событий

type JoinedPayload struct {
	Username string  `json:"username"`
	Room     *string `json:"room,omitempty"`
}

type RoomJoinedPayload struct {
	Room           string     `json:"room"`
	RoomInfo       *Room      `json:"roomInfo"`
	RecentMessages []*Message `json:"recentMessages"`
}

type RoomLeftPayload struct {
	Room string `json:"room"`
}

type RoomHistoryPayload struct {
	Room     *string    `json:"room,omitempty"`
	Messages []*Message `json:"messages"`
}

type UserPresencePayload struct {
	Room     *string   `json:"room,omitempty"`
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
}

type UserTypingPayload struct {
	Room     *string   `json:"room,omitempty"`
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
	IsTyping bool      `json:"isTyping"`
}

type MessageReactionPayload struct {
	MessageID uuid.UUID  `json:"messageId"`
	Emoji     string     `json:"emoji"`
	UserID    uuid.UUID  `json:"userId"`
	Username  string     `json:"username"`
	Reactions []Reaction `json:"reactions"`
}

type MessageEditedPayload struct {
	MessageID uuid.UUID `json:"messageId"`
	Content   string    `json:"content"`
	IsEdited  bool      `json:"isEdited"`
}

type MessageDeletedPayload struct {
	MessageID uuid.UUID `json:"messageId"`
}

type NotificationPayload struct {
	Kind      string     `json:"kind"`
	Message   string     `json:"message"`
	Room      *string    `json:"room,omitempty"`
	From      string     `json:"from,omitempty"`
	MessageID *uuid.UUID `json:"messageId,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

const (
	NotificationKindMention     = "mention"
	NotificationKindRemoved     = "removed_from_room"
	NotificationKindRoleChanged = "role_changed"
	NotificationKindRoomDeleted = "room_deleted"
)
