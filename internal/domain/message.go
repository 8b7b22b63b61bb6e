package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeletedMessagePlaceholder подставляется вместо контента при soft delete
const DeletedMessagePlaceholder = "This message has been deleted"

type MessageSender struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

// Message — персистентное сообщение. Room == nil означает глобальный
// (внекомнатный) broadcast-чат.
type Message struct {
	ID          uuid.UUID     `json:"id"`
	Content     string        `json:"content"`
	Sender      MessageSender `json:"sender"`
	Room        *string       `json:"room,omitempty"`
	MessageType string        `json:"messageType"`
	Timestamp   time.Time     `json:"timestamp"`
	IsEdited    bool          `json:"isEdited"`
	IsDeleted   bool          `json:"isDeleted"`
	Reactions   []Reaction    `json:"reactions"`
	Mentions    []string      `json:"mentions,omitempty"`
	ReplyTo     *uuid.UUID    `json:"replyTo,omitempty"`
}

// Reaction — одна на userId, last-write-wins по emoji
type Reaction struct {
	UserID    uuid.UUID `json:"userId"`
	Username  string    `json:"username"`
	Emoji     string    `json:"emoji"`
	ReactedAt time.Time `json:"reactedAt"`
}

const (
	MessageTypeText   = "text"
	MessageTypeSystem = "system"
)

// Upsert реакции: заменяет существующую реакцию пользователя или добавляет новую
func UpsertReaction(reactions []Reaction, r Reaction) []Reaction {
	for i := range reactions {
		if reactions[i].UserID == r.UserID {
			reactions[i] = r
			return reactions
		}
	}
	return append(reactions, r)
}
