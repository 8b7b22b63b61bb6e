package realtime

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"realtime_chat/internal/domain"
	"realtime_chat/pkg/logger"
)

// RoomCoordinator — персистентная сторона lifecycle комнат.
// Реализуется room-сервисом; сервис после успешной записи сам
// синхронизирует Membership Index, transport-группы и шлет
// presence-события.
type RoomCoordinator interface {
	Join(ctx context.Context, roomName string, userID uuid.UUID, username string) (*domain.Room, error)
	Leave(ctx context.Context, roomName string, userID uuid.UUID) (bool, error)
	UserRooms(ctx context.Context, userID uuid.UUID) ([]string, error)
	TouchLastSeen(ctx context.Context, roomName string, userID uuid.UUID) error
}

// MessagePipeline — персистентность и fan-out сообщений.
// Контракт: сначала запись, broadcast только после успешной записи.
type MessagePipeline interface {
	Send(ctx context.Context, sender domain.MessageSender, content string, room *string, replyTo *uuid.UUID, mentions []string) (*domain.Message, error)
	History(ctx context.Context, room *string, limit, offset int) ([]*domain.Message, error)
	AddReaction(ctx context.Context, messageID uuid.UUID, user domain.MessageSender, emoji string) (*domain.Message, error)
	Edit(ctx context.Context, messageID, userID uuid.UUID, newContent string) (*domain.Message, error)
	Delete(ctx context.Context, messageID, userID uuid.UUID) (*domain.Message, error)
}

// PresenceUpdater отмечает пользователя онлайн/оффлайн в
// персистентных сторах (Postgres + Redis-снимок)
type PresenceUpdater interface {
	Connected(ctx context.Context, userID uuid.UUID) error
	Disconnected(ctx context.Context, userID uuid.UUID) error
}

// ConnectionHandler — протокольный автомат соединения:
// connecting -> authenticated -> active -> disconnected.
// Аутентификация происходит до Serve (при handshake); сюда соединение
// попадает уже с identity. Ни одна ошибка обработчика не роняет
// соединение: она превращается в error-событие клиенту.
type ConnectionHandler struct {
	registry    *SessionRegistry
	index       *MembershipIndex
	broadcaster *Broadcaster
	rooms       RoomCoordinator
	messages    MessagePipeline
	presence    PresenceUpdater

	historyLimit int
	log          logger.Logger
}

func NewConnectionHandler(
	registry *SessionRegistry,
	index *MembershipIndex,
	broadcaster *Broadcaster,
	rooms RoomCoordinator,
	messages MessagePipeline,
	presence PresenceUpdater,
	historyLimit int,
	log logger.Logger,
) *ConnectionHandler {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &ConnectionHandler{
		registry:     registry,
		index:        index,
		broadcaster:  broadcaster,
		rooms:        rooms,
		messages:     messages,
		presence:     presence,
		historyLimit: historyLimit,
		log:          log,
	}
}

// Serve обслуживает соединение до разрыва: регистрирует сессию,
// восстанавливает подписки из персистентного списка комнат и гоняет
// read-цикл. Блокируется до disconnect.
func (h *ConnectionHandler) Serve(ctx context.Context, c *Client) {
	h.connect(ctx, c)
	defer h.disconnect(ctx, c)

	go c.WritePump()

	for {
		frame, err := c.ReadFrame()
		if err != nil {
			h.log.Debug("Read loop finished", "connection_id", c.ID, "error", err)
			return
		}
		h.Dispatch(ctx, c, frame)
	}
}

func (h *ConnectionHandler) connect(ctx context.Context, c *Client) {
	h.registry.Register(c.ID, c.UserID, c.Username)
	h.broadcaster.AddClient(c)

	if err := h.presence.Connected(ctx, c.UserID); err != nil {
		h.log.Warn("Failed to mark user online", "user_id", c.UserID, "error", err)
	}

	// In-memory индекс — кэш: при reconnect подписки пересобираются
	// из персистентного списка участников, а не из остатков индекса
	rooms, err := h.rooms.UserRooms(ctx, c.UserID)
	if err != nil {
		h.log.Warn("Failed to restore room subscriptions", "user_id", c.UserID, "error", err)
		return
	}
	for _, room := range rooms {
		h.index.Subscribe(c.UserID, room)
		h.broadcaster.JoinGroup(room, c.ID)
	}

	h.log.Info("Connection established", "connection_id", c.ID, "user_id", c.UserID, "username", c.Username, "rooms", len(rooms))
}

// Dispatch декодирует кадр и вызывает обработчик по типу события.
// Набор типов закрытый; неизвестный тип — error-событие, не разрыв.
func (h *ConnectionHandler) Dispatch(ctx context.Context, c *Client, frame []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		h.sendError(c, "invalid frame")
		return
	}

	var err error
	switch env.Type {
	case domain.EventJoin:
		err = h.handleJoin(ctx, c, env.Payload)
	case domain.EventSendMessage:
		err = h.handleSendMessage(ctx, c, env.Payload)
	case domain.EventJoinRoom:
		err = h.handleJoinRoom(ctx, c, env.Payload)
	case domain.EventLeaveRoom:
		err = h.handleLeaveRoom(ctx, c, env.Payload)
	case domain.EventTyping:
		err = h.handleTyping(ctx, c, env.Payload)
	case domain.EventAddReaction:
		err = h.handleAddReaction(ctx, c, env.Payload)
	case domain.EventEditMessage:
		err = h.handleEditMessage(ctx, c, env.Payload)
	case domain.EventDeleteMessage:
		err = h.handleDeleteMessage(ctx, c, env.Payload)
	default:
		h.sendError(c, "unknown event type: "+env.Type)
		return
	}

	if err != nil {
		h.log.Warn("Event handler failed", "event", env.Type, "connection_id", c.ID, "error", err)
		h.sendError(c, err.Error())
	}
}

// join — legacy-поток с одной (опциональной) комнатой: история только
// присоединившемуся, подтверждение ему же, user_joined остальным
func (h *ConnectionHandler) handleJoin(ctx context.Context, c *Client, raw json.RawMessage) error {
	var p domain.JoinPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return errInvalidPayload
		}
	}

	if p.Room == "" {
		// Глобальный внекомнатный чат
		history, err := h.messages.History(ctx, nil, h.historyLimit, 0)
		if err != nil {
			return err
		}
		h.broadcaster.SendToConnection(c.ID, domain.EventRoomHistory, domain.RoomHistoryPayload{Messages: history})
		h.broadcaster.SendToConnection(c.ID, domain.EventJoined, domain.JoinedPayload{Username: c.Username})
		h.broadcaster.BroadcastExcept(c.ID, domain.EventUserJoined, domain.UserPresencePayload{
			UserID:   c.UserID,
			Username: c.Username,
		})
		return nil
	}

	if _, err := h.rooms.Join(ctx, p.Room, c.UserID, c.Username); err != nil {
		return err
	}
	h.registry.SetCurrentRoom(c.ID, p.Room)

	room := p.Room
	history, err := h.messages.History(ctx, &room, h.historyLimit, 0)
	if err != nil {
		return err
	}
	h.broadcaster.SendToConnection(c.ID, domain.EventRoomHistory, domain.RoomHistoryPayload{Room: &room, Messages: history})
	h.broadcaster.SendToConnection(c.ID, domain.EventJoined, domain.JoinedPayload{Username: c.Username, Room: &room})
	return nil
}

func (h *ConnectionHandler) handleJoinRoom(ctx context.Context, c *Client, raw json.RawMessage) error {
	var p domain.JoinRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errInvalidPayload
	}
	if strings.TrimSpace(p.Room) == "" {
		return errRoomRequired
	}

	roomInfo, err := h.rooms.Join(ctx, p.Room, c.UserID, c.Username)
	if err != nil {
		return err
	}

	room := p.Room
	history, err := h.messages.History(ctx, &room, h.historyLimit, 0)
	if err != nil {
		return err
	}

	h.broadcaster.SendToConnection(c.ID, domain.EventRoomJoined, domain.RoomJoinedPayload{
		Room:           p.Room,
		RoomInfo:       roomInfo,
		RecentMessages: history,
	})
	return nil
}

func (h *ConnectionHandler) handleLeaveRoom(ctx context.Context, c *Client, raw json.RawMessage) error {
	var p domain.LeaveRoomPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return errInvalidPayload
		}
	}

	room := p.Room
	if room == "" {
		if session, ok := h.registry.Get(c.ID); ok {
			room = session.CurrentRoom
		}
	}
	if room == "" {
		return errRoomRequired
	}

	// Отсутствие комнаты/участника — благополучный no-op
	if _, err := h.rooms.Leave(ctx, room, c.UserID); err != nil {
		return err
	}

	if session, ok := h.registry.Get(c.ID); ok && session.CurrentRoom == room {
		h.registry.SetCurrentRoom(c.ID, "")
	}

	h.broadcaster.SendToConnection(c.ID, domain.EventRoomLeft, domain.RoomLeftPayload{Room: room})
	return nil
}

func (h *ConnectionHandler) handleSendMessage(ctx context.Context, c *Client, raw json.RawMessage) error {
	var p domain.SendMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errInvalidPayload
	}
	if strings.TrimSpace(p.Message) == "" {
		return errEmptyMessage
	}

	var room *string
	if p.Room != "" {
		room = &p.Room
	} else if session, ok := h.registry.Get(c.ID); ok && session.CurrentRoom != "" {
		current := session.CurrentRoom
		room = &current
	}

	sender := domain.MessageSender{ID: c.UserID, Username: c.Username}
	_, err := h.messages.Send(ctx, sender, p.Message, room, p.ReplyTo, p.Mentions)
	return err
}

// typing — транзиентно, не персистится; пересылается комнате
// (или глобально) без отправителя
func (h *ConnectionHandler) handleTyping(ctx context.Context, c *Client, raw json.RawMessage) error {
	var p domain.TypingPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errInvalidPayload
	}

	room := p.Room
	if room == "" {
		if session, ok := h.registry.Get(c.ID); ok {
			room = session.CurrentRoom
		}
	}

	payload := domain.UserTypingPayload{
		UserID:   c.UserID,
		Username: c.Username,
		IsTyping: p.IsTyping,
	}

	if room == "" {
		h.broadcaster.BroadcastExcept(c.ID, domain.EventUserTyping, payload)
		return nil
	}

	payload.Room = &room
	h.broadcaster.SendToRoomExcept(room, c.ID, domain.EventUserTyping, payload)

	// Best-effort обновление last_seen; сбой не виден клиенту
	if p.IsTyping {
		if err := h.rooms.TouchLastSeen(ctx, room, c.UserID); err != nil {
			h.log.Warn("Failed to refresh last seen", "room", room, "user_id", c.UserID, "error", err)
		}
	}
	return nil
}

func (h *ConnectionHandler) handleAddReaction(ctx context.Context, c *Client, raw json.RawMessage) error {
	var p domain.AddReactionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errInvalidPayload
	}

	user := domain.MessageSender{ID: c.UserID, Username: c.Username}
	_, err := h.messages.AddReaction(ctx, p.MessageID, user, p.Emoji)
	return err
}

func (h *ConnectionHandler) handleEditMessage(ctx context.Context, c *Client, raw json.RawMessage) error {
	var p domain.EditMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errInvalidPayload
	}
	if strings.TrimSpace(p.NewContent) == "" {
		return errEmptyMessage
	}

	_, err := h.messages.Edit(ctx, p.MessageID, c.UserID, p.NewContent)
	return err
}

func (h *ConnectionHandler) handleDeleteMessage(ctx context.Context, c *Client, raw json.RawMessage) error {
	var p domain.DeleteMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errInvalidPayload
	}

	_, err := h.messages.Delete(ctx, p.MessageID, c.UserID)
	return err
}

// disconnect выполняет cleanup в фиксированном порядке: уведомления
// комнатам (индекс еще жив) -> очистка индекса -> снятие регистрации.
// Если у пользователя остались другие живые соединения, подписки и
// online-статус сохраняются.
func (h *ConnectionHandler) disconnect(ctx context.Context, c *Client) {
	c.Close()

	last := true
	for _, s := range h.registry.FindByUserID(c.UserID) {
		if s.ConnectionID != c.ID {
			last = false
			break
		}
	}

	if last {
		if err := h.presence.Disconnected(ctx, c.UserID); err != nil {
			h.log.Warn("Failed to mark user offline", "user_id", c.UserID, "error", err)
		}

		for _, room := range h.index.RoomsOf(c.UserID) {
			roomName := room
			h.broadcaster.SendToRoomExcept(room, c.ID, domain.EventUserLeft, domain.UserPresencePayload{
				Room:     &roomName,
				UserID:   c.UserID,
				Username: c.Username,
			})
		}
		h.index.Clear(c.UserID)
	}

	h.broadcaster.RemoveClient(c.ID)
	h.registry.Remove(c.ID)

	h.log.Info("Connection closed", "connection_id", c.ID, "user_id", c.UserID, "last_connection", last)
}

func (h *ConnectionHandler) sendError(c *Client, message string) {
	h.broadcaster.SendToConnection(c.ID, domain.EventError, domain.ErrorPayload{Message: message})
}
