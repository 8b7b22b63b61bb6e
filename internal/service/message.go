package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"realtime_chat/internal/domain"
	"realtime_chat/internal/repository"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

// mentionPattern вылавливает @username из текста сообщения
var mentionPattern = regexp.MustCompile(`@(\w+)`)

// MessageService — персистентность и fan-out сообщений. Контракт
// жесткий: сначала запись в Postgres, broadcast только после успеха.
// Сбой записи виден только отправителю, комната ничего не получает.
type MessageService interface {
	Send(ctx context.Context, sender domain.MessageSender, content string, room *string, replyTo *uuid.UUID, mentions []string) (*domain.Message, error)
	History(ctx context.Context, room *string, limit, offset int) ([]*domain.Message, error)
	AddReaction(ctx context.Context, messageID uuid.UUID, user domain.MessageSender, emoji string) (*domain.Message, error)
	Edit(ctx context.Context, messageID, userID uuid.UUID, newContent string) (*domain.Message, error)
	Delete(ctx context.Context, messageID, userID uuid.UUID) (*domain.Message, error)
}

type messageService struct {
	messageRepo repository.MessageRepository
	roomRepo    repository.RoomRepository
	userRepo    repository.UserRepository

	broadcaster EventBroadcaster

	maxMessageLength int
	historyLimit     int
	log              logger.Logger
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	roomRepo repository.RoomRepository,
	userRepo repository.UserRepository,
	broadcaster EventBroadcaster,
	maxMessageLength, historyLimit int,
	log logger.Logger,
) MessageService {
	if maxMessageLength <= 0 {
		maxMessageLength = 2000
	}
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &messageService{
		messageRepo:      messageRepo,
		roomRepo:         roomRepo,
		userRepo:         userRepo,
		broadcaster:      broadcaster,
		maxMessageLength: maxMessageLength,
		historyLimit:     historyLimit,
		log:              log,
	}
}

func (s *messageService) Send(ctx context.Context, sender domain.MessageSender, content string, room *string, replyTo *uuid.UUID, mentions []string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("message content is empty")
	}
	if len(content) > s.maxMessageLength {
		return nil, errors.New("message is too long")
	}

	// Отправка в комнату требует активного участия
	if room != nil {
		r, err := s.roomRepo.GetByName(ctx, *room)
		if err != nil {
			return nil, err
		}
		if !r.IsActive {
			return nil, apperrors.ErrRoomInactive
		}

		p, err := s.roomRepo.GetParticipant(ctx, *room, sender.ID)
		if err != nil || !p.IsActive {
			return nil, apperrors.ErrParticipantNotFound
		}
	}

	// Явный список упоминаний имеет приоритет; извлечение @word из
	// текста — только когда списка нет
	if len(mentions) == 0 {
		mentions = extractMentions(content)
	}
	mentions = mergeMentions(mentions, nil)

	msg := &domain.Message{
		ID:          uuid.New(),
		Content:     content,
		Sender:      sender,
		Room:        room,
		MessageType: domain.MessageTypeText,
		Timestamp:   time.Now(),
		Reactions:   []domain.Reaction{},
		Mentions:    mentions,
		ReplyTo:     replyTo,
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		s.log.Error("Failed to persist message", "error", err, "sender", sender.Username)
		return nil, err
	}

	if room != nil {
		if err := s.roomRepo.IncrementMessageCount(ctx, *room); err != nil {
			s.log.Warn("Failed to increment message count", "room", *room, "error", err)
		}
		if err := s.roomRepo.TouchActivity(ctx, *room); err != nil {
			s.log.Warn("Failed to touch room activity", "room", *room, "error", err)
		}
	}

	// Fan-out строго после успешной записи
	if room != nil {
		s.broadcaster.SendToRoom(*room, domain.EventReceiveMessage, msg)
	} else {
		s.broadcaster.Broadcast(domain.EventReceiveMessage, msg)
	}

	s.notifyMentions(ctx, msg)

	return msg, nil
}

func (s *messageService) History(ctx context.Context, room *string, limit, offset int) ([]*domain.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = s.historyLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.messageRepo.ListRecent(ctx, room, limit, offset)
}

// AddReaction — upsert: одна реакция на пользователя, повторная
// заменяет emoji (last-write-wins)
func (s *messageService) AddReaction(ctx context.Context, messageID uuid.UUID, user domain.MessageSender, emoji string) (*domain.Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, errors.New("emoji is required")
	}

	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, apperrors.ErrMessageNotFound
	}

	msg.Reactions = domain.UpsertReaction(msg.Reactions, domain.Reaction{
		UserID:    user.ID,
		Username:  user.Username,
		Emoji:     emoji,
		ReactedAt: time.Now(),
	})

	if err := s.messageRepo.SetReactions(ctx, messageID, msg.Reactions); err != nil {
		return nil, err
	}

	payload := domain.MessageReactionPayload{
		MessageID: messageID,
		Emoji:     emoji,
		UserID:    user.ID,
		Username:  user.Username,
		Reactions: msg.Reactions,
	}
	s.fanOut(msg, domain.EventMessageReaction, payload)

	return msg, nil
}

// Edit — только автор может редактировать свое сообщение
func (s *messageService) Edit(ctx context.Context, messageID, userID uuid.UUID, newContent string) (*domain.Message, error) {
	newContent = strings.TrimSpace(newContent)
	if newContent == "" {
		return nil, errors.New("message content is empty")
	}
	if len(newContent) > s.maxMessageLength {
		return nil, errors.New("message is too long")
	}

	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, apperrors.ErrMessageNotFound
	}
	if msg.Sender.ID != userID {
		return nil, apperrors.ErrPermissionDenied
	}

	if err := s.messageRepo.UpdateContent(ctx, messageID, newContent); err != nil {
		return nil, err
	}
	msg.Content = newContent
	msg.IsEdited = true

	payload := domain.MessageEditedPayload{
		MessageID: messageID,
		Content:   newContent,
		IsEdited:  true,
	}
	s.fanOut(msg, domain.EventMessageEdited, payload)

	return msg, nil
}

// Delete — soft delete: контент заменяется плейсхолдером, запись
// остается (история и replyTo не ломаются)
func (s *messageService) Delete(ctx context.Context, messageID, userID uuid.UUID) (*domain.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return msg, nil
	}
	if msg.Sender.ID != userID {
		return nil, apperrors.ErrPermissionDenied
	}

	if err := s.messageRepo.SoftDelete(ctx, messageID); err != nil {
		return nil, err
	}
	msg.Content = domain.DeletedMessagePlaceholder
	msg.IsDeleted = true

	s.fanOut(msg, domain.EventMessageDeleted, domain.MessageDeletedPayload{MessageID: messageID})

	return msg, nil
}

// fanOut направляет событие по сообщению в его комнату либо глобально
func (s *messageService) fanOut(msg *domain.Message, event string, payload any) {
	if msg.Room != nil {
		s.broadcaster.SendToRoom(*msg.Room, event, payload)
	} else {
		s.broadcaster.Broadcast(event, payload)
	}
}

// notifyMentions шлет личные уведомления упомянутым пользователям.
// Best-effort: несуществующий username молча пропускается, оффлайн
// пользователь просто не получит событие (доставка не гарантируется).
func (s *messageService) notifyMentions(ctx context.Context, msg *domain.Message) {
	for _, username := range msg.Mentions {
		if username == msg.Sender.Username {
			continue
		}

		user, err := s.userRepo.GetByUsername(ctx, username)
		if err != nil {
			continue
		}

		messageID := msg.ID
		s.broadcaster.SendToUser(user.ID, domain.EventNotification, domain.NotificationPayload{
			Kind:      domain.NotificationKindMention,
			Message:   msg.Content,
			Room:      msg.Room,
			From:      msg.Sender.Username,
			MessageID: &messageID,
		})
	}
}

func extractMentions(content string) []string {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	mentions := make([]string, 0, len(matches))
	for _, m := range matches {
		mentions = append(mentions, m[1])
	}
	return mentions
}

// mergeMentions объединяет списки, сохраняя порядок и убирая дубли
func mergeMentions(explicit, extracted []string) []string {
	seen := make(map[string]struct{})
	var result []string
	for _, list := range [][]string{explicit, extracted} {
		for _, name := range list {
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			result = append(result, name)
		}
	}
	return result
}
