package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"realtime_chat/internal/domain"
	"realtime_chat/internal/realtime"
	"realtime_chat/internal/repository"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

// RoomService — lifecycle комнат: создание, вход, выход, удаление,
// роли. Порядок в каждой мутации фиксированный: персистентная запись,
// затем синхронизация in-memory состояния, затем события.
type RoomService interface {
	Create(ctx context.Context, name, roomType string, maxParticipants int, creatorID uuid.UUID, creatorName string) (*domain.Room, error)
	GetByName(ctx context.Context, name string) (*domain.Room, error)
	ListActive(ctx context.Context, limit, offset int) ([]*domain.Room, error)
	Delete(ctx context.Context, name string, actorID uuid.UUID) error

	Join(ctx context.Context, roomName string, userID uuid.UUID, username string) (*domain.Room, error)
	Leave(ctx context.Context, roomName string, userID uuid.UUID) (bool, error)
	UserRooms(ctx context.Context, userID uuid.UUID) ([]string, error)
	TouchLastSeen(ctx context.Context, roomName string, userID uuid.UUID) error

	Participants(ctx context.Context, roomName string) ([]*domain.RoomParticipant, error)
	RemoveUser(ctx context.Context, roomName string, actorID, targetID uuid.UUID) error
	ChangeUserRole(ctx context.Context, roomName string, actorID, targetID uuid.UUID, role string) error
	AuditTrail(ctx context.Context, roomName string, actorID uuid.UUID, limit int) ([]*domain.AuditLog, error)
}

type roomService struct {
	roomRepo  repository.RoomRepository
	auditRepo repository.AuditRepository

	registry    *realtime.SessionRegistry
	index       *realtime.MembershipIndex
	broadcaster EventBroadcaster

	defaultMaxParticipants int
	log                    logger.Logger
}

func NewRoomService(
	roomRepo repository.RoomRepository,
	auditRepo repository.AuditRepository,
	registry *realtime.SessionRegistry,
	index *realtime.MembershipIndex,
	broadcaster EventBroadcaster,
	defaultMaxParticipants int,
	log logger.Logger,
) RoomService {
	if defaultMaxParticipants <= 0 {
		defaultMaxParticipants = 50
	}
	return &roomService{
		roomRepo:               roomRepo,
		auditRepo:              auditRepo,
		registry:               registry,
		index:                  index,
		broadcaster:            broadcaster,
		defaultMaxParticipants: defaultMaxParticipants,
		log:                    log,
	}
}

func (s *roomService) Create(ctx context.Context, name, roomType string, maxParticipants int, creatorID uuid.UUID, creatorName string) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("room name is required")
	}
	if len(name) > 100 {
		return nil, errors.New("room name is too long (max 100 characters)")
	}

	if roomType == "" {
		roomType = domain.RoomTypePublic
	}
	switch roomType {
	case domain.RoomTypePublic, domain.RoomTypePrivate, domain.RoomTypeDirect:
	default:
		return nil, errors.New("invalid room type")
	}

	if maxParticipants <= 0 {
		maxParticipants = s.defaultMaxParticipants
	}

	room := &domain.Room{
		Name:            name,
		RoomType:        roomType,
		MaxParticipants: maxParticipants,
		IsActive:        true,
		LastActivity:    time.Now(),
		CreatedAt:       time.Now(),
	}

	if err := s.roomRepo.Create(ctx, room); err != nil {
		return nil, err
	}

	s.audit(ctx, creatorID, name, domain.EventTypeRoomCreated, map[string]interface{}{
		"roomType":        roomType,
		"maxParticipants": maxParticipants,
	})

	// Создатель входит админом
	if err := s.joinAs(ctx, room, creatorID, creatorName, domain.ParticipantRoleAdmin); err != nil {
		return nil, err
	}

	return room, nil
}

func (s *roomService) GetByName(ctx context.Context, name string) (*domain.Room, error) {
	return s.roomRepo.GetByName(ctx, name)
}

func (s *roomService) ListActive(ctx context.Context, limit, offset int) ([]*domain.Room, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.roomRepo.ListActive(ctx, limit, offset)
}

// Join — идемпотентный вход в комнату. Несуществующая комната
// автосоздается публичной; гонка двух автосоздателей схлопывается
// через ON CONFLICT и повторное чтение.
func (s *roomService) Join(ctx context.Context, roomName string, userID uuid.UUID, username string) (*domain.Room, error) {
	roomName = strings.TrimSpace(roomName)
	if roomName == "" {
		return nil, errors.New("room name is required")
	}

	role := domain.ParticipantRoleMember

	room, err := s.roomRepo.GetByName(ctx, roomName)
	if errors.Is(err, apperrors.ErrRoomNotFound) {
		room = &domain.Room{
			Name:            roomName,
			RoomType:        domain.RoomTypePublic,
			MaxParticipants: s.defaultMaxParticipants,
			IsActive:        true,
			LastActivity:    time.Now(),
			CreatedAt:       time.Now(),
		}
		createErr := s.roomRepo.Create(ctx, room)
		switch {
		case createErr == nil:
			// Автосоздатель становится админом
			role = domain.ParticipantRoleAdmin
			s.audit(ctx, userID, roomName, domain.EventTypeRoomCreated, map[string]interface{}{
				"autoCreated": true,
			})
		case errors.Is(createErr, apperrors.ErrRoomAlreadyExists):
			// Проиграли гонку автосоздания, комната уже есть
			room, err = s.roomRepo.GetByName(ctx, roomName)
			if err != nil {
				return nil, err
			}
		default:
			return nil, createErr
		}
	} else if err != nil {
		return nil, err
	}

	if !room.IsActive {
		return nil, apperrors.ErrRoomInactive
	}

	if err := s.joinAs(ctx, room, userID, username, role); err != nil {
		return nil, err
	}
	return room, nil
}

// joinAs добавляет участника и синхронизирует live-состояние.
// Повторный вход активного участника — benign no-op для персистентной
// части, но подписки все равно пересинхронизируются.
func (s *roomService) joinAs(ctx context.Context, room *domain.Room, userID uuid.UUID, username, role string) error {
	newJoin := false

	existing, err := s.roomRepo.GetParticipant(ctx, room.Name, userID)
	switch {
	case err == nil && existing.IsActive:
		// Уже участник

	case err == nil && !existing.IsActive:
		if err := s.roomRepo.ReactivateParticipant(ctx, room.Name, userID); err != nil {
			return err
		}
		newJoin = true

	case errors.Is(err, apperrors.ErrParticipantNotFound):
		p := &domain.RoomParticipant{
			RoomName: room.Name,
			UserID:   userID,
			Username: username,
			Role:     role,
			IsActive: true,
			JoinedAt: time.Now(),
			LastSeen: time.Now(),
		}
		// Атомарная проверка capacity внутри INSERT
		if err := s.roomRepo.AddParticipantIfCapacity(ctx, p); err != nil {
			return err
		}
		newJoin = true

	default:
		return err
	}

	if err := s.roomRepo.TouchActivity(ctx, room.Name); err != nil {
		s.log.Warn("Failed to touch room activity", "room", room.Name, "error", err)
	}

	// Live-синхронизация: подписка и transport-группы для всех живых
	// соединений пользователя
	s.index.Subscribe(userID, room.Name)
	for _, session := range s.registry.FindByUserID(userID) {
		s.broadcaster.JoinGroup(room.Name, session.ConnectionID)
	}

	if newJoin {
		roomName := room.Name
		s.broadcaster.SendToRoomExceptUser(room.Name, userID, domain.EventUserJoined, domain.UserPresencePayload{
			Room:     &roomName,
			UserID:   userID,
			Username: username,
		})
	}

	return nil
}

// Leave — выход из комнаты. Отсутствие комнаты или участия — benign
// no-op, возвращается (false, nil).
func (s *roomService) Leave(ctx context.Context, roomName string, userID uuid.UUID) (bool, error) {
	// Имя берем из персистентной записи участника: выход через HTTP
	// возможен и без живых сессий
	var username string
	if p, err := s.roomRepo.GetParticipant(ctx, roomName, userID); err == nil {
		username = p.Username
	}

	found, err := s.roomRepo.DeactivateParticipant(ctx, roomName, userID)
	if err != nil {
		return false, err
	}

	s.index.Unsubscribe(userID, roomName)

	for _, session := range s.registry.FindByUserID(userID) {
		s.broadcaster.LeaveGroup(roomName, session.ConnectionID)
	}

	if found {
		name := roomName
		s.broadcaster.SendToRoom(roomName, domain.EventUserLeft, domain.UserPresencePayload{
			Room:     &name,
			UserID:   userID,
			Username: username,
		})
	}

	return found, nil
}

func (s *roomService) UserRooms(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return s.roomRepo.ListUserRooms(ctx, userID)
}

func (s *roomService) TouchLastSeen(ctx context.Context, roomName string, userID uuid.UUID) error {
	return s.roomRepo.TouchParticipantLastSeen(ctx, roomName, userID)
}

func (s *roomService) Participants(ctx context.Context, roomName string) ([]*domain.RoomParticipant, error) {
	if _, err := s.GetByName(ctx, roomName); err != nil {
		return nil, err
	}
	return s.roomRepo.GetParticipantsByRoom(ctx, roomName)
}

// Delete деактивирует комнату. Права проверяются перечитыванием роли
// из персистентного состояния на момент операции.
func (s *roomService) Delete(ctx context.Context, name string, actorID uuid.UUID) error {
	if _, err := s.GetByName(ctx, name); err != nil {
		return err
	}

	actor, err := s.roomRepo.GetParticipant(ctx, name, actorID)
	if err != nil || actor.Role != domain.ParticipantRoleAdmin {
		return apperrors.ErrPermissionDenied
	}

	if err := s.roomRepo.SoftDelete(ctx, name); err != nil {
		return err
	}

	s.audit(ctx, actorID, name, domain.EventTypeRoomDeleted, nil)

	roomName := name
	s.broadcaster.SendToRoom(name, domain.EventNotification, domain.NotificationPayload{
		Kind:    domain.NotificationKindRoomDeleted,
		Message: "room has been deleted",
		Room:    &roomName,
	})

	// Снимаем всех подписчиков комнаты с live-доставки
	for _, userID := range s.index.Invert()[name] {
		s.index.Unsubscribe(userID, name)
		for _, session := range s.registry.FindByUserID(userID) {
			s.broadcaster.LeaveGroup(name, session.ConnectionID)
		}
	}

	return nil
}

// RemoveUser (kick): модератор может убрать участника, админа может
// убрать только другой админ. Себя кикать нельзя, для этого есть Leave.
func (s *roomService) RemoveUser(ctx context.Context, roomName string, actorID, targetID uuid.UUID) error {
	if actorID == targetID {
		return apperrors.ErrBadRequest
	}

	actor, err := s.roomRepo.GetParticipant(ctx, roomName, actorID)
	if err != nil || !domain.CanModerate(actor.Role) {
		return apperrors.ErrPermissionDenied
	}

	target, err := s.roomRepo.GetParticipant(ctx, roomName, targetID)
	if err != nil {
		return apperrors.ErrParticipantNotFound
	}
	if target.Role == domain.ParticipantRoleAdmin && actor.Role != domain.ParticipantRoleAdmin {
		return apperrors.ErrPermissionDenied
	}

	if err := s.roomRepo.RemoveParticipant(ctx, roomName, targetID); err != nil {
		return err
	}

	s.audit(ctx, actorID, roomName, domain.EventTypeUserKicked, map[string]interface{}{
		"targetUserId": targetID.String(),
	})

	s.index.Unsubscribe(targetID, roomName)
	for _, session := range s.registry.FindByUserID(targetID) {
		s.broadcaster.LeaveGroup(roomName, session.ConnectionID)
	}

	name := roomName
	s.broadcaster.SendToRoom(roomName, domain.EventUserLeft, domain.UserPresencePayload{
		Room:     &name,
		UserID:   targetID,
		Username: target.Username,
	})
	s.broadcaster.SendToUser(targetID, domain.EventNotification, domain.NotificationPayload{
		Kind:    domain.NotificationKindRemoved,
		Message: "you have been removed from the room",
		Room:    &name,
	})

	return nil
}

func (s *roomService) ChangeUserRole(ctx context.Context, roomName string, actorID, targetID uuid.UUID, role string) error {
	if !domain.ValidRole(role) {
		return apperrors.ErrBadRequest
	}

	actor, err := s.roomRepo.GetParticipant(ctx, roomName, actorID)
	if err != nil || actor.Role != domain.ParticipantRoleAdmin {
		return apperrors.ErrPermissionDenied
	}

	if _, err := s.roomRepo.GetParticipant(ctx, roomName, targetID); err != nil {
		return apperrors.ErrParticipantNotFound
	}

	if err := s.roomRepo.UpdateParticipantRole(ctx, roomName, targetID, role); err != nil {
		return err
	}

	s.audit(ctx, actorID, roomName, domain.EventTypeRoleChanged, map[string]interface{}{
		"targetUserId": targetID.String(),
		"role":         role,
	})

	name := roomName
	s.broadcaster.SendToUser(targetID, domain.EventNotification, domain.NotificationPayload{
		Kind:    domain.NotificationKindRoleChanged,
		Message: "your role is now " + role,
		Room:    &name,
	})

	return nil
}

// AuditTrail — журнал событий комнаты, доступен только админу
func (s *roomService) AuditTrail(ctx context.Context, roomName string, actorID uuid.UUID, limit int) ([]*domain.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	if _, err := s.GetByName(ctx, roomName); err != nil {
		return nil, err
	}

	actor, err := s.roomRepo.GetParticipant(ctx, roomName, actorID)
	if err != nil || actor.Role != domain.ParticipantRoleAdmin {
		return nil, apperrors.ErrPermissionDenied
	}

	return s.auditRepo.ListByRoom(ctx, roomName, limit)
}

// audit — best-effort: сбой записи аудита не валит операцию
func (s *roomService) audit(ctx context.Context, actorID uuid.UUID, room, eventType string, payload map[string]interface{}) {
	entry := &domain.AuditLog{
		EventTime:   time.Now(),
		ActorUserID: &actorID,
		Room:        &room,
		EventType:   eventType,
		Payload:     payload,
	}
	if err := s.auditRepo.CreateLog(ctx, entry); err != nil {
		s.log.Warn("Failed to write audit log", "event_type", eventType, "room", room, "error", err)
	}
}
