package service

import (
	"github.com/google/uuid"

	"realtime_chat/internal/config"
	"realtime_chat/internal/realtime"
	"realtime_chat/internal/repository"
	"realtime_chat/pkg/logger"
)

// EventBroadcaster — подмножество fan-out слоя, которое потребляют
// сервисы. Реализуется realtime.Broadcaster.
type EventBroadcaster interface {
	JoinGroup(room, connectionID string)
	LeaveGroup(room, connectionID string)
	SendToRoom(room, event string, payload any) int
	SendToRoomExceptUser(room string, exceptUserID uuid.UUID, event string, payload any) int
	SendToUser(userID uuid.UUID, event string, payload any) int
	Broadcast(event string, payload any) int
}

type Services struct {
	Auth      AuthService
	Room      RoomService
	Message   MessageService
	Presence  PresenceService
	RateLimit RateLimitService
}

func NewServices(
	repos *repository.Repositories,
	cfg *config.Config,
	registry *realtime.SessionRegistry,
	index *realtime.MembershipIndex,
	broadcaster *realtime.Broadcaster,
	log logger.Logger,
) *Services {
	return &Services{
		Auth:      NewAuthService(repos.User, cfg.JWT, log),
		Room:      NewRoomService(repos.Room, repos.Audit, registry, index, broadcaster, cfg.Chat.DefaultMaxParticipants, log),
		Message:   NewMessageService(repos.Message, repos.Room, repos.User, broadcaster, cfg.Chat.MaxMessageLength, cfg.Chat.HistoryLimit, log),
		Presence:  NewPresenceService(repos.Presence, repos.User, log),
		RateLimit: NewRateLimitService(repos.RateLimit, log),
	}
}
