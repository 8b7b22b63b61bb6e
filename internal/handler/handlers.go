package handler

import (
	"realtime_chat/internal/config"
	"realtime_chat/internal/realtime"
	"realtime_chat/internal/service"
	"realtime_chat/pkg/logger"
)

type Handlers struct {
	Health    *HealthHandler
	Auth      *AuthHandler
	Room      *RoomHandler
	Presence  *PresenceHandler
	WebSocket *WebSocketHandler
}

func NewHandlers(
	services *service.Services,
	cfg *config.Config,
	registry *realtime.SessionRegistry,
	broadcaster *realtime.Broadcaster,
	connHandler *realtime.ConnectionHandler,
	log logger.Logger,
) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(),
		Auth:      NewAuthHandler(services.Auth, log),
		Room:      NewRoomHandler(services.Room, services.Message, log),
		Presence:  NewPresenceHandler(services.Presence, registry, broadcaster, log),
		WebSocket: NewWebSocketHandler(services.Auth, connHandler, cfg.Chat, log),
	}
}
