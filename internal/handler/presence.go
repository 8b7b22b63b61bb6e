package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"realtime_chat/internal/realtime"
	"realtime_chat/internal/service"
	"realtime_chat/pkg/logger"
)

// PresenceHandler отдает presence-срезы: кто онлайн и в каких комнатах.
// Данные считаются из in-memory состояния процесса, Redis дает только
// глобальный счетчик.
type PresenceHandler struct {
	presenceService service.PresenceService
	registry        *realtime.SessionRegistry
	broadcaster     *realtime.Broadcaster
	log             logger.Logger
}

func NewPresenceHandler(
	presenceService service.PresenceService,
	registry *realtime.SessionRegistry,
	broadcaster *realtime.Broadcaster,
	log logger.Logger,
) *PresenceHandler {
	return &PresenceHandler{
		presenceService: presenceService,
		registry:        registry,
		broadcaster:     broadcaster,
		log:             log,
	}
}

// ActiveRooms — срез по всем комнатам с подписчиками
func (h *PresenceHandler) ActiveRooms(c *gin.Context) {
	onlineCount, err := h.presenceService.OnlineCount(c.Request.Context())
	if err != nil {
		h.log.Warn("Failed to get online count", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"connections": h.registry.Count(),
		"online":      onlineCount,
		"rooms":       h.broadcaster.ActiveRooms(),
	})
}

// RoomStats — срез по одной комнате
func (h *PresenceHandler) RoomStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.broadcaster.RoomStats(c.Param("name")))
}
