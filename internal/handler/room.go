package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"realtime_chat/internal/service"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

type RoomHandler struct {
	roomService    service.RoomService
	messageService service.MessageService
	log            logger.Logger
}

func NewRoomHandler(roomService service.RoomService, messageService service.MessageService, log logger.Logger) *RoomHandler {
	return &RoomHandler{
		roomService:    roomService,
		messageService: messageService,
		log:            log,
	}
}

type CreateRoomRequest struct {
	Name            string `json:"name" binding:"required"`
	RoomType        string `json:"roomType"`
	MaxParticipants int    `json:"maxParticipants"`
}

type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

func (h *RoomHandler) Create(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	username := c.MustGet("username").(string)

	room, err := h.roomService.Create(c.Request.Context(), req.Name, req.RoomType, req.MaxParticipants, userID, username)
	if err != nil {
		h.log.Warn("Room creation failed", "error", err, "room", req.Name)
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	h.log.Info("Room created", "room", room.Name, "creator", username)
	c.JSON(http.StatusCreated, room)
}

func (h *RoomHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	rooms, err := h.roomService.ListActive(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *RoomHandler) GetByName(c *gin.Context) {
	room, err := h.roomService.GetByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) Join(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)
	username := c.MustGet("username").(string)

	room, err := h.roomService.Join(c.Request.Context(), c.Param("name"), userID, username)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) Leave(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	left, err := h.roomService.Leave(c.Request.Context(), c.Param("name"), userID)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"left": left})
}

func (h *RoomHandler) Delete(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	if err := h.roomService.Delete(c.Request.Context(), c.Param("name"), userID); err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "room deleted"})
}

func (h *RoomHandler) Participants(c *gin.Context) {
	participants, err := h.roomService.Participants(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"participants": participants})
}

func (h *RoomHandler) RemoveParticipant(c *gin.Context) {
	actorID := c.MustGet("user_id").(uuid.UUID)

	targetID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	if err := h.roomService.RemoveUser(c.Request.Context(), c.Param("name"), actorID, targetID); err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "participant removed"})
}

func (h *RoomHandler) ChangeRole(c *gin.Context) {
	actorID := c.MustGet("user_id").(uuid.UUID)

	targetID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	var req ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if err := h.roomService.ChangeUserRole(c.Request.Context(), c.Param("name"), actorID, targetID, req.Role); err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "role updated"})
}

// Messages — история комнаты постранично, в хронологическом порядке
func (h *RoomHandler) Messages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	room := c.Param("name")
	messages, err := h.messageService.History(c.Request.Context(), &room, limit, offset)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// AuditTrail — журнал событий комнаты, только для админа комнаты
func (h *RoomHandler) AuditTrail(c *gin.Context) {
	actorID := c.MustGet("user_id").(uuid.UUID)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := h.roomService.AuditTrail(c.Request.Context(), c.Param("name"), actorID, limit)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// MyRooms — комнаты, где пользователь активный участник
func (h *RoomHandler) MyRooms(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	rooms, err := h.roomService.UserRooms(c.Request.Context(), userID)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}
	if rooms == nil {
		rooms = []string{}
	}

	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}
