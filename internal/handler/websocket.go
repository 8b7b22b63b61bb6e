package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"realtime_chat/internal/config"
	"realtime_chat/internal/realtime"
	"realtime_chat/internal/service"
	"realtime_chat/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // В продакшене нужно проверять origin
	},
}

type WebSocketHandler struct {
	authService service.AuthService
	connHandler *realtime.ConnectionHandler
	chatCfg     config.ChatConfig
	log         logger.Logger
}

func NewWebSocketHandler(
	authService service.AuthService,
	connHandler *realtime.ConnectionHandler,
	chatCfg config.ChatConfig,
	log logger.Logger,
) *WebSocketHandler {
	upgrader.HandshakeTimeout = chatCfg.HandshakeTimeout
	return &WebSocketHandler{
		authService: authService,
		connHandler: connHandler,
		chatCfg:     chatCfg,
		log:         log,
	}
}

// HandleChat — вход в realtime-канал. Токен проверяется до upgrade:
// невалидный токен получает обычный HTTP 401, а не разорванный WebSocket.
// Токен принимается из query (?token=) или из Authorization заголовка.
func (h *WebSocketHandler) HandleChat(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		if auth := c.GetHeader("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
			token = auth[7:]
		}
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
		return
	}

	user, err := h.authService.ValidateToken(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := realtime.NewClient(conn, user.ID, user.Username, h.chatCfg.SendBufferSize, h.log)

	// Serve блокируется до разрыва соединения; cleanup внутри.
	// Request context после hijack не годится, disconnect cleanup
	// должен пережить завершение HTTP-запроса.
	h.connHandler.Serve(context.Background(), client)
}
