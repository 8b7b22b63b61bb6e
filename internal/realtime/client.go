package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"realtime_chat/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxInboundFrameSize = 64 * 1024
)

// Client — одно живое WebSocket-соединение аутентифицированного
// пользователя. Исходящие кадры идут через буферизованный канал send
// и единственную write-горутину; переполнение буфера означает мертвого
// или безнадежно медленного клиента — соединение закрывается.
type Client struct {
	ID       string
	UserID   uuid.UUID
	Username string

	conn *websocket.Conn
	send chan []byte
	log  logger.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(conn *websocket.Conn, userID uuid.UUID, username string, sendBuffer int, log logger.Logger) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	if conn != nil {
		conn.SetReadLimit(maxInboundFrameSize)
	}

	return &Client{
		ID:       uuid.New().String(),
		UserID:   userID,
		Username: username,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		log:      log,
		done:     make(chan struct{}),
	}
}

// Enqueue ставит кадр в очередь отправки без блокировки.
// false — буфер полон или соединение закрыто.
func (c *Client) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// WritePump — единственный писатель в соединение: кадры из очереди
// плюс периодические ping. Запускается отдельной горутиной на клиента.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// ReadFrame читает следующий входящий кадр; обновляет read deadline
// по pong-ответам
func (c *Client) ReadFrame() ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return nil, err
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	_, frame, err := c.conn.ReadMessage()
	return frame, err
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn == nil {
			return
		}
		if err := c.conn.Close(); err != nil {
			c.log.Debug("Connection close", "connection_id", c.ID, "error", err)
		}
	})
}
