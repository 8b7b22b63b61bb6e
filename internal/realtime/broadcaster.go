package realtime

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/google/uuid"

	"realtime_chat/internal/domain"
	"realtime_chat/pkg/logger"
)

// Broadcaster — fan-out слой: вычисляет целевое множество живых
// соединений (по комнате, пользователю или глобально) и проталкивает
// им событие. Fan-out — push без backpressure: медленный клиент не
// тормозит комнату, его кадр просто отбрасывается вместе с соединением.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[string]*Client            // connectionID -> client
	groups  map[string]map[string]*Client // room -> connectionID -> client

	registry *SessionRegistry
	index    *MembershipIndex
	log      logger.Logger
}

func NewBroadcaster(registry *SessionRegistry, index *MembershipIndex, log logger.Logger) *Broadcaster {
	return &Broadcaster{
		clients:  make(map[string]*Client),
		groups:   make(map[string]map[string]*Client),
		registry: registry,
		index:    index,
		log:      log,
	}
}

func (b *Broadcaster) AddClient(c *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.clients[c.ID] = c
}

func (b *Broadcaster) RemoveClient(connectionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.clients, connectionID)
	for room, group := range b.groups {
		delete(group, connectionID)
		if len(group) == 0 {
			delete(b.groups, room)
		}
	}
}

// JoinGroup включает соединение в transport-группу комнаты
func (b *Broadcaster) JoinGroup(room, connectionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.clients[connectionID]
	if !ok {
		return
	}

	group, ok := b.groups[room]
	if !ok {
		group = make(map[string]*Client)
		b.groups[room] = group
	}
	group[connectionID] = c
}

func (b *Broadcaster) LeaveGroup(room, connectionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if group, ok := b.groups[room]; ok {
		delete(group, connectionID)
		if len(group) == 0 {
			delete(b.groups, room)
		}
	}
}

func (b *Broadcaster) encode(event string, payload any) ([]byte, bool) {
	frame, err := json.Marshal(domain.OutboundFrame{Type: event, Payload: payload})
	if err != nil {
		b.log.Error("Failed to encode outbound frame", "event", event, "error", err)
		return nil, false
	}
	return frame, true
}

func (b *Broadcaster) push(c *Client, frame []byte) bool {
	if !c.Enqueue(frame) {
		b.log.Warn("Dropping frame for slow client", "connection_id", c.ID, "user_id", c.UserID)
		return false
	}
	return true
}

// SendToConnection доставляет событие одному соединению
func (b *Broadcaster) SendToConnection(connectionID, event string, payload any) bool {
	frame, ok := b.encode(event, payload)
	if !ok {
		return false
	}

	b.mu.RLock()
	c, found := b.clients[connectionID]
	b.mu.RUnlock()

	if !found {
		return false
	}
	return b.push(c, frame)
}

// SendToUser доставляет событие всем живым соединениям пользователя.
// Отсутствие соединений — no-op, не ошибка.
func (b *Broadcaster) SendToUser(userID uuid.UUID, event string, payload any) int {
	frame, ok := b.encode(event, payload)
	if !ok {
		return 0
	}

	b.mu.RLock()
	targets := make([]*Client, 0, 2)
	for _, c := range b.clients {
		if c.UserID == userID {
			targets = append(targets, c)
		}
	}
	b.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if b.push(c, frame) {
			sent++
		}
	}
	return sent
}

// SendToRoom доставляет событие каждому соединению в transport-группе
// комнаты, никого не исключая
func (b *Broadcaster) SendToRoom(room, event string, payload any) int {
	return b.sendToRoomFiltered(room, event, payload, nil)
}

// SendToRoomExcept — вариант с подавлением эха: исключает одно
// соединение (обычно инициатора действия)
func (b *Broadcaster) SendToRoomExcept(room, exceptConnectionID, event string, payload any) int {
	return b.sendToRoomFiltered(room, event, payload, func(c *Client) bool {
		return c.ID != exceptConnectionID
	})
}

// SendToRoomExceptUser исключает все соединения пользователя —
// нужен, когда действие инициировано не из realtime-канала (HTTP)
func (b *Broadcaster) SendToRoomExceptUser(room string, exceptUserID uuid.UUID, event string, payload any) int {
	return b.sendToRoomFiltered(room, event, payload, func(c *Client) bool {
		return c.UserID != exceptUserID
	})
}

func (b *Broadcaster) sendToRoomFiltered(room, event string, payload any, keep func(*Client) bool) int {
	frame, ok := b.encode(event, payload)
	if !ok {
		return 0
	}

	b.mu.RLock()
	group := b.groups[room]
	targets := make([]*Client, 0, len(group))
	for _, c := range group {
		if keep == nil || keep(c) {
			targets = append(targets, c)
		}
	}
	b.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if b.push(c, frame) {
			sent++
		}
	}
	return sent
}

// Broadcast доставляет событие буквально каждому живому соединению —
// только для глобального внекомнатного чата
func (b *Broadcaster) Broadcast(event string, payload any) int {
	return b.broadcastFiltered(event, payload, nil)
}

func (b *Broadcaster) BroadcastExcept(exceptConnectionID, event string, payload any) int {
	return b.broadcastFiltered(event, payload, func(c *Client) bool {
		return c.ID != exceptConnectionID
	})
}

func (b *Broadcaster) broadcastFiltered(event string, payload any, keep func(*Client) bool) int {
	frame, ok := b.encode(event, payload)
	if !ok {
		return 0
	}

	b.mu.RLock()
	targets := make([]*Client, 0, len(b.clients))
	for _, c := range b.clients {
		if keep == nil || keep(c) {
			targets = append(targets, c)
		}
	}
	b.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if b.push(c, frame) {
			sent++
		}
	}
	return sent
}

// RoomStats — presence-срез по одной комнате, инверсией
// Membership Index (группировка по комнате, а не по пользователю)
func (b *Broadcaster) RoomStats(room string) domain.RoomStats {
	stats := domain.RoomStats{Room: room, Users: []string{}}

	for _, userID := range b.index.Invert()[room] {
		sessions := b.registry.FindByUserID(userID)
		if len(sessions) == 0 {
			continue
		}
		stats.Users = append(stats.Users, sessions[0].Username)
	}

	sort.Strings(stats.Users)
	stats.UserCount = len(stats.Users)
	return stats
}

// ActiveRooms возвращает presence-срез по всем комнатам с хотя бы
// одним подписчиком. O(total subscriptions) — on-demand запрос,
// не горячий путь.
func (b *Broadcaster) ActiveRooms() []domain.RoomStats {
	inverted := b.index.Invert()

	rooms := make([]string, 0, len(inverted))
	for room := range inverted {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)

	result := make([]domain.RoomStats, 0, len(rooms))
	for _, room := range rooms {
		stats := b.RoomStats(room)
		if stats.UserCount > 0 {
			result = append(result, stats)
		}
	}
	return result
}

// CloseAll закрывает все живые соединения (graceful shutdown)
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	clients := make([]*Client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.clients = make(map[string]*Client)
	b.groups = make(map[string]map[string]*Client)
	b.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
