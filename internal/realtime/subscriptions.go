package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// MembershipIndex — in-memory отображение userID -> множество комнат,
// на которые пользователь подписан для live-доставки. Это строго
// routing-оптимизация поверх персистентного списка участников: при
// reconnect подписки пересобираются из PersistedRoom, а не из
// устаревшего состояния индекса.
type MembershipIndex struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[string]struct{}
}

func NewMembershipIndex() *MembershipIndex {
	return &MembershipIndex{
		rooms: make(map[uuid.UUID]map[string]struct{}),
	}
}

// Subscribe идемпотентен: повторная подписка на ту же комнату — no-op
func (m *MembershipIndex) Subscribe(userID uuid.UUID, room string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.rooms[userID]
	if !ok {
		set = make(map[string]struct{})
		m.rooms[userID] = set
	}
	set[room] = struct{}{}
}

// Unsubscribe идемпотентен; пустое множество удаляется целиком
func (m *MembershipIndex) Unsubscribe(userID uuid.UUID, room string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.rooms[userID]
	if !ok {
		return
	}
	delete(set, room)
	if len(set) == 0 {
		delete(m.rooms, userID)
	}
}

func (m *MembershipIndex) RoomsOf(userID uuid.UUID) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set, ok := m.rooms[userID]
	if !ok {
		return nil
	}

	rooms := make([]string, 0, len(set))
	for room := range set {
		rooms = append(rooms, room)
	}
	return rooms
}

// Clear вызывается при полном disconnect cleanup
func (m *MembershipIndex) Clear(userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.rooms, userID)
}

// Invert группирует подписки по комнате: room -> userIDs.
// O(total subscriptions) на вызов — допустимо, это on-demand
// запрос статуса, не горячий путь сообщений.
func (m *MembershipIndex) Invert() map[string][]uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]uuid.UUID)
	for userID, set := range m.rooms {
		for room := range set {
			result[room] = append(result[room], userID)
		}
	}
	return result
}
