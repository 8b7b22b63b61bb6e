package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// Session — живое соединение: кто подключен прямо сейчас.
// CurrentRoom — единственная "активная" комната для legacy-потока
// с одной комнатой; multi-room подписки живут в MembershipIndex.
type Session struct {
	ConnectionID string    `json:"connectionId"`
	UserID       uuid.UUID `json:"userId"`
	Username     string    `json:"username"`
	CurrentRoom  string    `json:"currentRoom,omitempty"`
}

// SessionRegistry — in-memory таблица живых соединений, ground truth
// для live-доставки. Без персистентности: время жизни записи ограничено
// соединением. Один пользователь может держать несколько сессий
// (несколько вкладок/устройств).
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
	}
}

func (r *SessionRegistry) Register(connectionID string, userID uuid.UUID, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[connectionID] = &Session{
		ConnectionID: connectionID,
		UserID:       userID,
		Username:     username,
	}
}

// Get возвращает копию сессии; false — если соединение неизвестно
func (r *SessionRegistry) Get(connectionID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connectionID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

func (r *SessionRegistry) SetCurrentRoom(connectionID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[connectionID]; ok {
		s.CurrentRoom = room
	}
}

// FindByUserID — линейный скан по всем сессиям. Это сознательный
// потолок масштабируемости: ожидаемая кардинальность одновременно
// подключенных пользователей мала, индекс по userID не окупается.
func (r *SessionRegistry) FindByUserID(userID uuid.UUID) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			result = append(result, *s)
		}
	}
	return result
}

func (r *SessionRegistry) Remove(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, connectionID)
}

func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}
