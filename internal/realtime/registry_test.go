package realtime

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRegistry_RegisterAndGet(t *testing.T) {
	r := NewSessionRegistry()
	userID := uuid.New()

	r.Register("conn-1", userID, "alice")

	s, ok := r.Get("conn-1")
	require.True(t, ok)
	assert.Equal(t, "conn-1", s.ConnectionID)
	assert.Equal(t, userID, s.UserID)
	assert.Equal(t, "alice", s.Username)
	assert.Empty(t, s.CurrentRoom)

	_, ok = r.Get("unknown")
	assert.False(t, ok)
}

func TestSessionRegistry_SetCurrentRoom(t *testing.T) {
	r := NewSessionRegistry()
	r.Register("conn-1", uuid.New(), "alice")

	r.SetCurrentRoom("conn-1", "general")
	s, _ := r.Get("conn-1")
	assert.Equal(t, "general", s.CurrentRoom)

	r.SetCurrentRoom("conn-1", "")
	s, _ = r.Get("conn-1")
	assert.Empty(t, s.CurrentRoom)

	// Неизвестное соединение не паникует
	r.SetCurrentRoom("unknown", "general")
}

func TestSessionRegistry_MultipleSessionsPerUser(t *testing.T) {
	r := NewSessionRegistry()
	userID := uuid.New()

	// Две вкладки одного пользователя
	r.Register("conn-1", userID, "alice")
	r.Register("conn-2", userID, "alice")
	r.Register("conn-3", uuid.New(), "bob")

	sessions := r.FindByUserID(userID)
	assert.Len(t, sessions, 2)
	assert.Equal(t, 3, r.Count())
}

func TestSessionRegistry_Remove(t *testing.T) {
	r := NewSessionRegistry()
	userID := uuid.New()
	r.Register("conn-1", userID, "alice")

	r.Remove("conn-1")
	_, ok := r.Get("conn-1")
	assert.False(t, ok)
	assert.Empty(t, r.FindByUserID(userID))

	// Повторное удаление — no-op
	r.Remove("conn-1")
	assert.Equal(t, 0, r.Count())
}

func TestSessionRegistry_GetReturnsCopy(t *testing.T) {
	r := NewSessionRegistry()
	r.Register("conn-1", uuid.New(), "alice")

	s, _ := r.Get("conn-1")
	s.CurrentRoom = "hacked"

	fresh, _ := r.Get("conn-1")
	assert.Empty(t, fresh.CurrentRoom)
}
