package realtime

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestMembershipIndex_SubscribeIdempotent(t *testing.T) {
	m := NewMembershipIndex()
	userID := uuid.New()

	m.Subscribe(userID, "general")
	m.Subscribe(userID, "general")
	m.Subscribe(userID, "random")

	rooms := m.RoomsOf(userID)
	assert.Len(t, rooms, 2)
	assert.ElementsMatch(t, []string{"general", "random"}, rooms)
}

func TestMembershipIndex_Unsubscribe(t *testing.T) {
	m := NewMembershipIndex()
	userID := uuid.New()

	m.Subscribe(userID, "general")
	m.Unsubscribe(userID, "general")
	assert.Empty(t, m.RoomsOf(userID))

	// Идемпотентность: отписка от несуществующего — no-op
	m.Unsubscribe(userID, "general")
	m.Unsubscribe(uuid.New(), "ghost")
}

func TestMembershipIndex_Clear(t *testing.T) {
	m := NewMembershipIndex()
	userID := uuid.New()
	other := uuid.New()

	m.Subscribe(userID, "general")
	m.Subscribe(userID, "random")
	m.Subscribe(other, "general")

	m.Clear(userID)

	assert.Empty(t, m.RoomsOf(userID))
	assert.Equal(t, []string{"general"}, m.RoomsOf(other))
}

func TestMembershipIndex_Invert(t *testing.T) {
	m := NewMembershipIndex()
	alice := uuid.New()
	bob := uuid.New()

	m.Subscribe(alice, "general")
	m.Subscribe(bob, "general")
	m.Subscribe(bob, "random")

	inverted := m.Invert()
	assert.Len(t, inverted["general"], 2)
	assert.Equal(t, []uuid.UUID{bob}, inverted["random"])
}
