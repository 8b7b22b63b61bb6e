package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime_chat/internal/domain"
	"realtime_chat/pkg/logger"
)

type fakeCoordinator struct {
	joined    []string
	left      []string
	userRooms []string
	joinErr   error
}

func (f *fakeCoordinator) Join(ctx context.Context, roomName string, userID uuid.UUID, username string) (*domain.Room, error) {
	if f.joinErr != nil {
		return nil, f.joinErr
	}
	f.joined = append(f.joined, roomName)
	return &domain.Room{Name: roomName, RoomType: domain.RoomTypePublic, IsActive: true}, nil
}

func (f *fakeCoordinator) Leave(ctx context.Context, roomName string, userID uuid.UUID) (bool, error) {
	f.left = append(f.left, roomName)
	return true, nil
}

func (f *fakeCoordinator) UserRooms(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return f.userRooms, nil
}

func (f *fakeCoordinator) TouchLastSeen(ctx context.Context, roomName string, userID uuid.UUID) error {
	return nil
}

type fakePipeline struct {
	sent     []string
	sendErr  error
	messages []*domain.Message
}

func (f *fakePipeline) Send(ctx context.Context, sender domain.MessageSender, content string, room *string, replyTo *uuid.UUID, mentions []string) (*domain.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, content)
	return &domain.Message{ID: uuid.New(), Content: content, Sender: sender, Room: room}, nil
}

func (f *fakePipeline) History(ctx context.Context, room *string, limit, offset int) ([]*domain.Message, error) {
	return f.messages, nil
}

func (f *fakePipeline) AddReaction(ctx context.Context, messageID uuid.UUID, user domain.MessageSender, emoji string) (*domain.Message, error) {
	return &domain.Message{ID: messageID}, nil
}

func (f *fakePipeline) Edit(ctx context.Context, messageID, userID uuid.UUID, newContent string) (*domain.Message, error) {
	return &domain.Message{ID: messageID, Content: newContent, IsEdited: true}, nil
}

func (f *fakePipeline) Delete(ctx context.Context, messageID, userID uuid.UUID) (*domain.Message, error) {
	return &domain.Message{ID: messageID, IsDeleted: true}, nil
}

type fakePresence struct {
	online  []uuid.UUID
	offline []uuid.UUID
}

func (f *fakePresence) Connected(ctx context.Context, userID uuid.UUID) error {
	f.online = append(f.online, userID)
	return nil
}

func (f *fakePresence) Disconnected(ctx context.Context, userID uuid.UUID) error {
	f.offline = append(f.offline, userID)
	return nil
}

type handlerFixture struct {
	handler     *ConnectionHandler
	registry    *SessionRegistry
	index       *MembershipIndex
	broadcaster *Broadcaster
	rooms       *fakeCoordinator
	pipeline    *fakePipeline
	presence    *fakePresence
}

func newHandlerFixture() *handlerFixture {
	registry := NewSessionRegistry()
	index := NewMembershipIndex()
	log := logger.New("error")
	broadcaster := NewBroadcaster(registry, index, log)
	rooms := &fakeCoordinator{}
	pipeline := &fakePipeline{}
	presence := &fakePresence{}

	return &handlerFixture{
		handler:     NewConnectionHandler(registry, index, broadcaster, rooms, pipeline, presence, 20, log),
		registry:    registry,
		index:       index,
		broadcaster: broadcaster,
		rooms:       rooms,
		pipeline:    pipeline,
		presence:    presence,
	}
}

// attach имитирует установку соединения без реального WebSocket
func (f *handlerFixture) attach(t *testing.T, username string) *Client {
	t.Helper()
	c := newTestClient(username)
	f.handler.connect(context.Background(), c)
	return c
}

func frame(t *testing.T, eventType string, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(domain.Envelope{Type: eventType, Payload: raw})
	require.NoError(t, err)
	return data
}

func TestConnect_RestoresSubscriptions(t *testing.T) {
	f := newHandlerFixture()
	f.rooms.userRooms = []string{"general", "random"}

	c := f.attach(t, "alice")

	_, ok := f.registry.Get(c.ID)
	assert.True(t, ok)
	assert.ElementsMatch(t, []string{"general", "random"}, f.index.RoomsOf(c.UserID))
	assert.Equal(t, []uuid.UUID{c.UserID}, f.presence.online)

	// Transport-группы восстановлены: комната достает клиента
	sent := f.broadcaster.SendToRoom("general", domain.EventUserTyping, nil)
	assert.Equal(t, 1, sent)
}

func TestDispatch_UnknownEventType(t *testing.T) {
	f := newHandlerFixture()
	c := f.attach(t, "alice")

	f.handler.Dispatch(context.Background(), c, frame(t, "bogus", struct{}{}))

	frames := drainFrames(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, domain.EventError, frames[0].Type)
}

func TestDispatch_InvalidFrame(t *testing.T) {
	f := newHandlerFixture()
	c := f.attach(t, "alice")

	f.handler.Dispatch(context.Background(), c, []byte("{not json"))

	frames := drainFrames(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, domain.EventError, frames[0].Type)
}

func TestDispatch_JoinRoom(t *testing.T) {
	f := newHandlerFixture()
	c := f.attach(t, "alice")
	drainFrames(t, c)

	f.handler.Dispatch(context.Background(), c, frame(t, domain.EventJoinRoom, domain.JoinRoomPayload{Room: "general"}))

	assert.Equal(t, []string{"general"}, f.rooms.joined)

	frames := drainFrames(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, domain.EventRoomJoined, frames[0].Type)

	var p domain.RoomJoinedPayload
	require.NoError(t, json.Unmarshal(frames[0].Payload, &p))
	assert.Equal(t, "general", p.Room)
	require.NotNil(t, p.RoomInfo)
	assert.Equal(t, "general", p.RoomInfo.Name)
}

func TestDispatch_JoinRoomRequiresName(t *testing.T) {
	f := newHandlerFixture()
	c := f.attach(t, "alice")

	f.handler.Dispatch(context.Background(), c, frame(t, domain.EventJoinRoom, domain.JoinRoomPayload{Room: "  "}))

	frames := drainFrames(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, domain.EventError, frames[0].Type)
	assert.Empty(t, f.rooms.joined)
}

func TestDispatch_LegacyJoinSetsCurrentRoom(t *testing.T) {
	f := newHandlerFixture()
	c := f.attach(t, "alice")
	drainFrames(t, c)

	f.handler.Dispatch(context.Background(), c, frame(t, domain.EventJoin, domain.JoinPayload{Room: "general"}))

	s, _ := f.registry.Get(c.ID)
	assert.Equal(t, "general", s.CurrentRoom)

	frames := drainFrames(t, c)
	require.Len(t, frames, 2)
	assert.Equal(t, domain.EventRoomHistory, frames[0].Type)
	assert.Equal(t, domain.EventJoined, frames[1].Type)
}

func TestDispatch_SendMessageEmptyContent(t *testing.T) {
	f := newHandlerFixture()
	c := f.attach(t, "alice")

	f.handler.Dispatch(context.Background(), c, frame(t, domain.EventSendMessage, domain.SendMessagePayload{Message: "   "}))

	frames := drainFrames(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, domain.EventError, frames[0].Type)
	assert.Empty(t, f.pipeline.sent)
}

func TestDispatch_SendMessageUsesCurrentRoom(t *testing.T) {
	f := newHandlerFixture()
	c := f.attach(t, "alice")
	f.registry.SetCurrentRoom(c.ID, "general")

	f.handler.Dispatch(context.Background(), c, frame(t, domain.EventSendMessage, domain.SendMessagePayload{Message: "hello"}))

	assert.Equal(t, []string{"hello"}, f.pipeline.sent)
	assert.Empty(t, drainFrames(t, c))
}

func TestDispatch_TypingFanOutExcludesSender(t *testing.T) {
	f := newHandlerFixture()
	alice := f.attach(t, "alice")
	bob := f.attach(t, "bob")

	f.index.Subscribe(alice.UserID, "general")
	f.index.Subscribe(bob.UserID, "general")
	f.broadcaster.JoinGroup("general", alice.ID)
	f.broadcaster.JoinGroup("general", bob.ID)
	drainFrames(t, alice)
	drainFrames(t, bob)

	f.handler.Dispatch(context.Background(), alice, frame(t, domain.EventTyping, domain.TypingPayload{Room: "general", IsTyping: true}))

	assert.Empty(t, drainFrames(t, alice))

	frames := drainFrames(t, bob)
	require.Len(t, frames, 1)
	assert.Equal(t, domain.EventUserTyping, frames[0].Type)

	var p domain.UserTypingPayload
	require.NoError(t, json.Unmarshal(frames[0].Payload, &p))
	assert.Equal(t, "alice", p.Username)
	assert.True(t, p.IsTyping)
}

func TestDisconnect_LastSessionCleanup(t *testing.T) {
	f := newHandlerFixture()
	alice := f.attach(t, "alice")
	bob := f.attach(t, "bob")

	f.index.Subscribe(alice.UserID, "general")
	f.index.Subscribe(bob.UserID, "general")
	f.broadcaster.JoinGroup("general", alice.ID)
	f.broadcaster.JoinGroup("general", bob.ID)

	f.handler.disconnect(context.Background(), alice)

	// Полный cleanup: реестр, индекс, presence
	_, ok := f.registry.Get(alice.ID)
	assert.False(t, ok)
	assert.Empty(t, f.index.RoomsOf(alice.UserID))
	assert.Equal(t, []uuid.UUID{alice.UserID}, f.presence.offline)

	// Остальная комната получила user_left
	frames := drainFrames(t, bob)
	require.Len(t, frames, 1)
	assert.Equal(t, domain.EventUserLeft, frames[0].Type)

	var p domain.UserPresencePayload
	require.NoError(t, json.Unmarshal(frames[0].Payload, &p))
	assert.Equal(t, "alice", p.Username)
	require.NotNil(t, p.Room)
	assert.Equal(t, "general", *p.Room)
}

func TestDisconnect_OtherSessionKeepsSubscriptions(t *testing.T) {
	f := newHandlerFixture()

	userID := uuid.New()
	tab1 := NewClient(nil, userID, "alice", 16, logger.New("error"))
	tab2 := NewClient(nil, userID, "alice", 16, logger.New("error"))
	f.handler.connect(context.Background(), tab1)
	f.handler.connect(context.Background(), tab2)

	bob := f.attach(t, "bob")
	f.index.Subscribe(userID, "general")
	f.index.Subscribe(bob.UserID, "general")
	f.broadcaster.JoinGroup("general", tab1.ID)
	f.broadcaster.JoinGroup("general", tab2.ID)
	f.broadcaster.JoinGroup("general", bob.ID)

	// Закрылась одна вкладка из двух
	f.handler.disconnect(context.Background(), tab1)

	assert.Equal(t, []string{"general"}, f.index.RoomsOf(userID))
	assert.Empty(t, f.presence.offline)
	assert.Empty(t, drainFrames(t, bob))

	// Вторая вкладка все еще получает сообщения комнаты
	sent := f.broadcaster.SendToRoom("general", domain.EventUserTyping, nil)
	assert.Equal(t, 2, sent)
}

func TestDispatch_LeaveRoom(t *testing.T) {
	f := newHandlerFixture()
	c := f.attach(t, "alice")
	f.registry.SetCurrentRoom(c.ID, "general")
	drainFrames(t, c)

	f.handler.Dispatch(context.Background(), c, frame(t, domain.EventLeaveRoom, domain.LeaveRoomPayload{}))

	// Комната взята из CurrentRoom, после выхода она сброшена
	assert.Equal(t, []string{"general"}, f.rooms.left)
	s, _ := f.registry.Get(c.ID)
	assert.Empty(t, s.CurrentRoom)

	frames := drainFrames(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, domain.EventRoomLeft, frames[0].Type)
}
