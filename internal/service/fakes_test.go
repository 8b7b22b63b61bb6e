package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
)

// In-memory фейки репозиториев для тестов сервисов

type fakeRoomRepo struct {
	rooms        map[string]*domain.Room
	participants map[string]map[uuid.UUID]*domain.RoomParticipant
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{
		rooms:        make(map[string]*domain.Room),
		participants: make(map[string]map[uuid.UUID]*domain.RoomParticipant),
	}
}

func (f *fakeRoomRepo) Create(ctx context.Context, room *domain.Room) error {
	if _, ok := f.rooms[room.Name]; ok {
		return apperrors.ErrRoomAlreadyExists
	}
	clone := *room
	f.rooms[room.Name] = &clone
	return nil
}

func (f *fakeRoomRepo) GetByName(ctx context.Context, name string) (*domain.Room, error) {
	room, ok := f.rooms[name]
	if !ok {
		return nil, apperrors.ErrRoomNotFound
	}
	clone := *room
	return &clone, nil
}

func (f *fakeRoomRepo) ListActive(ctx context.Context, limit, offset int) ([]*domain.Room, error) {
	var result []*domain.Room
	for _, room := range f.rooms {
		if room.IsActive {
			clone := *room
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (f *fakeRoomRepo) SoftDelete(ctx context.Context, name string) error {
	room, ok := f.rooms[name]
	if !ok {
		return apperrors.ErrRoomNotFound
	}
	room.IsActive = false
	return nil
}

func (f *fakeRoomRepo) TouchActivity(ctx context.Context, name string) error {
	if room, ok := f.rooms[name]; ok {
		room.LastActivity = time.Now()
	}
	return nil
}

func (f *fakeRoomRepo) IncrementMessageCount(ctx context.Context, name string) error {
	if room, ok := f.rooms[name]; ok {
		room.MessageCount++
	}
	return nil
}

func (f *fakeRoomRepo) activeCount(roomName string) int {
	count := 0
	for _, p := range f.participants[roomName] {
		if p.IsActive {
			count++
		}
	}
	return count
}

func (f *fakeRoomRepo) addParticipant(p *domain.RoomParticipant) {
	if f.participants[p.RoomName] == nil {
		f.participants[p.RoomName] = make(map[uuid.UUID]*domain.RoomParticipant)
	}
	clone := *p
	f.participants[p.RoomName][p.UserID] = &clone
}

func (f *fakeRoomRepo) AddParticipantIfCapacity(ctx context.Context, p *domain.RoomParticipant) error {
	room, ok := f.rooms[p.RoomName]
	if !ok {
		return apperrors.ErrRoomNotFound
	}
	if f.activeCount(p.RoomName) >= room.MaxParticipants {
		return apperrors.ErrRoomFull
	}
	f.addParticipant(p)
	return nil
}

func (f *fakeRoomRepo) GetParticipant(ctx context.Context, roomName string, userID uuid.UUID) (*domain.RoomParticipant, error) {
	p, ok := f.participants[roomName][userID]
	if !ok {
		return nil, apperrors.ErrParticipantNotFound
	}
	clone := *p
	return &clone, nil
}

func (f *fakeRoomRepo) GetParticipantsByRoom(ctx context.Context, roomName string) ([]*domain.RoomParticipant, error) {
	var result []*domain.RoomParticipant
	for _, p := range f.participants[roomName] {
		clone := *p
		result = append(result, &clone)
	}
	return result, nil
}

func (f *fakeRoomRepo) ReactivateParticipant(ctx context.Context, roomName string, userID uuid.UUID) error {
	p, ok := f.participants[roomName][userID]
	if !ok {
		return apperrors.ErrParticipantNotFound
	}
	p.IsActive = true
	return nil
}

func (f *fakeRoomRepo) DeactivateParticipant(ctx context.Context, roomName string, userID uuid.UUID) (bool, error) {
	p, ok := f.participants[roomName][userID]
	if !ok || !p.IsActive {
		return false, nil
	}
	p.IsActive = false
	return true, nil
}

func (f *fakeRoomRepo) RemoveParticipant(ctx context.Context, roomName string, userID uuid.UUID) error {
	delete(f.participants[roomName], userID)
	return nil
}

func (f *fakeRoomRepo) UpdateParticipantRole(ctx context.Context, roomName string, userID uuid.UUID, role string) error {
	p, ok := f.participants[roomName][userID]
	if !ok {
		return apperrors.ErrParticipantNotFound
	}
	p.Role = role
	return nil
}

func (f *fakeRoomRepo) TouchParticipantLastSeen(ctx context.Context, roomName string, userID uuid.UUID) error {
	if p, ok := f.participants[roomName][userID]; ok {
		p.LastSeen = time.Now()
	}
	return nil
}

func (f *fakeRoomRepo) ListUserRooms(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var result []string
	for roomName, members := range f.participants {
		room, ok := f.rooms[roomName]
		if !ok || !room.IsActive {
			continue
		}
		if p, ok := members[userID]; ok && p.IsActive {
			result = append(result, roomName)
		}
	}
	return result, nil
}

type fakeMessageRepo struct {
	messages map[uuid.UUID]*domain.Message
	order    []uuid.UUID
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[uuid.UUID]*domain.Message)}
}

func (f *fakeMessageRepo) Create(ctx context.Context, message *domain.Message) error {
	clone := *message
	f.messages[message.ID] = &clone
	f.order = append(f.order, message.ID)
	return nil
}

func (f *fakeMessageRepo) GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	msg, ok := f.messages[messageID]
	if !ok {
		return nil, apperrors.ErrMessageNotFound
	}
	clone := *msg
	return &clone, nil
}

func (f *fakeMessageRepo) ListRecent(ctx context.Context, room *string, limit, offset int) ([]*domain.Message, error) {
	var result []*domain.Message
	for _, id := range f.order {
		msg := f.messages[id]
		sameRoom := (room == nil && msg.Room == nil) ||
			(room != nil && msg.Room != nil && *room == *msg.Room)
		if sameRoom {
			clone := *msg
			result = append(result, &clone)
		}
	}
	if len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

func (f *fakeMessageRepo) UpdateContent(ctx context.Context, messageID uuid.UUID, content string) error {
	msg, ok := f.messages[messageID]
	if !ok {
		return apperrors.ErrMessageNotFound
	}
	msg.Content = content
	msg.IsEdited = true
	return nil
}

func (f *fakeMessageRepo) SoftDelete(ctx context.Context, messageID uuid.UUID) error {
	msg, ok := f.messages[messageID]
	if !ok {
		return apperrors.ErrMessageNotFound
	}
	msg.Content = domain.DeletedMessagePlaceholder
	msg.IsDeleted = true
	return nil
}

func (f *fakeMessageRepo) SetReactions(ctx context.Context, messageID uuid.UUID, reactions []domain.Reaction) error {
	msg, ok := f.messages[messageID]
	if !ok {
		return apperrors.ErrMessageNotFound
	}
	msg.Reactions = reactions
	return nil
}

type fakeUserRepo struct {
	users map[uuid.UUID]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*domain.User)}
}

func (f *fakeUserRepo) Create(ctx context.Context, user *domain.User) error {
	clone := *user
	f.users[user.ID] = &clone
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	for _, user := range f.users {
		if user.Username == username {
			clone := *user
			return &clone, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeUserRepo) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	if user, ok := f.users[id]; ok {
		user.IsOnline = online
	}
	return nil
}

func (f *fakeUserRepo) CreateSession(ctx context.Context, session *domain.UserSession) error {
	return nil
}

func (f *fakeUserRepo) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.UserSession, error) {
	return nil, apperrors.ErrNotFound
}

func (f *fakeUserRepo) RevokeSession(ctx context.Context, sessionID uuid.UUID, reason string) error {
	return nil
}

// fakeBroadcaster записывает fan-out вызовы вместо доставки
type broadcastEvent struct {
	scope   string // "room", "roomExceptUser", "user", "global"
	room    string
	userID  uuid.UUID
	event   string
	payload any
}

type fakeBroadcaster struct {
	events []broadcastEvent
	groups map[string]map[string]bool
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{groups: make(map[string]map[string]bool)}
}

func (f *fakeBroadcaster) JoinGroup(room, connectionID string) {
	if f.groups[room] == nil {
		f.groups[room] = make(map[string]bool)
	}
	f.groups[room][connectionID] = true
}

func (f *fakeBroadcaster) LeaveGroup(room, connectionID string) {
	delete(f.groups[room], connectionID)
}

func (f *fakeBroadcaster) SendToRoom(room, event string, payload any) int {
	f.events = append(f.events, broadcastEvent{scope: "room", room: room, event: event, payload: payload})
	return len(f.groups[room])
}

func (f *fakeBroadcaster) SendToRoomExceptUser(room string, exceptUserID uuid.UUID, event string, payload any) int {
	f.events = append(f.events, broadcastEvent{scope: "roomExceptUser", room: room, userID: exceptUserID, event: event, payload: payload})
	return 0
}

func (f *fakeBroadcaster) SendToUser(userID uuid.UUID, event string, payload any) int {
	f.events = append(f.events, broadcastEvent{scope: "user", userID: userID, event: event, payload: payload})
	return 0
}

func (f *fakeBroadcaster) Broadcast(event string, payload any) int {
	f.events = append(f.events, broadcastEvent{scope: "global", event: event, payload: payload})
	return 0
}

func (f *fakeBroadcaster) eventsOf(event string) []broadcastEvent {
	var result []broadcastEvent
	for _, e := range f.events {
		if e.event == event {
			result = append(result, e)
		}
	}
	return result
}

type fakeAuditRepo struct {
	entries []*domain.AuditLog
}

func (f *fakeAuditRepo) CreateLog(ctx context.Context, entry *domain.AuditLog) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditRepo) ListByRoom(ctx context.Context, room string, limit int) ([]*domain.AuditLog, error) {
	return f.entries, nil
}
