package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime_chat/internal/domain"
	"realtime_chat/internal/realtime"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

type roomFixture struct {
	service     RoomService
	roomRepo    *fakeRoomRepo
	audit       *fakeAuditRepo
	registry    *realtime.SessionRegistry
	index       *realtime.MembershipIndex
	broadcaster *fakeBroadcaster
}

func newRoomFixture(maxParticipants int) *roomFixture {
	roomRepo := newFakeRoomRepo()
	audit := &fakeAuditRepo{}
	registry := realtime.NewSessionRegistry()
	index := realtime.NewMembershipIndex()
	log := logger.New("error")
	broadcaster := newFakeBroadcaster()

	return &roomFixture{
		service:     NewRoomService(roomRepo, audit, registry, index, broadcaster, maxParticipants, log),
		roomRepo:    roomRepo,
		audit:       audit,
		registry:    registry,
		index:       index,
		broadcaster: broadcaster,
	}
}

func TestRoomService_JoinAutoCreatesRoom(t *testing.T) {
	f := newRoomFixture(50)
	ctx := context.Background()
	userID := uuid.New()

	room, err := f.service.Join(ctx, "general", userID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "general", room.Name)
	assert.Equal(t, domain.RoomTypePublic, room.RoomType)
	assert.True(t, room.IsActive)

	// Автосоздатель становится админом
	p, err := f.roomRepo.GetParticipant(ctx, "general", userID)
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantRoleAdmin, p.Role)
	assert.True(t, p.IsActive)

	// Подписка в индексе
	assert.Equal(t, []string{"general"}, f.index.RoomsOf(userID))

	// Аудит создания
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, domain.EventTypeRoomCreated, f.audit.entries[0].EventType)
}

func TestRoomService_JoinIdempotent(t *testing.T) {
	f := newRoomFixture(50)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.service.Join(ctx, "general", userID, "alice")
	require.NoError(t, err)
	_, err = f.service.Join(ctx, "general", userID, "alice")
	require.NoError(t, err)

	participants, err := f.roomRepo.GetParticipantsByRoom(ctx, "general")
	require.NoError(t, err)
	assert.Len(t, participants, 1)
	assert.Equal(t, []string{"general"}, f.index.RoomsOf(userID))
}

func TestRoomService_JoinSecondUserIsMember(t *testing.T) {
	f := newRoomFixture(50)
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()
	_, err := f.service.Join(ctx, "general", alice, "alice")
	require.NoError(t, err)
	_, err = f.service.Join(ctx, "general", bob, "bob")
	require.NoError(t, err)

	p, err := f.roomRepo.GetParticipant(ctx, "general", bob)
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantRoleMember, p.Role)
}

func TestRoomService_CapacityEnforced(t *testing.T) {
	f := newRoomFixture(1)
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()
	_, err := f.service.Join(ctx, "tiny", alice, "alice")
	require.NoError(t, err)

	_, err = f.service.Join(ctx, "tiny", bob, "bob")
	assert.ErrorIs(t, err, apperrors.ErrRoomFull)
	assert.Empty(t, f.index.RoomsOf(bob))

	// После выхода место освобождается
	left, err := f.service.Leave(ctx, "tiny", alice)
	require.NoError(t, err)
	assert.True(t, left)

	_, err = f.service.Join(ctx, "tiny", bob, "bob")
	require.NoError(t, err)
}

func TestRoomService_JoinInactiveRoom(t *testing.T) {
	f := newRoomFixture(50)
	ctx := context.Background()

	creator := uuid.New()
	_, err := f.service.Join(ctx, "general", creator, "alice")
	require.NoError(t, err)
	require.NoError(t, f.roomRepo.SoftDelete(ctx, "general"))

	_, err = f.service.Join(ctx, "general", uuid.New(), "bob")
	assert.ErrorIs(t, err, apperrors.ErrRoomInactive)
}

func TestRoomService_RejoinAfterLeaveReactivates(t *testing.T) {
	f := newRoomFixture(50)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.service.Join(ctx, "general", userID, "alice")
	require.NoError(t, err)
	_, err = f.service.Leave(ctx, "general", userID)
	require.NoError(t, err)

	_, err = f.service.Join(ctx, "general", userID, "alice")
	require.NoError(t, err)

	p, err := f.roomRepo.GetParticipant(ctx, "general", userID)
	require.NoError(t, err)
	assert.True(t, p.IsActive)
	// Роль пережила выход
	assert.Equal(t, domain.ParticipantRoleAdmin, p.Role)
}

func TestRoomService_LeaveOfflineUserNamesParticipant(t *testing.T) {
	f := newRoomFixture(50)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.service.Join(ctx, "general", userID, "alice")
	require.NoError(t, err)

	// Живых сессий нет: выход через HTTP после disconnect. Имя в
	// user_left берется из персистентной записи участника.
	left, err := f.service.Leave(ctx, "general", userID)
	require.NoError(t, err)
	require.True(t, left)

	events := f.broadcaster.eventsOf(domain.EventUserLeft)
	require.Len(t, events, 1)
	payload := events[0].payload.(domain.UserPresencePayload)
	assert.Equal(t, "alice", payload.Username)
	assert.Equal(t, userID, payload.UserID)
}

func TestRoomService_LeaveUnknownRoomBenign(t *testing.T) {
	f := newRoomFixture(50)

	left, err := f.service.Leave(context.Background(), "ghost", uuid.New())
	require.NoError(t, err)
	assert.False(t, left)
}

func TestRoomService_DeleteRequiresAdmin(t *testing.T) {
	f := newRoomFixture(50)
	ctx := context.Background()

	admin := uuid.New()
	member := uuid.New()
	_, err := f.service.Join(ctx, "general", admin, "alice")
	require.NoError(t, err)
	_, err = f.service.Join(ctx, "general", member, "bob")
	require.NoError(t, err)

	err = f.service.Delete(ctx, "general", member)
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	require.NoError(t, f.service.Delete(ctx, "general", admin))

	room, err := f.roomRepo.GetByName(ctx, "general")
	require.NoError(t, err)
	assert.False(t, room.IsActive)

	// Подписки сняты у всех
	assert.Empty(t, f.index.RoomsOf(admin))
	assert.Empty(t, f.index.RoomsOf(member))
}

func TestRoomService_RemoveUserPermissions(t *testing.T) {
	f := newRoomFixture(50)
	ctx := context.Background()

	admin := uuid.New()
	member := uuid.New()
	outsider := uuid.New()
	_, err := f.service.Join(ctx, "general", admin, "alice")
	require.NoError(t, err)
	_, err = f.service.Join(ctx, "general", member, "bob")
	require.NoError(t, err)
	_, err = f.service.Join(ctx, "general", outsider, "carol")
	require.NoError(t, err)

	// Обычный участник кикать не может
	err = f.service.RemoveUser(ctx, "general", member, outsider)
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	// Кик самого себя запрещен
	err = f.service.RemoveUser(ctx, "general", admin, admin)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	// Админ кикает участника
	require.NoError(t, f.service.RemoveUser(ctx, "general", admin, member))
	_, err = f.roomRepo.GetParticipant(ctx, "general", member)
	assert.ErrorIs(t, err, apperrors.ErrParticipantNotFound)
	assert.Empty(t, f.index.RoomsOf(member))
}

func TestRoomService_ChangeUserRole(t *testing.T) {
	f := newRoomFixture(50)
	ctx := context.Background()

	admin := uuid.New()
	member := uuid.New()
	_, err := f.service.Join(ctx, "general", admin, "alice")
	require.NoError(t, err)
	_, err = f.service.Join(ctx, "general", member, "bob")
	require.NoError(t, err)

	// Невалидная роль
	err = f.service.ChangeUserRole(ctx, "general", admin, member, "supreme")
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	// Не-админ менять роли не может
	err = f.service.ChangeUserRole(ctx, "general", member, admin, domain.ParticipantRoleMember)
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	require.NoError(t, f.service.ChangeUserRole(ctx, "general", admin, member, domain.ParticipantRoleModerator))
	p, err := f.roomRepo.GetParticipant(ctx, "general", member)
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantRoleModerator, p.Role)
}

func TestRoomService_AuditTrailAdminOnly(t *testing.T) {
	f := newRoomFixture(50)
	ctx := context.Background()

	admin := uuid.New()
	member := uuid.New()
	_, err := f.service.Join(ctx, "general", admin, "alice")
	require.NoError(t, err)
	_, err = f.service.Join(ctx, "general", member, "bob")
	require.NoError(t, err)

	_, err = f.service.AuditTrail(ctx, "general", member, 50)
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	entries, err := f.service.AuditTrail(ctx, "general", admin, 50)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, domain.EventTypeRoomCreated, entries[0].EventType)
}

func TestRoomService_UserRoomsSurvivesReconnect(t *testing.T) {
	f := newRoomFixture(50)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.service.Join(ctx, "general", userID, "alice")
	require.NoError(t, err)
	_, err = f.service.Join(ctx, "random", userID, "alice")
	require.NoError(t, err)

	// Имитация рестарта live-состояния
	f.index.Clear(userID)

	rooms, err := f.service.UserRooms(ctx, userID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"general", "random"}, rooms)
}
