package service

import (
	"context"

	"github.com/google/uuid"

	"realtime_chat/internal/repository"
	"realtime_chat/pkg/logger"
)

// PresenceService двигает online-статус пользователя в двух сторах:
// Redis-снимок с TTL (быстрые запросы статуса) и Postgres
// (is_online + last_seen переживают рестарт).
type PresenceService interface {
	Connected(ctx context.Context, userID uuid.UUID) error
	Disconnected(ctx context.Context, userID uuid.UUID) error
	Refresh(ctx context.Context, userID uuid.UUID) error
	IsOnline(ctx context.Context, userID uuid.UUID) (bool, error)
	OnlineCount(ctx context.Context) (int64, error)
}

type presenceService struct {
	presenceRepo repository.PresenceRepository
	userRepo     repository.UserRepository
	log          logger.Logger
}

func NewPresenceService(presenceRepo repository.PresenceRepository, userRepo repository.UserRepository, log logger.Logger) PresenceService {
	return &presenceService{
		presenceRepo: presenceRepo,
		userRepo:     userRepo,
		log:          log,
	}
}

func (s *presenceService) Connected(ctx context.Context, userID uuid.UUID) error {
	if err := s.presenceRepo.SetOnline(ctx, userID); err != nil {
		return err
	}
	if err := s.userRepo.SetOnline(ctx, userID, true); err != nil {
		s.log.Warn("Failed to persist online status", "user_id", userID, "error", err)
	}
	return nil
}

func (s *presenceService) Disconnected(ctx context.Context, userID uuid.UUID) error {
	if err := s.presenceRepo.SetOffline(ctx, userID); err != nil {
		return err
	}
	if err := s.userRepo.SetOnline(ctx, userID, false); err != nil {
		s.log.Warn("Failed to persist offline status", "user_id", userID, "error", err)
	}
	return nil
}

func (s *presenceService) Refresh(ctx context.Context, userID uuid.UUID) error {
	return s.presenceRepo.Refresh(ctx, userID)
}

func (s *presenceService) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.presenceRepo.IsOnline(ctx, userID)
}

func (s *presenceService) OnlineCount(ctx context.Context) (int64, error) {
	return s.presenceRepo.OnlineCount(ctx)
}
