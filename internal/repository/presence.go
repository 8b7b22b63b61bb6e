package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"realtime_chat/pkg/logger"
)

const (
	// TTL онлайн-метки: обновляется пингом соединения, протухает сама,
	// если процесс умер без cleanup
	PresenceTTL = 90 * time.Second

	presenceKeyPrefix = "presence:user:%s"
	presenceOnlineSet = "presence:online"
)

// PresenceRepository — эфемерный снимок "кто онлайн" в Redis.
// Источник правды для live-доставки — Session Registry в памяти процесса;
// Redis-снимок нужен для HTTP-запросов статуса и переживает только TTL.
type PresenceRepository interface {
	SetOnline(ctx context.Context, userID uuid.UUID) error
	Refresh(ctx context.Context, userID uuid.UUID) error
	SetOffline(ctx context.Context, userID uuid.UUID) error
	IsOnline(ctx context.Context, userID uuid.UUID) (bool, error)
	OnlineCount(ctx context.Context) (int64, error)
}

type presenceRepository struct {
	rdb *redis.Client
	log logger.Logger
}

func NewPresenceRepository(rdb *redis.Client, log logger.Logger) PresenceRepository {
	return &presenceRepository{rdb: rdb, log: log}
}

func presenceKey(userID uuid.UUID) string {
	return fmt.Sprintf(presenceKeyPrefix, userID.String())
}

func (r *presenceRepository) SetOnline(ctx context.Context, userID uuid.UUID) error {
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, presenceKey(userID), time.Now().Unix(), PresenceTTL)
	pipe.SAdd(ctx, presenceOnlineSet, userID.String())

	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error("Failed to set online presence", "error", err, "user_id", userID)
		return err
	}

	return nil
}

func (r *presenceRepository) Refresh(ctx context.Context, userID uuid.UUID) error {
	err := r.rdb.Expire(ctx, presenceKey(userID), PresenceTTL).Err()
	if err != nil {
		r.log.Warn("Failed to refresh presence TTL", "error", err, "user_id", userID)
	}
	return err
}

func (r *presenceRepository) SetOffline(ctx context.Context, userID uuid.UUID) error {
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, presenceKey(userID))
	pipe.SRem(ctx, presenceOnlineSet, userID.String())

	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error("Failed to set offline presence", "error", err, "user_id", userID)
		return err
	}

	return nil
}

func (r *presenceRepository) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	exists, err := r.rdb.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		r.log.Error("Failed to check presence", "error", err, "user_id", userID)
		return false, err
	}
	return exists > 0, nil
}

func (r *presenceRepository) OnlineCount(ctx context.Context) (int64, error) {
	count, err := r.rdb.SCard(ctx, presenceOnlineSet).Result()
	if err != nil {
		r.log.Error("Failed to count online users", "error", err)
		return 0, err
	}
	return count, nil
}
