package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/webdash/storefront/internal/domain"
	"github.com/webdash/storefront/internal/logger"
	"go.uber.org/zap"
)

func NewRedisStateStore(client *redis.Client, prefix string, ttl time.Duration, log *zap.Logger) *RedisStateStore {
	return &RedisStateStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		log:    logger.OrNop(log),
	}
}

type RedisStateStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

func (r *RedisStateStore) Load(ctx context.Context, key string) domain.State {
	data, err := r.client.Get(ctx, r.stateKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.EmptyState()
	}
	if err != nil {
		r.log.Warn("state load failed, using empty state", zap.String("key", key), zap.Error(err))
		return domain.EmptyState()
	}

	var state domain.State
	if err := json.Unmarshal(data, &state); err != nil {
		r.log.Warn("corrupt state blob, using empty state", zap.String("key", key), zap.Error(err))
		return domain.EmptyState()
	}
	return state.Normalize()
}

func (r *RedisStateStore) Persist(ctx context.Context, key string, state domain.State) error {
	data, err := json.Marshal(state.Normalize())
	if err != nil {
		return fmt.Errorf("marshal state failed: %w", err)
	}
	if err := r.client.Set(ctx, r.stateKey(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStateStore) stateKey(key string) string {
	return fmt.Sprintf("%secommerce:%s", r.prefix, key)
}
