package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bizdir/internal/config"
	"bizdir/internal/models"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

// RedisResultCache fronts enrichment-result reads so the directory pages
// don't hit SQLite for every view. A miss returns (nil, nil).
type RedisResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisResultCache(client *redis.Client, ttl time.Duration) *RedisResultCache {
	return &RedisResultCache{
		client: client,
		ttl:    ttl,
	}
}

func resultKey(businessID int64) string {
	return fmt.Sprintf("enrichment_result:%d", businessID)
}

func (r *RedisResultCache) GetResult(ctx context.Context, businessID int64) (*models.EnrichmentResult, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, resultKey(businessID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result from redis: %w", err)
	}

	var result models.EnrichmentResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return &result, nil
}

func (r *RedisResultCache) SetResult(ctx context.Context, result *models.EnrichmentResult) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := r.client.Set(ctx, resultKey(result.BusinessID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set result in redis: %w", err)
	}

	return nil
}

func (r *RedisResultCache) InvalidateResult(ctx context.Context, businessID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, resultKey(businessID)).Err(); err != nil {
		return fmt.Errorf("failed to delete result from redis: %w", err)
	}
	return nil
}

// RedisRunLock serializes processor drains across instances with SETNX.
type RedisRunLock struct {
	client *redis.Client
	key    string
}

func NewRedisRunLock(client *redis.Client) *RedisRunLock {
	return &RedisRunLock{client: client, key: "enrichment:run_lock"}
}

func (l *RedisRunLock) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	if l.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	ok, err := l.client.SetNX(ctx, l.key, time.Now().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	return ok, nil
}

func (l *RedisRunLock) Unlock(ctx context.Context) error {
	if l.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := l.client.Del(ctx, l.key).Err(); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}
