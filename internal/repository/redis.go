package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tenantdesk/internal/config"
	"tenantdesk/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisConfirmationRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a Redis client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisConfirmationRepository(client *redis.Client, ttl time.Duration) *RedisConfirmationRepository {
	return &RedisConfirmationRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisConfirmationRepository) SetConfirmation(ctx context.Context, conf *models.HideConfirmation) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("hide_confirm:%d", conf.BookingID)
	data, err := json.Marshal(conf)
	if err != nil {
		return fmt.Errorf("failed to marshal confirmation: %w", err)
	}

	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set confirmation in redis: %w", err)
	}

	return nil
}

func (r *RedisConfirmationRepository) GetConfirmation(ctx context.Context, bookingID int64) (*models.HideConfirmation, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("hide_confirm:%d", bookingID)
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get confirmation from redis: %w", err)
	}

	var conf models.HideConfirmation
	if err := json.Unmarshal([]byte(val), &conf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal confirmation: %w", err)
	}

	return &conf, nil
}

func (r *RedisConfirmationRepository) ClearConfirmation(ctx context.Context, bookingID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("hide_confirm:%d", bookingID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete confirmation from redis: %w", err)
	}
	return nil
}

func (r *RedisConfirmationRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	counterKey := fmt.Sprintf("rate_limit:%s", key)
	count, err := r.client.Incr(ctx, counterKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, counterKey, window)
	}

	return count <= int64(limit), nil
}

// Ping verifies the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
