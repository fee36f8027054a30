package redis

import (
	"context"
	"fmt"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

type RedisSpaceRepository struct {
	client *redis.Client
}

func NewRedisSpaceRepository(client *redis.Client) ports.SpaceRepository {
	return &RedisSpaceRepository{client: client}
}

func (r *RedisSpaceRepository) Create(ctx context.Context, space *domain.Space) (err error) {
	ctx, finish := traceOp(ctx, "create", "spaces")
	defer func() { finish(err) }()

	data, err := json.Marshal(space)
	if err != nil {
		return fmt.Errorf("failed to marshal space: %w", err)
	}

	created, err := r.client.SetNX(ctx, spaceKey(space.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to set space in Redis: %w", err)
	}
	if !created {
		return fmt.Errorf("space already exists: %s", space.ID)
	}
	return nil
}

func (r *RedisSpaceRepository) GetByID(ctx context.Context, id domain.SpaceID) (_ *domain.Space, err error) {
	ctx, finish := traceOp(ctx, "get", "spaces")
	defer func() { finish(err) }()

	data, err := r.client.Get(ctx, spaceKey(id)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrSpaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get space from Redis: %w", err)
	}

	var space domain.Space
	if err := json.Unmarshal(data, &space); err != nil {
		return nil, fmt.Errorf("failed to unmarshal space: %w", err)
	}
	return &space, nil
}

func (r *RedisSpaceRepository) Update(ctx context.Context, space *domain.Space) (err error) {
	ctx, finish := traceOp(ctx, "update", "spaces")
	defer func() { finish(err) }()

	data, err := json.Marshal(space)
	if err != nil {
		return fmt.Errorf("failed to marshal space: %w", err)
	}

	updated, err := r.client.SetXX(ctx, spaceKey(space.ID), data, redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to update space in Redis: %w", err)
	}
	if !updated {
		return domain.ErrSpaceNotFound
	}
	return nil
}
