package redis

import (
	"context"
	"fmt"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisMetadataRepository upserts are plain SETs, so concurrent refreshes of
// one identity are last-write-wins.
type RedisMetadataRepository struct {
	client *redis.Client
}

func NewRedisMetadataRepository(client *redis.Client) ports.MetadataRepository {
	return &RedisMetadataRepository{client: client}
}

func (r *RedisMetadataRepository) Get(ctx context.Context, provider domain.Provider, externalID string) (_ *domain.ProviderMetadata, err error) {
	ctx, finish := traceOp(ctx, "get", "metadata")
	defer func() { finish(err) }()

	data, err := r.client.Get(ctx, metadataKey(provider, externalID)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrMetadataNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata from Redis: %w", err)
	}

	var rec domain.ProviderMetadata
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &rec, nil
}

func (r *RedisMetadataRepository) Upsert(ctx context.Context, record *domain.ProviderMetadata) (err error) {
	ctx, finish := traceOp(ctx, "upsert", "metadata")
	defer func() { finish(err) }()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := r.client.Set(ctx, metadataKey(record.Provider, record.ExternalID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store metadata in Redis: %w", err)
	}
	return nil
}
