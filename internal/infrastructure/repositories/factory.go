package repositories

import (
	"context"

	"spacegate/internal/core/ports"
	"spacegate/internal/infrastructure/repositories/memory"
	redisrepo "spacegate/internal/infrastructure/repositories/redis"
	"spacegate/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory hands out Redis-backed repositories when Redis is
// reachable and in-memory ones otherwise. Memory repositories are created
// once so every caller shares the same state.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger

	spaces       ports.SpaceRepository
	credentials  ports.CredentialRepository
	metadata     ports.MetadataRepository
	participants ports.ParticipantRepository
}

func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(ctx,
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if factory.useRedis {
		factory.spaces = redisrepo.NewRedisSpaceRepository(factory.redisClient)
		factory.credentials = redisrepo.NewRedisCredentialRepository(factory.redisClient)
		factory.metadata = redisrepo.NewRedisMetadataRepository(factory.redisClient)
		factory.participants = redisrepo.NewRedisParticipantRepository(factory.redisClient)
	} else {
		logger.Info("using memory repositories")
		factory.spaces = memory.NewMemorySpaceRepository()
		factory.credentials = memory.NewMemoryCredentialRepository()
		factory.metadata = memory.NewMemoryMetadataRepository()
		factory.participants = memory.NewMemoryParticipantRepository()
	}

	return factory, nil
}

func (f *RepositoryFactory) SpaceRepository() ports.SpaceRepository { return f.spaces }

func (f *RepositoryFactory) CredentialRepository() ports.CredentialRepository { return f.credentials }

func (f *RepositoryFactory) MetadataRepository() ports.MetadataRepository { return f.metadata }

func (f *RepositoryFactory) ParticipantRepository() ports.ParticipantRepository {
	return f.participants
}

// RedisClient is nil when running on memory repositories.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	if f.useRedis {
		return f.redisClient
	}
	return nil
}

func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
