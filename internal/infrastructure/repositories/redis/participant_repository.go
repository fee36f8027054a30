package redis

import (
	"context"
	"fmt"
	"time"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// insertParticipant returns 1 on insert, 0 when the member exists and -1
// when the space is full. The capacity check and write are one atomic step.
//
// KEYS[1] participants hash, ARGV[1] user id, ARGV[2] joined at, ARGV[3] max (0 = unlimited)
var insertParticipant = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 1 then
	return 0
end
local max = tonumber(ARGV[3])
if max > 0 and redis.call("HLEN", KEYS[1]) >= max then
	return -1
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
return 1
`)

type RedisParticipantRepository struct {
	client *redis.Client
}

func NewRedisParticipantRepository(client *redis.Client) ports.ParticipantRepository {
	return &RedisParticipantRepository{client: client}
}

func (r *RedisParticipantRepository) Insert(ctx context.Context, p *domain.Participant, maxParticipants int) (err error) {
	ctx, finish := traceOp(ctx, "insert", "participants")
	defer func() { finish(err) }()

	res, err := insertParticipant.Run(ctx, r.client,
		[]string{participantsKey(p.SpaceID)},
		string(p.UserID), p.JoinedAt.UTC().Format(time.RFC3339Nano), maxParticipants,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", err)
	}

	switch res {
	case 0:
		return domain.ErrParticipantExists
	case -1:
		return domain.ErrCapacityReached
	}
	return nil
}

func (r *RedisParticipantRepository) Delete(ctx context.Context, spaceID domain.SpaceID, userID domain.UserID) (_ bool, err error) {
	ctx, finish := traceOp(ctx, "delete", "participants")
	defer func() { finish(err) }()

	n, err := r.client.HDel(ctx, participantsKey(spaceID), string(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete participant: %w", err)
	}
	return n > 0, nil
}

func (r *RedisParticipantRepository) Exists(ctx context.Context, spaceID domain.SpaceID, userID domain.UserID) (_ bool, err error) {
	ctx, finish := traceOp(ctx, "exists", "participants")
	defer func() { finish(err) }()

	ok, err := r.client.HExists(ctx, participantsKey(spaceID), string(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return ok, nil
}

func (r *RedisParticipantRepository) Count(ctx context.Context, spaceID domain.SpaceID) (_ int, err error) {
	ctx, finish := traceOp(ctx, "count", "participants")
	defer func() { finish(err) }()

	n, err := r.client.HLen(ctx, participantsKey(spaceID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return int(n), nil
}
