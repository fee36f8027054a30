package redis

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"spacegate/internal/core/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestClient connects to SPACEGATE_TEST_REDIS_ADDR and skips otherwise.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("SPACEGATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SPACEGATE_TEST_REDIS_ADDR not set")
	}
	client, err := NewRedisClient(context.Background(), addr, "", 0, 5, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseRedisClient(client) })
	return client
}

func testSpaceID() domain.SpaceID {
	return domain.SpaceID("test-" + uuid.NewString())
}

func TestRedisSpaceRepository(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	repo := NewRedisSpaceRepository(client)

	id := testSpaceID()
	t.Cleanup(func() { client.Del(ctx, spaceKey(id)) })

	_, err := repo.GetByID(ctx, id)
	assert.ErrorIs(t, err, domain.ErrSpaceNotFound)
	assert.ErrorIs(t, repo.Update(ctx, &domain.Space{ID: id}), domain.ErrSpaceNotFound)

	space := &domain.Space{
		ID:        id,
		Name:      "Town hall",
		OwnerID:   "owner",
		Status:    domain.SpaceStatusDraft,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Gatekeeper: &domain.GatekeeperRuleSet{
			Twitch: &domain.TwitchRule{BroadcasterID: "141981764", Requirement: domain.RequirementFollower},
		},
	}
	require.NoError(t, repo.Create(ctx, space))
	assert.Error(t, repo.Create(ctx, space))

	space.Status = domain.SpaceStatusActive
	require.NoError(t, repo.Update(ctx, space))

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.SpaceStatusActive, got.Status)
	assert.True(t, space.CreatedAt.Equal(got.CreatedAt))
	require.NotNil(t, got.Gatekeeper)
	assert.Equal(t, domain.RequirementFollower, got.Gatekeeper.Twitch.Requirement)
}

func TestRedisCredentialRepository_KeepsToken(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	repo := NewRedisCredentialRepository(client)

	user := domain.UserID("user-" + uuid.NewString())
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, repo.Put(ctx, &domain.Credential{UserID: user, Provider: domain.ProviderTwitch, AccessToken: "sealed", ExpiresAt: &exp}))
	t.Cleanup(func() { _ = repo.Delete(ctx, user, domain.ProviderTwitch) })

	got, err := repo.Get(ctx, user, domain.ProviderTwitch)
	require.NoError(t, err)
	assert.Equal(t, "sealed", got.AccessToken)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, exp.Equal(*got.ExpiresAt))

	require.NoError(t, repo.Delete(ctx, user, domain.ProviderTwitch))
	_, err = repo.Get(ctx, user, domain.ProviderTwitch)
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)
}

func TestRedisParticipantRepository_Insert(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	repo := NewRedisParticipantRepository(client)

	id := testSpaceID()
	t.Cleanup(func() { client.Del(ctx, participantsKey(id)) })

	join := func(user domain.UserID) error {
		return repo.Insert(ctx, &domain.Participant{SpaceID: id, UserID: user, JoinedAt: time.Now()}, 2)
	}

	require.NoError(t, join("u1"))
	assert.ErrorIs(t, join("u1"), domain.ErrParticipantExists)
	require.NoError(t, join("u2"))
	assert.ErrorIs(t, join("u3"), domain.ErrCapacityReached)

	n, err := repo.Count(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	removed, err := repo.Delete(ctx, id, "u1")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.Delete(ctx, id, "u1")
	require.NoError(t, err)
	assert.False(t, removed)
	ok, err := repo.Exists(ctx, id, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisParticipantRepository_ConcurrentCapacity(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	repo := NewRedisParticipantRepository(client)

	id := testSpaceID()
	t.Cleanup(func() { client.Del(ctx, participantsKey(id)) })

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted := 0
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.Insert(ctx, &domain.Participant{SpaceID: id, UserID: domain.UserID(uuid.NewString()), JoinedAt: time.Now()}, 10)
			if err == nil {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, inserted)
	n, err := repo.Count(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestRedisMetadataRepository(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	repo := NewRedisMetadataRepository(client)

	external := "UC" + uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, metadataKey(domain.ProviderYouTube, external)) })

	_, err := repo.Get(ctx, domain.ProviderYouTube, external)
	assert.ErrorIs(t, err, domain.ErrMetadataNotFound)

	require.NoError(t, repo.Upsert(ctx, &domain.ProviderMetadata{Provider: domain.ProviderYouTube, ExternalID: external, DisplayName: "First"}))
	require.NoError(t, repo.Upsert(ctx, &domain.ProviderMetadata{Provider: domain.ProviderYouTube, ExternalID: external, DisplayName: "Second"}))

	got, err := repo.Get(ctx, domain.ProviderYouTube, external)
	require.NoError(t, err)
	assert.Equal(t, "Second", got.DisplayName)
}

func TestMigrate_Idempotent(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	// NewRedisClient already migrated; running again is a no-op.
	require.NoError(t, Migrate(ctx, client, zap.NewNop().Sugar()))

	version, err := getSchemaVersion(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)
}
