package redis

import (
	"context"
	"fmt"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisCredentialRepository stores one JSON document per (user, provider).
// The access token arrives already sealed by the vault.
type RedisCredentialRepository struct {
	client *redis.Client
}

func NewRedisCredentialRepository(client *redis.Client) ports.CredentialRepository {
	return &RedisCredentialRepository{client: client}
}

type storedCredential struct {
	domain.Credential
	AccessToken string `json:"access_token"`
}

func (r *RedisCredentialRepository) Get(ctx context.Context, userID domain.UserID, provider domain.Provider) (_ *domain.Credential, err error) {
	ctx, finish := traceOp(ctx, "get", "credentials")
	defer func() { finish(err) }()

	data, err := r.client.Get(ctx, credentialKey(userID, provider)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential from Redis: %w", err)
	}

	var stored storedCredential
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	cred := stored.Credential
	cred.AccessToken = stored.AccessToken
	return &cred, nil
}

func (r *RedisCredentialRepository) Put(ctx context.Context, cred *domain.Credential) (err error) {
	ctx, finish := traceOp(ctx, "put", "credentials")
	defer func() { finish(err) }()

	data, err := json.Marshal(storedCredential{Credential: *cred, AccessToken: cred.AccessToken})
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}
	if err := r.client.Set(ctx, credentialKey(cred.UserID, cred.Provider), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store credential in Redis: %w", err)
	}
	return nil
}

func (r *RedisCredentialRepository) Delete(ctx context.Context, userID domain.UserID, provider domain.Provider) (err error) {
	ctx, finish := traceOp(ctx, "delete", "credentials")
	defer func() { finish(err) }()

	n, err := r.client.Del(ctx, credentialKey(userID, provider)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete credential from Redis: %w", err)
	}
	if n == 0 {
		return domain.ErrCredentialNotFound
	}
	return nil
}
