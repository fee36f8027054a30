package memory

import (
	"context"
	"sync"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"
)

type credentialKey struct {
	user     domain.UserID
	provider domain.Provider
}

type MemoryCredentialRepository struct {
	creds map[credentialKey]domain.Credential
	mu    sync.RWMutex
}

func NewMemoryCredentialRepository() ports.CredentialRepository {
	return &MemoryCredentialRepository{
		creds: make(map[credentialKey]domain.Credential),
	}
}

// Get returns a copy; callers may modify it freely.
func (r *MemoryCredentialRepository) Get(ctx context.Context, userID domain.UserID, provider domain.Provider) (*domain.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cred, ok := r.creds[credentialKey{userID, provider}]
	if !ok {
		return nil, domain.ErrCredentialNotFound
	}
	return copyCredential(cred), nil
}

func (r *MemoryCredentialRepository) Put(ctx context.Context, cred *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.creds[credentialKey{cred.UserID, cred.Provider}] = *copyCredential(*cred)
	return nil
}

func (r *MemoryCredentialRepository) Delete(ctx context.Context, userID domain.UserID, provider domain.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := credentialKey{userID, provider}
	if _, ok := r.creds[key]; !ok {
		return domain.ErrCredentialNotFound
	}
	delete(r.creds, key)
	return nil
}

func copyCredential(c domain.Credential) *domain.Credential {
	out := c
	if c.ExpiresAt != nil {
		exp := *c.ExpiresAt
		out.ExpiresAt = &exp
	}
	out.Scopes = append([]string(nil), c.Scopes...)
	return &out
}
