package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"spacegate/internal/core/domain"
	"spacegate/pkg/cache"
)

// IdentityCache remembers which external account a participant token
// belongs to, so repeated join attempts skip the identity lookup. Keys hold a
// SHA-256 of the token, never the token itself.
type IdentityCache struct {
	entries *cache.Cache[string]
}

// NewIdentityCache returns nil for a non-positive ttl; a nil cache always
// calls through.
func NewIdentityCache(ttl time.Duration) *IdentityCache {
	if ttl <= 0 {
		return nil
	}
	return &IdentityCache{entries: cache.New[string](ttl)}
}

func (c *IdentityCache) Resolve(ctx context.Context, provider domain.Provider, accessToken string, lookup func(context.Context) (string, error)) (string, error) {
	if c == nil {
		return lookup(ctx)
	}
	return c.entries.GetOrLoad(ctx, identityKey(provider, accessToken), lookup)
}

// Forget drops a cached identity, e.g. after the token was rejected.
func (c *IdentityCache) Forget(provider domain.Provider, accessToken string) {
	if c == nil {
		return
	}
	c.entries.Delete(identityKey(provider, accessToken))
}

func (c *IdentityCache) Stop() {
	if c != nil {
		c.entries.Stop()
	}
}

func identityKey(provider domain.Provider, accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return string(provider) + ":" + hex.EncodeToString(sum[:])
}
