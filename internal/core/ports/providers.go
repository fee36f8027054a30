package ports

import (
	"context"

	"spacegate/internal/core/domain"
)

// ProviderVerifier answers whether a participant satisfies a requirement
// against a channel or broadcaster. The relationship query is made with the
// space owner's credential, not the participant's: the participant token only
// proves who the participant is.
type ProviderVerifier interface {
	Provider() domain.Provider
	Verify(ctx context.Context, req domain.Requirement, participant *domain.Credential, ownerID domain.UserID, targetID string) domain.Verification
}

// IdentityFetcher looks up display details for a channel or broadcaster.
// caller may be nil when the provider supports app-level access.
type IdentityFetcher interface {
	Provider() domain.Provider
	FetchIdentity(ctx context.Context, externalID string, caller *domain.Credential) (*domain.IdentityDetails, error)
}
