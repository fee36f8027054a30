package ports

import (
	"context"

	"spacegate/internal/core/domain"
)

type SpaceRepository interface {
	Create(ctx context.Context, space *domain.Space) error
	GetByID(ctx context.Context, id domain.SpaceID) (*domain.Space, error)
	Update(ctx context.Context, space *domain.Space) error
}

// CredentialRepository stores one credential per (user, provider). Put
// overwrites.
type CredentialRepository interface {
	Get(ctx context.Context, userID domain.UserID, provider domain.Provider) (*domain.Credential, error)
	Put(ctx context.Context, cred *domain.Credential) error
	Delete(ctx context.Context, userID domain.UserID, provider domain.Provider) error
}

// MetadataRepository upserts are last-write-wins.
type MetadataRepository interface {
	Get(ctx context.Context, provider domain.Provider, externalID string) (*domain.ProviderMetadata, error)
	Upsert(ctx context.Context, record *domain.ProviderMetadata) error
}

type ParticipantRepository interface {
	// Insert atomically adds the participant. It returns
	// domain.ErrParticipantExists when (space, user) is already present and
	// domain.ErrCapacityReached when maxParticipants > 0 and the space is full.
	Insert(ctx context.Context, p *domain.Participant, maxParticipants int) error
	// Delete is idempotent; removed reports whether a record existed.
	Delete(ctx context.Context, spaceID domain.SpaceID, userID domain.UserID) (removed bool, err error)
	Exists(ctx context.Context, spaceID domain.SpaceID, userID domain.UserID) (bool, error)
	Count(ctx context.Context, spaceID domain.SpaceID) (int, error)
}
