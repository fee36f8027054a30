package ports

import (
	"context"
	"time"

	"spacegate/internal/core/domain"
)

type TokenVault interface {
	// Get returns domain.ErrCredentialNotFound when the user never connected the provider.
	Get(ctx context.Context, userID domain.UserID, provider domain.Provider) (*domain.Credential, error)
	IsExpired(cred *domain.Credential) bool
	// Resolve is Get plus the expiry check; an unusable credential yields
	// domain.ErrCredentialExpired.
	Resolve(ctx context.Context, userID domain.UserID, provider domain.Provider) (*domain.Credential, error)
	Store(ctx context.Context, cred *domain.Credential) error
	Delete(ctx context.Context, userID domain.UserID, provider domain.Provider) error
	Status(ctx context.Context, userID domain.UserID, provider domain.Provider) (domain.CredentialStatus, error)
}

type MetadataCache interface {
	FetchAndCache(ctx context.Context, provider domain.Provider, externalID string, caller *domain.Credential) (*domain.ProviderMetadata, error)
}

type AdmissionEvaluator interface {
	Evaluate(ctx context.Context, rules *domain.GatekeeperRuleSet, applicant domain.Applicant, ownerID domain.UserID) domain.Decision
}

type ParticipationLedger interface {
	Join(ctx context.Context, spaceID domain.SpaceID, applicant domain.Applicant) (domain.Decision, error)
	Leave(ctx context.Context, spaceID domain.SpaceID, userID domain.UserID) error
	// Check runs every join gate without inserting the participant.
	Check(ctx context.Context, spaceID domain.SpaceID, applicant domain.Applicant) (domain.Decision, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event *domain.ParticipationEvent) error
}

// TokenSealer encrypts access tokens at rest.
type TokenSealer interface {
	Seal(plaintext string) (string, error)
	Open(ciphertext string) (string, error)
}

type Metrics interface {
	RecordDecision(reason domain.Reason)
	RecordProviderRequest(provider domain.Provider, outcome string, duration time.Duration)
	RecordMetadataCache(result string)
	RecordParticipantJoined(spaceID domain.SpaceID)
	RecordParticipantLeft(spaceID domain.SpaceID)
}
