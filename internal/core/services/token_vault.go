package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"

	"go.uber.org/zap"
)

// TokenVaultConfig controls how stored credentials are interpreted.
type TokenVaultConfig struct {
	// IssuesExpiry lists providers whose token endpoint always returns an
	// expiry. A stored credential for such a provider without ExpiresAt is
	// malformed and treated as expired. Providers not listed never expire
	// when ExpiresAt is absent.
	IssuesExpiry map[domain.Provider]bool
	Now          func() time.Time
}

func DefaultTokenVaultConfig() TokenVaultConfig {
	return TokenVaultConfig{
		IssuesExpiry: map[domain.Provider]bool{
			domain.ProviderYouTube: true,
			domain.ProviderTwitch:  true,
		},
		Now: time.Now,
	}
}

type tokenVault struct {
	repo   ports.CredentialRepository
	sealer ports.TokenSealer
	cfg    TokenVaultConfig
	logger *zap.SugaredLogger
}

// NewTokenVault returns a vault over repo. sealer may be nil, in which case
// tokens are stored as given.
func NewTokenVault(repo ports.CredentialRepository, sealer ports.TokenSealer, cfg TokenVaultConfig, logger *zap.SugaredLogger) ports.TokenVault {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IssuesExpiry == nil {
		cfg.IssuesExpiry = map[domain.Provider]bool{}
	}
	return &tokenVault{
		repo:   repo,
		sealer: sealer,
		cfg:    cfg,
		logger: logger,
	}
}

func (v *tokenVault) Get(ctx context.Context, userID domain.UserID, provider domain.Provider) (*domain.Credential, error) {
	if !provider.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, provider)
	}
	cred, err := v.repo.Get(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if v.sealer != nil {
		token, err := v.sealer.Open(cred.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to open stored token: %w", err)
		}
		cred.AccessToken = token
	}
	return cred, nil
}

// IsExpired reports whether cred can no longer be used. A missing expiry is
// a free pass only for providers that never issue one.
func (v *tokenVault) IsExpired(cred *domain.Credential) bool {
	if cred == nil {
		return true
	}
	if cred.ExpiresAt == nil {
		return v.cfg.IssuesExpiry[cred.Provider]
	}
	return v.cfg.Now().After(*cred.ExpiresAt)
}

func (v *tokenVault) Resolve(ctx context.Context, userID domain.UserID, provider domain.Provider) (*domain.Credential, error) {
	cred, err := v.Get(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if cred.ExpiresAt == nil && v.cfg.IssuesExpiry[provider] {
		return nil, fmt.Errorf("%w: %w", domain.ErrCredentialExpired, domain.ErrCredentialMalformed)
	}
	if v.IsExpired(cred) {
		return nil, domain.ErrCredentialExpired
	}
	return cred, nil
}

func (v *tokenVault) Store(ctx context.Context, cred *domain.Credential) error {
	if cred == nil || cred.UserID == "" {
		return domain.ErrNotAuthenticated
	}
	if !cred.Provider.Valid() {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, cred.Provider)
	}
	if cred.AccessToken == "" {
		return fmt.Errorf("access token is required")
	}
	if cred.ExpiresAt == nil && v.cfg.IssuesExpiry[cred.Provider] {
		return domain.ErrCredentialMalformed
	}

	stored := *cred
	stored.UpdatedAt = v.cfg.Now()
	if v.sealer != nil {
		sealed, err := v.sealer.Seal(cred.AccessToken)
		if err != nil {
			return fmt.Errorf("failed to seal token: %w", err)
		}
		stored.AccessToken = sealed
	}

	if err := v.repo.Put(ctx, &stored); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	v.logger.Infow("provider connected",
		"user_id", cred.UserID,
		"provider", cred.Provider,
	)
	return nil
}

func (v *tokenVault) Delete(ctx context.Context, userID domain.UserID, provider domain.Provider) error {
	if err := v.repo.Delete(ctx, userID, provider); err != nil && !errors.Is(err, domain.ErrCredentialNotFound) {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

func (v *tokenVault) Status(ctx context.Context, userID domain.UserID, provider domain.Provider) (domain.CredentialStatus, error) {
	_, err := v.Resolve(ctx, userID, provider)
	switch {
	case err == nil:
		return domain.CredentialConnected, nil
	case errors.Is(err, domain.ErrCredentialNotFound):
		return domain.CredentialMissing, nil
	case errors.Is(err, domain.ErrCredentialExpired):
		return domain.CredentialExpired, nil
	default:
		return "", err
	}
}
