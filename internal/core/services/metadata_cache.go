package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"
	"spacegate/pkg/tracing"

	"go.uber.org/zap"
)

const DefaultMetadataTTL = 24 * time.Hour

type MetadataCacheConfig struct {
	TTL time.Duration
	Now func() time.Time
}

// metadataCache keeps channel/broadcaster display data fresh. A readable but
// stale name is preferred over no name: refresh failures keep the last good
// display fields and only record the error.
//
// Concurrent refreshes of the same identity may both reach the provider; the
// repository upsert is last-write-wins.
type metadataCache struct {
	repo     ports.MetadataRepository
	fetchers map[domain.Provider]ports.IdentityFetcher
	metrics  ports.Metrics
	cfg      MetadataCacheConfig
	logger   *zap.SugaredLogger
}

func NewMetadataCache(
	repo ports.MetadataRepository,
	fetchers []ports.IdentityFetcher,
	metrics ports.Metrics,
	cfg MetadataCacheConfig,
	logger *zap.SugaredLogger,
) ports.MetadataCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultMetadataTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	byProvider := make(map[domain.Provider]ports.IdentityFetcher, len(fetchers))
	for _, f := range fetchers {
		byProvider[f.Provider()] = f
	}
	return &metadataCache{
		repo:     repo,
		fetchers: byProvider,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
	}
}

func (c *metadataCache) FetchAndCache(ctx context.Context, provider domain.Provider, externalID string, caller *domain.Credential) (*domain.ProviderMetadata, error) {
	ctx, span := tracing.StartSpan(ctx, "metadata.fetch_and_cache")
	defer span.End()
	tracing.AddSpanAttributes(ctx, tracing.ProviderKey.String(string(provider)), tracing.ExternalIDKey.String(externalID))

	fetcher, ok := c.fetchers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, provider)
	}

	prior, err := c.repo.Get(ctx, provider, externalID)
	if err != nil && !errors.Is(err, domain.ErrMetadataNotFound) {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	now := c.cfg.Now()
	if prior != nil && prior.LastError == "" && now.Sub(prior.FetchedAt) < c.cfg.TTL {
		c.metrics.RecordMetadataCache("hit")
		return prior, nil
	}

	details, fetchErr := fetcher.FetchIdentity(ctx, externalID, caller)
	if fetchErr == nil {
		record := &domain.ProviderMetadata{
			Provider:    provider,
			ExternalID:  externalID,
			DisplayName: details.DisplayName,
			Handle:      details.Handle,
			AvatarURL:   details.AvatarURL,
			FetchedAt:   now,
		}
		if err := c.repo.Upsert(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to store metadata: %w", err)
		}
		c.metrics.RecordMetadataCache("refreshed")
		c.logger.Debugw("provider metadata refreshed",
			"provider", provider,
			"external_id", externalID,
		)
		return record, nil
	}

	tracing.RecordError(ctx, fetchErr)
	c.logger.Warnw("provider metadata refresh failed",
		"provider", provider,
		"external_id", externalID,
		"error", fetchErr,
	)

	record := &domain.ProviderMetadata{
		Provider:   provider,
		ExternalID: externalID,
		FetchedAt:  now,
		LastError:  fetchErr.Error(),
	}
	if prior != nil {
		record.DisplayName = prior.DisplayName
		record.Handle = prior.Handle
		record.AvatarURL = prior.AvatarURL
	}
	if err := c.repo.Upsert(ctx, record); err != nil {
		c.logger.Warnw("failed to record metadata error",
			"provider", provider,
			"external_id", externalID,
			"error", err,
		)
	}

	if prior == nil || !prior.HasDisplay() {
		c.metrics.RecordMetadataCache("error")
		return nil, fmt.Errorf("%w: %w", domain.ErrMetadataUnavailable, fetchErr)
	}

	c.metrics.RecordMetadataCache("stale")
	return record, nil
}
