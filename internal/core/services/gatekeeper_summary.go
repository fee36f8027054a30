package services

import (
	"context"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"

	"go.uber.org/zap"
)

// GatekeeperSummary is the landing-page view of a space's rules. It never
// carries full email addresses or tokens.
type GatekeeperSummary struct {
	SpaceID   domain.SpaceID  `json:"space_id"`
	Email     *EmailBadge     `json:"email,omitempty"`
	Providers []ProviderBadge `json:"providers,omitempty"`
}

type EmailBadge struct {
	Allowed      []string `json:"allowed"`
	BlockedCount int      `json:"blocked_count,omitempty"`
}

type ProviderBadge struct {
	Provider    domain.Provider    `json:"provider"`
	Requirement domain.Requirement `json:"requirement"`
	TargetID    string             `json:"target_id"`
	DisplayName string             `json:"display_name,omitempty"`
	Handle      string             `json:"handle,omitempty"`
	AvatarURL   string             `json:"avatar_url,omitempty"`
	Stale       bool               `json:"stale,omitempty"`
}

type GatekeeperSummarizer interface {
	Summarize(ctx context.Context, space *domain.Space) *GatekeeperSummary
}

type gatekeeperSummarizer struct {
	vault    ports.TokenVault
	metadata ports.MetadataCache
	logger   *zap.SugaredLogger
}

func NewGatekeeperSummarizer(vault ports.TokenVault, metadata ports.MetadataCache, logger *zap.SugaredLogger) GatekeeperSummarizer {
	return &gatekeeperSummarizer{
		vault:    vault,
		metadata: metadata,
		logger:   logger,
	}
}

// Summarize is display-only and fails open: a malformed sub-rule or a
// metadata failure drops or thins that badge, never the whole summary.
func (s *gatekeeperSummarizer) Summarize(ctx context.Context, space *domain.Space) *GatekeeperSummary {
	summary := &GatekeeperSummary{SpaceID: space.ID}
	rules := space.Rules()

	if rules.Email.HasAllowList() || rules.Email.HasBlockList() {
		if err := rules.Email.Validate(); err != nil {
			s.logger.Debugw("skipping email badge", "space_id", space.ID, "error", err)
		} else {
			badge := &EmailBadge{Allowed: make([]string, 0, len(rules.Email.Allowed)), BlockedCount: len(rules.Email.Blocked)}
			for _, p := range rules.Email.Allowed {
				badge.Allowed = append(badge.Allowed, MaskEmailPattern(p))
			}
			summary.Email = badge
		}
	}

	for _, rule := range rules.ProviderRules() {
		if err := rule.Validate(); err != nil {
			s.logger.Debugw("skipping provider badge", "space_id", space.ID, "provider", rule.Provider, "error", err)
			continue
		}
		summary.Providers = append(summary.Providers, s.providerBadge(ctx, space.OwnerID, rule))
	}

	return summary
}

func (s *gatekeeperSummarizer) providerBadge(ctx context.Context, ownerID domain.UserID, rule domain.ProviderRule) ProviderBadge {
	badge := ProviderBadge{
		Provider:    rule.Provider,
		Requirement: rule.Requirement,
		TargetID:    rule.TargetID,
	}

	// Without a usable owner credential the fetcher falls back to app-level
	// access where the provider has one.
	owner, err := s.vault.Resolve(ctx, ownerID, rule.Provider)
	if err != nil {
		owner = nil
	}

	rec, err := s.metadata.FetchAndCache(ctx, rule.Provider, rule.TargetID, owner)
	if err != nil {
		s.logger.Debugw("no display metadata for badge",
			"provider", rule.Provider,
			"external_id", rule.TargetID,
			"error", err,
		)
		return badge
	}

	badge.DisplayName = rec.DisplayName
	badge.Handle = rec.Handle
	badge.AvatarURL = rec.AvatarURL
	badge.Stale = rec.LastError != ""
	return badge
}
