package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"
	"spacegate/pkg/circuitbreaker"

	"go.uber.org/zap"
)

type YouTubeConfig struct {
	ClientConfig
	// APIKey allows channel lookups without a caller credential.
	APIKey string
}

// YouTube verifies subscriptions and channel memberships with the Data API v3.
type YouTube struct {
	api        *apiClient
	apiKey     string
	vault      ports.TokenVault
	identities *IdentityCache
}

func NewYouTube(cfg YouTubeConfig, vault ports.TokenVault, identities *IdentityCache, metrics ports.Metrics, logger *zap.SugaredLogger) (*YouTube, error) {
	api, err := newAPIClient(domain.ProviderYouTube, cfg.ClientConfig, metrics, logger)
	if err != nil {
		return nil, err
	}
	return &YouTube{
		api:        api,
		apiKey:     cfg.APIKey,
		vault:      vault,
		identities: identities,
	}, nil
}

// Breaker exposes the API circuit breaker for health reporting.
func (y *YouTube) Breaker() *circuitbreaker.CircuitBreaker {
	return y.api.breaker
}

func (y *YouTube) Provider() domain.Provider {
	return domain.ProviderYouTube
}

type youtubeList struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title      string `json:"title"`
			CustomURL  string `json:"customUrl"`
			Thumbnails struct {
				Default struct {
					URL string `json:"url"`
				} `json:"default"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

// Verify checks the participant against channelID. The participant token
// only identifies the participant's channel; the relationship query runs
// with the channel owner's token.
func (y *YouTube) Verify(ctx context.Context, req domain.Requirement, participant *domain.Credential, ownerID domain.UserID, channelID string) domain.Verification {
	if participant == nil {
		return domain.VerificationError(domain.ErrCredentialNotFound)
	}

	participantChannel, err := y.participantChannelID(ctx, participant.AccessToken)
	if errors.Is(err, domain.ErrIdentityNotFound) {
		// An account without a channel can neither subscribe nor join.
		return domain.NotSatisfied()
	}
	if err != nil {
		return domain.VerificationError(fmt.Errorf("resolve participant channel: %w", err))
	}

	owner, err := y.vault.Resolve(ctx, ownerID, domain.ProviderYouTube)
	if err != nil {
		return domain.VerificationError(fmt.Errorf("owner credential unavailable: %w", err))
	}

	switch req {
	case domain.RequirementSubscriber:
		return y.checkSubscription(ctx, owner.AccessToken, participantChannel, channelID)
	case domain.RequirementMember:
		return y.checkMembership(ctx, owner.AccessToken, participantChannel)
	default:
		return domain.VerificationError(fmt.Errorf("%w: youtube does not support %q", domain.ErrInvalidRule, req))
	}
}

func (y *YouTube) participantChannelID(ctx context.Context, token string) (string, error) {
	id, err := y.identities.Resolve(ctx, domain.ProviderYouTube, token, func(ctx context.Context) (string, error) {
		var out youtubeList
		q := url.Values{"part": {"id"}, "mine": {"true"}}
		if err := y.api.getJSON(ctx, "channels.mine", "/channels", q, bearer(token), &out); err != nil {
			return "", err
		}
		if len(out.Items) == 0 || out.Items[0].ID == "" {
			return "", domain.ErrIdentityNotFound
		}
		return out.Items[0].ID, nil
	})
	if StatusCode(err) == http.StatusUnauthorized {
		y.identities.Forget(domain.ProviderYouTube, token)
	}
	return id, err
}

// checkSubscription lists subscriptions of the participant's channel filtered
// to the target channel. Private subscription lists answer 403 and cannot be
// verified.
func (y *YouTube) checkSubscription(ctx context.Context, ownerToken, participantChannel, channelID string) domain.Verification {
	var out youtubeList
	q := url.Values{
		"part":         {"id"},
		"channelId":    {participantChannel},
		"forChannelId": {channelID},
		"maxResults":   {"1"},
	}
	err := y.api.getJSON(ctx, "subscriptions.list", "/subscriptions", q, bearer(ownerToken), &out)
	switch {
	case err == nil && len(out.Items) > 0:
		return domain.Satisfied()
	case err == nil, StatusCode(err) == http.StatusNotFound:
		return domain.NotSatisfied()
	default:
		return domain.VerificationError(err)
	}
}

// checkMembership queries the owner's channel memberships. The owner token
// must belong to the channel in the rule.
func (y *YouTube) checkMembership(ctx context.Context, ownerToken, participantChannel string) domain.Verification {
	var out youtubeList
	q := url.Values{
		"part":                    {"snippet"},
		"mode":                    {"all_current"},
		"filterByMemberChannelId": {participantChannel},
		"maxResults":              {"1"},
	}
	err := y.api.getJSON(ctx, "members.list", "/members", q, bearer(ownerToken), &out)
	switch {
	case err == nil && len(out.Items) > 0:
		return domain.Satisfied()
	case err == nil, StatusCode(err) == http.StatusNotFound:
		return domain.NotSatisfied()
	default:
		return domain.VerificationError(err)
	}
}

// FetchIdentity looks up a channel's title, handle and avatar. caller may be
// nil when an API key is configured.
func (y *YouTube) FetchIdentity(ctx context.Context, channelID string, caller *domain.Credential) (*domain.IdentityDetails, error) {
	q := url.Values{"part": {"snippet"}, "id": {channelID}}
	var header http.Header
	switch {
	case caller != nil:
		header = bearer(caller.AccessToken)
	case y.apiKey != "":
		q.Set("key", y.apiKey)
	default:
		return nil, errors.New("youtube channel lookup needs a caller credential or api key")
	}

	var out youtubeList
	if err := y.api.getJSON(ctx, "channels.list", "/channels", q, header, &out); err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("%w: youtube channel %s", domain.ErrIdentityNotFound, channelID)
	}
	s := out.Items[0].Snippet
	return &domain.IdentityDetails{
		DisplayName: s.Title,
		Handle:      s.CustomURL,
		AvatarURL:   s.Thumbnails.Default.URL,
	}, nil
}
