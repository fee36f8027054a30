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

type TwitchConfig struct {
	ClientConfig
	ClientID string
}

// Twitch verifies follows and subscriptions with the Helix API. Follower and
// subscriber are independent requirements: a subscriber check does not also
// require a follow.
type Twitch struct {
	api        *apiClient
	clientID   string
	vault      ports.TokenVault
	identities *IdentityCache
	appTokens  *AppTokenCache
	logger     *zap.SugaredLogger
}

// NewTwitch builds the Helix client. appTokens may be nil, in which case
// broadcaster lookups require a caller credential.
func NewTwitch(cfg TwitchConfig, vault ports.TokenVault, identities *IdentityCache, appTokens *AppTokenCache, metrics ports.Metrics, logger *zap.SugaredLogger) (*Twitch, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("twitch client id is required")
	}
	api, err := newAPIClient(domain.ProviderTwitch, cfg.ClientConfig, metrics, logger)
	if err != nil {
		return nil, err
	}
	return &Twitch{
		api:        api,
		clientID:   cfg.ClientID,
		vault:      vault,
		identities: identities,
		appTokens:  appTokens,
		logger:     logger,
	}, nil
}

// Breaker exposes the API circuit breaker for health reporting.
func (t *Twitch) Breaker() *circuitbreaker.CircuitBreaker {
	return t.api.breaker
}

func (t *Twitch) Provider() domain.Provider {
	return domain.ProviderTwitch
}

type helixUsers struct {
	Data []struct {
		ID              string `json:"id"`
		Login           string `json:"login"`
		DisplayName     string `json:"display_name"`
		ProfileImageURL string `json:"profile_image_url"`
	} `json:"data"`
}

type helixRelation struct {
	Data []struct {
		UserID string `json:"user_id"`
	} `json:"data"`
}

// Verify checks the participant against broadcasterID using the
// broadcaster's (space owner's) token for the relationship query.
func (t *Twitch) Verify(ctx context.Context, req domain.Requirement, participant *domain.Credential, ownerID domain.UserID, broadcasterID string) domain.Verification {
	if participant == nil {
		return domain.VerificationError(domain.ErrCredentialNotFound)
	}

	participantID, err := t.participantUserID(ctx, participant.AccessToken)
	if errors.Is(err, domain.ErrIdentityNotFound) {
		return domain.NotSatisfied()
	}
	if err != nil {
		return domain.VerificationError(fmt.Errorf("resolve participant account: %w", err))
	}

	owner, err := t.vault.Resolve(ctx, ownerID, domain.ProviderTwitch)
	if err != nil {
		return domain.VerificationError(fmt.Errorf("owner credential unavailable: %w", err))
	}

	switch req {
	case domain.RequirementFollower:
		return t.checkRelation(ctx, "channels.followers", "/channels/followers", owner.AccessToken, broadcasterID, participantID)
	case domain.RequirementSubscriber:
		return t.checkRelation(ctx, "subscriptions", "/subscriptions", owner.AccessToken, broadcasterID, participantID)
	default:
		return domain.VerificationError(fmt.Errorf("%w: twitch does not support %q", domain.ErrInvalidRule, req))
	}
}

func (t *Twitch) participantUserID(ctx context.Context, token string) (string, error) {
	id, err := t.identities.Resolve(ctx, domain.ProviderTwitch, token, func(ctx context.Context) (string, error) {
		var out helixUsers
		if err := t.api.getJSON(ctx, "users.self", "/users", nil, t.headers(token), &out); err != nil {
			return "", err
		}
		if len(out.Data) == 0 || out.Data[0].ID == "" {
			return "", domain.ErrIdentityNotFound
		}
		return out.Data[0].ID, nil
	})
	if StatusCode(err) == http.StatusUnauthorized {
		t.identities.Forget(domain.ProviderTwitch, token)
	}
	return id, err
}

// checkRelation asks whether userID appears in the broadcaster's followers or
// subscribers. Helix answers 404 for "no subscription", which is a definitive
// no rather than a failure.
func (t *Twitch) checkRelation(ctx context.Context, operation, path, ownerToken, broadcasterID, userID string) domain.Verification {
	var out helixRelation
	q := url.Values{
		"broadcaster_id": {broadcasterID},
		"user_id":        {userID},
	}
	err := t.api.getJSON(ctx, operation, path, q, t.headers(ownerToken), &out)
	switch {
	case err == nil && len(out.Data) > 0:
		return domain.Satisfied()
	case err == nil, StatusCode(err) == http.StatusNotFound:
		return domain.NotSatisfied()
	default:
		return domain.VerificationError(err)
	}
}

// FetchIdentity looks up a broadcaster's display name, login and avatar.
// Without a caller credential it falls back to the app access token.
func (t *Twitch) FetchIdentity(ctx context.Context, broadcasterID string, caller *domain.Credential) (*domain.IdentityDetails, error) {
	usingApp := caller == nil
	var token string
	if usingApp {
		if t.appTokens == nil {
			return nil, fmt.Errorf("twitch user lookup: %w", ErrAppTokenUnavailable)
		}
		var err error
		if token, err = t.appTokens.Token(ctx); err != nil {
			return nil, err
		}
	} else {
		token = caller.AccessToken
	}

	var out helixUsers
	err := t.api.getJSON(ctx, "users.lookup", "/users", url.Values{"id": {broadcasterID}}, t.headers(token), &out)
	if err != nil {
		if usingApp && StatusCode(err) == http.StatusUnauthorized {
			t.logger.Warnw("twitch app token rejected, invalidating")
			t.appTokens.Invalidate()
		}
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("%w: twitch broadcaster %s", domain.ErrIdentityNotFound, broadcasterID)
	}
	u := out.Data[0]
	return &domain.IdentityDetails{
		DisplayName: u.DisplayName,
		Handle:      u.Login,
		AvatarURL:   u.ProfileImageURL,
	}, nil
}

func (t *Twitch) headers(token string) http.Header {
	h := bearer(token)
	h.Set("Client-Id", t.clientID)
	return h
}
