package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var ErrAppTokenUnavailable = errors.New("app access token unavailable")

// AppTokenCache holds one client-credentials token and its expiry. It is
// owned by the Twitch client; there is no package-level token state.
type AppTokenCache struct {
	fetch func(ctx context.Context) (*oauth2.Token, error)
	skew  time.Duration
	now   func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewAppTokenCache uses the OAuth2 client-credentials grant against tokenURL.
// httpClient may be nil.
func NewAppTokenCache(clientID, clientSecret, tokenURL string, httpClient *http.Client) *AppTokenCache {
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return &AppTokenCache{
		fetch: func(ctx context.Context) (*oauth2.Token, error) {
			if httpClient != nil {
				ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
			}
			return cc.Token(ctx)
		},
		skew: time.Minute,
		now:  time.Now,
	}
}

// Token returns the cached token, fetching a new one when it is missing or
// within the skew of expiring.
func (c *AppTokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Add(c.skew).Before(c.expiresAt) {
		return c.token, nil
	}

	tok, err := c.fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAppTokenUnavailable, err)
	}
	if tok.AccessToken == "" {
		return "", ErrAppTokenUnavailable
	}

	c.token = tok.AccessToken
	c.expiresAt = tok.Expiry
	if c.expiresAt.IsZero() {
		c.expiresAt = c.now().Add(time.Hour)
	}
	return c.token, nil
}

// Invalidate forces the next Token call to fetch.
func (c *AppTokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}
