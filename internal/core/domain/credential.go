package domain

import "time"

// Credential is a user's delegated access token for one provider.
// At most one live credential exists per (user, provider).
type Credential struct {
	UserID      UserID     `json:"user_id"`
	Provider    Provider   `json:"provider"`
	AccessToken string     `json:"-"` // never serialized to clients
	Scopes      []string   `json:"scopes,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CredentialStatus is what the connections screen shows; it never carries the token.
type CredentialStatus string

const (
	CredentialConnected CredentialStatus = "connected"
	CredentialExpired   CredentialStatus = "expired"
	CredentialMissing   CredentialStatus = "missing"
)
