package domain

import "time"

// ProviderMetadata is the cached, human-readable identity of a channel or
// broadcaster. One record per (provider, external id), shared by every space
// that references it. LastError is independent of the display fields: a
// failed refresh never clears a previously known name.
type ProviderMetadata struct {
	Provider    Provider  `json:"provider"`
	ExternalID  string    `json:"external_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Handle      string    `json:"handle,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
	LastError   string    `json:"last_error,omitempty"`
}

func (m *ProviderMetadata) HasDisplay() bool {
	return m != nil && (m.DisplayName != "" || m.Handle != "" || m.AvatarURL != "")
}

// IdentityDetails is what a provider returns for an identity lookup.
type IdentityDetails struct {
	DisplayName string
	Handle      string
	AvatarURL   string
}
