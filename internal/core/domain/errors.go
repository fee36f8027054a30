package domain

import "errors"

var (
	ErrSpaceNotFound       = errors.New("space not found")
	ErrInvalidSpace        = errors.New("invalid space")
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrCredentialNotFound  = errors.New("credential not found")
	ErrCredentialExpired   = errors.New("credential expired")
	ErrCredentialMalformed = errors.New("credential has no expiry")
	ErrParticipantExists   = errors.New("participant already joined")
	ErrCapacityReached     = errors.New("space capacity reached")
	ErrMetadataNotFound    = errors.New("provider metadata not found")
	ErrMetadataUnavailable = errors.New("provider metadata unavailable")
	ErrInvalidRule         = errors.New("invalid gatekeeper rule")
	ErrProviderAPI         = errors.New("provider api error")
	ErrIdentityNotFound    = errors.New("provider identity not found")
	ErrUnsupportedProvider = errors.New("unsupported provider")
)
