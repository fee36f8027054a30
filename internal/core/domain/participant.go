package domain

import "time"

// Participant records that a user is admitted to a space. Its existence is
// the only source of truth for membership.
type Participant struct {
	SpaceID  SpaceID   `json:"space_id"`
	UserID   UserID    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Applicant is the authenticated user asking to join, as supplied by the
// surrounding auth layer.
type Applicant struct {
	UserID        UserID
	Email         string
	EmailVerified bool
}
