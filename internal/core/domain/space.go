package domain

import (
	"time"
)

type SpaceID string
type UserID string

type SpaceStatus string

const (
	SpaceStatusDraft  SpaceStatus = "draft"
	SpaceStatusActive SpaceStatus = "active"
	SpaceStatusClosed SpaceStatus = "closed"
)

func (s SpaceStatus) Valid() bool {
	switch s {
	case SpaceStatusDraft, SpaceStatusActive, SpaceStatusClosed:
		return true
	}
	return false
}

type Space struct {
	ID              SpaceID            `json:"id"`
	Name            string             `json:"name"`
	OwnerID         UserID             `json:"owner_id"`
	Status          SpaceStatus        `json:"status"`
	CreatedAt       time.Time          `json:"created_at"`
	MaxParticipants int                `json:"max_participants"` // 0 = unlimited
	Gatekeeper      *GatekeeperRuleSet `json:"gatekeeper,omitempty"`
}

func (s *Space) IsOpen() bool {
	return s.Status == SpaceStatusActive
}

// ExpiredAt reports whether the space is past its expiration window at now.
// A zero or negative window means spaces never expire.
func (s *Space) ExpiredAt(now time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	return !now.Before(s.CreatedAt.Add(window))
}

// Rules never returns nil so callers can evaluate without a nil check.
func (s *Space) Rules() *GatekeeperRuleSet {
	if s.Gatekeeper == nil {
		return &GatekeeperRuleSet{}
	}
	return s.Gatekeeper
}
