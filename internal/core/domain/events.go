package domain

import "time"

type EventType string

const (
	EventParticipantJoined EventType = "participant.joined"
	EventParticipantLeft   EventType = "participant.left"
)

// ParticipationEvent is emitted after a participant record is created or deleted.
type ParticipationEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	InstanceID string    `json:"instance_id,omitempty"`
	SpaceID    SpaceID   `json:"space_id"`
	UserID     UserID    `json:"user_id"`
	Count      int       `json:"count"`
	Timestamp  time.Time `json:"timestamp"`
}
