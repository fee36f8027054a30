package services

import (
	"time"

	"spacegate/internal/core/domain"
)

// NoopMetrics discards every measurement.
type NoopMetrics struct{}

func (NoopMetrics) RecordDecision(domain.Reason)                                 {}
func (NoopMetrics) RecordProviderRequest(domain.Provider, string, time.Duration) {}
func (NoopMetrics) RecordMetadataCache(string)                                   {}
func (NoopMetrics) RecordParticipantJoined(domain.SpaceID)                       {}
func (NoopMetrics) RecordParticipantLeft(domain.SpaceID)                         {}
