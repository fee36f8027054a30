package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"
	"spacegate/pkg/tracing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type LedgerConfig struct {
	// ExpirationWindow closes a space this long after creation. Zero disables expiry.
	ExpirationWindow time.Duration
	InstanceID       string
	Now              func() time.Time
}

type participationLedger struct {
	spaces       ports.SpaceRepository
	participants ports.ParticipantRepository
	evaluator    ports.AdmissionEvaluator
	publisher    ports.EventPublisher
	metrics      ports.Metrics
	cfg          LedgerConfig
	logger       *zap.SugaredLogger
}

func NewParticipationLedger(
	spaces ports.SpaceRepository,
	participants ports.ParticipantRepository,
	evaluator ports.AdmissionEvaluator,
	publisher ports.EventPublisher,
	metrics ports.Metrics,
	cfg LedgerConfig,
	logger *zap.SugaredLogger,
) ports.ParticipationLedger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &participationLedger{
		spaces:       spaces,
		participants: participants,
		evaluator:    evaluator,
		publisher:    publisher,
		metrics:      metrics,
		cfg:          cfg,
		logger:       logger,
	}
}

// Join admits the applicant and records participation. A denied decision is
// returned with a nil error; the error is reserved for storage failures.
// Joining twice is not an error. Each join attempt is counted once, under
// its final decision.
func (l *participationLedger) Join(ctx context.Context, spaceID domain.SpaceID, applicant domain.Applicant) (domain.Decision, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.join")
	defer span.End()
	tracing.AddSpanAttributes(ctx,
		tracing.SpaceIDKey.String(string(spaceID)),
		tracing.UserIDKey.String(string(applicant.UserID)),
	)

	decision, err := l.join(ctx, spaceID, applicant)
	if err != nil {
		return decision, err
	}
	l.metrics.RecordDecision(decision.Reason)
	return decision, nil
}

func (l *participationLedger) join(ctx context.Context, spaceID domain.SpaceID, applicant domain.Applicant) (domain.Decision, error) {
	space, decision, err := l.gate(ctx, spaceID, applicant)
	if err != nil || !decision.Allowed {
		return decision, err
	}

	participant := &domain.Participant{
		SpaceID:  spaceID,
		UserID:   applicant.UserID,
		JoinedAt: l.cfg.Now(),
	}
	err = l.participants.Insert(ctx, participant, space.MaxParticipants)
	switch {
	case errors.Is(err, domain.ErrParticipantExists):
		return domain.Admit(), nil
	case errors.Is(err, domain.ErrCapacityReached):
		return domain.Deny(domain.ReasonQuotaReached, ""), nil
	case err != nil:
		tracing.RecordError(ctx, err)
		return domain.Decision{}, fmt.Errorf("failed to record participant: %w", err)
	}

	l.metrics.RecordParticipantJoined(spaceID)
	l.logger.Infow("participant joined",
		"space_id", spaceID,
		"user_id", applicant.UserID,
	)
	l.publish(ctx, domain.EventParticipantJoined, spaceID, applicant.UserID)

	return domain.Admit(), nil
}

// Check runs the same gates as Join without recording anything.
func (l *participationLedger) Check(ctx context.Context, spaceID domain.SpaceID, applicant domain.Applicant) (domain.Decision, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.check")
	defer span.End()

	_, decision, err := l.gate(ctx, spaceID, applicant)
	return decision, err
}

func (l *participationLedger) Leave(ctx context.Context, spaceID domain.SpaceID, userID domain.UserID) error {
	if userID == "" {
		return domain.ErrNotAuthenticated
	}
	removed, err := l.participants.Delete(ctx, spaceID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	if !removed {
		return nil
	}

	l.metrics.RecordParticipantLeft(spaceID)
	l.logger.Infow("participant left",
		"space_id", spaceID,
		"user_id", userID,
	)
	l.publish(ctx, domain.EventParticipantLeft, spaceID, userID)
	return nil
}

// gate runs every pre-insert check in order: identity, space lookup, status,
// expiration, then the admission rules. The capacity check happens inside
// the insert so it is atomic with the write.
func (l *participationLedger) gate(ctx context.Context, spaceID domain.SpaceID, applicant domain.Applicant) (*domain.Space, domain.Decision, error) {
	if applicant.UserID == "" {
		return nil, domain.Deny(domain.ReasonNotAuthenticated, ""), nil
	}

	space, err := l.spaces.GetByID(ctx, spaceID)
	if errors.Is(err, domain.ErrSpaceNotFound) {
		return nil, domain.Deny(domain.ReasonSpaceNotFound, ""), nil
	}
	if err != nil {
		return nil, domain.Decision{}, fmt.Errorf("failed to load space: %w", err)
	}

	if !space.IsOpen() {
		return space, domain.Deny(domain.ReasonSpaceNotOpen, ""), nil
	}
	if space.ExpiredAt(l.cfg.Now(), l.cfg.ExpirationWindow) {
		return space, domain.Deny(domain.ReasonSpaceClosed, ""), nil
	}

	decision := l.evaluator.Evaluate(ctx, space.Rules(), applicant, space.OwnerID)
	return space, decision, nil
}

// publish is best effort: the participant record is the source of truth.
func (l *participationLedger) publish(ctx context.Context, eventType domain.EventType, spaceID domain.SpaceID, userID domain.UserID) {
	if l.publisher == nil {
		return
	}
	count, err := l.participants.Count(ctx, spaceID)
	if err != nil {
		l.logger.Warnw("failed to count participants", "space_id", spaceID, "error", err)
	}
	event := &domain.ParticipationEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		InstanceID: l.cfg.InstanceID,
		SpaceID:    spaceID,
		UserID:     userID,
		Count:      count,
		Timestamp:  l.cfg.Now(),
	}
	if err := l.publisher.Publish(ctx, event); err != nil {
		l.logger.Warnw("failed to publish participation event",
			"space_id", spaceID,
			"type", eventType,
			"error", err,
		)
	}
}
