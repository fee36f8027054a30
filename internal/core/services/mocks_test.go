package services_test

import (
	"context"
	"sync"
	"time"

	"spacegate/internal/core/domain"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type MockVerifier struct {
	mock.Mock
	provider domain.Provider
}

func (m *MockVerifier) Provider() domain.Provider {
	return m.provider
}

func (m *MockVerifier) Verify(ctx context.Context, req domain.Requirement, participant *domain.Credential, ownerID domain.UserID, targetID string) domain.Verification {
	args := m.Called(ctx, req, participant, ownerID, targetID)
	return args.Get(0).(domain.Verification)
}

type MockIdentityFetcher struct {
	mock.Mock
	provider domain.Provider
}

func (m *MockIdentityFetcher) Provider() domain.Provider {
	return m.provider
}

func (m *MockIdentityFetcher) FetchIdentity(ctx context.Context, externalID string, caller *domain.Credential) (*domain.IdentityDetails, error) {
	args := m.Called(ctx, externalID, caller)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IdentityDetails), args.Error(1)
}

type MockEvaluator struct {
	mock.Mock
}

func (m *MockEvaluator) Evaluate(ctx context.Context, rules *domain.GatekeeperRuleSet, applicant domain.Applicant, ownerID domain.UserID) domain.Decision {
	args := m.Called(ctx, rules, applicant, ownerID)
	return args.Get(0).(domain.Decision)
}

// capturePublisher records every published event.
type capturePublisher struct {
	mu     sync.Mutex
	events []*domain.ParticipationEvent
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, event *domain.ParticipationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *capturePublisher) Events() []*domain.ParticipationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*domain.ParticipationEvent(nil), p.events...)
}

type countingMetrics struct {
	mu        sync.Mutex
	decisions map[domain.Reason]int
	cache     map[string]int
	joined    int
	left      int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		decisions: make(map[domain.Reason]int),
		cache:     make(map[string]int),
	}
}

func (c *countingMetrics) RecordDecision(reason domain.Reason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions[reason]++
}

func (c *countingMetrics) RecordProviderRequest(domain.Provider, string, time.Duration) {}

func (c *countingMetrics) RecordMetadataCache(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[result]++
}

func (c *countingMetrics) RecordParticipantJoined(domain.SpaceID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined++
}

func (c *countingMetrics) RecordParticipantLeft(domain.SpaceID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.left++
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// fixedClock returns a clock that can be moved by tests.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *fixedClock {
	return &fixedClock{now: t}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func connected(userID domain.UserID, provider domain.Provider, token string, expiresAt time.Time) *domain.Credential {
	return &domain.Credential{
		UserID:      userID,
		Provider:    provider,
		AccessToken: token,
		ExpiresAt:   &expiresAt,
	}
}
