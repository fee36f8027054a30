package providers

import (
	"context"
	"sync"
	"time"

	"spacegate/internal/core/domain"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type MockTokenVault struct {
	mock.Mock
}

func (m *MockTokenVault) Get(ctx context.Context, userID domain.UserID, provider domain.Provider) (*domain.Credential, error) {
	args := m.Called(ctx, userID, provider)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Credential), args.Error(1)
}

func (m *MockTokenVault) IsExpired(cred *domain.Credential) bool {
	return m.Called(cred).Bool(0)
}

func (m *MockTokenVault) Resolve(ctx context.Context, userID domain.UserID, provider domain.Provider) (*domain.Credential, error) {
	args := m.Called(ctx, userID, provider)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Credential), args.Error(1)
}

func (m *MockTokenVault) Store(ctx context.Context, cred *domain.Credential) error {
	return m.Called(ctx, cred).Error(0)
}

func (m *MockTokenVault) Delete(ctx context.Context, userID domain.UserID, provider domain.Provider) error {
	return m.Called(ctx, userID, provider).Error(0)
}

func (m *MockTokenVault) Status(ctx context.Context, userID domain.UserID, provider domain.Provider) (domain.CredentialStatus, error) {
	args := m.Called(ctx, userID, provider)
	return args.Get(0).(domain.CredentialStatus), args.Error(1)
}

// recordingMetrics keeps provider request outcomes for assertions.
type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingMetrics) RecordDecision(domain.Reason) {}
func (r *recordingMetrics) RecordProviderRequest(_ domain.Provider, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}
func (r *recordingMetrics) RecordMetadataCache(string)             {}
func (r *recordingMetrics) RecordParticipantJoined(domain.SpaceID) {}
func (r *recordingMetrics) RecordParticipantLeft(domain.SpaceID)   {}

func (r *recordingMetrics) Outcomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outcomes...)
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func credential(userID domain.UserID, provider domain.Provider, token string) *domain.Credential {
	exp := time.Now().Add(time.Hour)
	return &domain.Credential{
		UserID:      userID,
		Provider:    provider,
		AccessToken: token,
		ExpiresAt:   &exp,
	}
}
