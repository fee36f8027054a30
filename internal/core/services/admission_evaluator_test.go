package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"
	"spacegate/internal/core/services"
	"spacegate/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type evaluatorFixture struct {
	vault   ports.TokenVault
	youtube *MockVerifier
	twitch  *MockVerifier
	clock   *fixedClock
}

func newEvaluatorFixture(cfg services.AdmissionConfig) (*evaluatorFixture, ports.AdmissionEvaluator) {
	clock := newClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	vaultCfg := services.DefaultTokenVaultConfig()
	vaultCfg.Now = clock.Now

	f := &evaluatorFixture{
		vault:   services.NewTokenVault(memory.NewMemoryCredentialRepository(), nil, vaultCfg, testLogger()),
		youtube: &MockVerifier{provider: domain.ProviderYouTube},
		twitch:  &MockVerifier{provider: domain.ProviderTwitch},
		clock:   clock,
	}
	e := services.NewAdmissionEvaluator(f.vault, []ports.ProviderVerifier{f.youtube, f.twitch}, cfg, testLogger())
	return f, e
}

func (f *evaluatorFixture) connect(t *testing.T, user domain.UserID, provider domain.Provider) *domain.Credential {
	t.Helper()
	cred := connected(user, provider, string(user)+"-"+string(provider), f.clock.Now().Add(time.Hour))
	require.NoError(t, f.vault.Store(context.Background(), cred))
	stored, err := f.vault.Resolve(context.Background(), user, provider)
	require.NoError(t, err)
	return stored
}

var verifiedAlice = domain.Applicant{UserID: "alice", Email: "alice@example.com", EmailVerified: true}

func TestAdmission_NoRulesAdmits(t *testing.T) {
	f, e := newEvaluatorFixture(services.AdmissionConfig{})
	ctx := context.Background()

	assert.True(t, e.Evaluate(ctx, nil, verifiedAlice, "owner").Allowed)
	assert.True(t, e.Evaluate(ctx, &domain.GatekeeperRuleSet{}, verifiedAlice, "owner").Allowed)

	// Requirements set to none are skipped without touching the vault.
	rules := &domain.GatekeeperRuleSet{
		YouTube: &domain.YouTubeRule{ChannelID: "UC1", Requirement: domain.RequirementNone},
		Twitch:  &domain.TwitchRule{BroadcasterID: "42", Requirement: domain.RequirementNone},
	}
	assert.True(t, e.Evaluate(ctx, rules, domain.Applicant{UserID: "nobody"}, "owner").Allowed)

	f.youtube.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.twitch.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAdmission_Email(t *testing.T) {
	tests := []struct {
		name      string
		rule      *domain.EmailRule
		applicant domain.Applicant
		want      domain.Reason
	}{
		{
			name:      "domain wildcard admits",
			rule:      &domain.EmailRule{Allowed: []string{"@example.com"}},
			applicant: verifiedAlice,
			want:      domain.ReasonNone,
		},
		{
			name:      "not on allow list",
			rule:      &domain.EmailRule{Allowed: []string{"@corp.io"}},
			applicant: verifiedAlice,
			want:      domain.ReasonEmailNotAllowed,
		},
		{
			name:      "blocked wins over allowed",
			rule:      &domain.EmailRule{Allowed: []string{"@example.com"}, Blocked: []string{"alice@example.com"}},
			applicant: verifiedAlice,
			want:      domain.ReasonEmailBlocked,
		},
		{
			name:      "unverified email",
			rule:      &domain.EmailRule{Allowed: []string{"@example.com"}},
			applicant: domain.Applicant{UserID: "alice", Email: "alice@example.com"},
			want:      domain.ReasonEmailNotAllowed,
		},
		{
			name:      "no email",
			rule:      &domain.EmailRule{Allowed: []string{"@example.com"}},
			applicant: domain.Applicant{UserID: "alice"},
			want:      domain.ReasonEmailNotAllowed,
		},
		{
			name:      "block list alone is inert",
			rule:      &domain.EmailRule{Blocked: []string{"alice@example.com"}},
			applicant: verifiedAlice,
			want:      domain.ReasonNone,
		},
		{
			name:      "malformed pattern",
			rule:      &domain.EmailRule{Allowed: []string{"not an email"}},
			applicant: verifiedAlice,
			want:      domain.ReasonInvalidRule,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, e := newEvaluatorFixture(services.AdmissionConfig{})
			d := e.Evaluate(context.Background(), &domain.GatekeeperRuleSet{Email: tt.rule}, tt.applicant, "owner")
			assert.Equal(t, tt.want == domain.ReasonNone, d.Allowed)
			assert.Equal(t, tt.want, d.Reason)
		})
	}
}

func TestAdmission_BlockListEnforcedWhenConfigured(t *testing.T) {
	_, e := newEvaluatorFixture(services.AdmissionConfig{EnforceBlocklistWithoutAllowlist: true})
	rules := &domain.GatekeeperRuleSet{Email: &domain.EmailRule{Blocked: []string{"@example.com"}}}

	d := e.Evaluate(context.Background(), rules, verifiedAlice, "owner")
	assert.False(t, d.Allowed)
	assert.Equal(t, domain.ReasonEmailBlocked, d.Reason)

	d = e.Evaluate(context.Background(), rules, domain.Applicant{UserID: "bob", Email: "bob@corp.io", EmailVerified: true}, "owner")
	assert.True(t, d.Allowed)
}

func TestAdmission_NoCredentialMakesNoProviderCall(t *testing.T) {
	f, e := newEvaluatorFixture(services.AdmissionConfig{})
	rules := &domain.GatekeeperRuleSet{
		YouTube: &domain.YouTubeRule{ChannelID: "UC1", Requirement: domain.RequirementSubscriber},
	}

	d := e.Evaluate(context.Background(), rules, verifiedAlice, "owner")
	assert.False(t, d.Allowed)
	assert.Equal(t, domain.ReasonVerificationRequired, d.Reason)
	assert.Equal(t, domain.ProviderYouTube, d.Provider)
	f.youtube.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAdmission_ExpiredCredential(t *testing.T) {
	f, e := newEvaluatorFixture(services.AdmissionConfig{})
	f.connect(t, "alice", domain.ProviderTwitch)
	f.clock.Advance(2 * time.Hour)

	rules := &domain.GatekeeperRuleSet{
		Twitch: &domain.TwitchRule{BroadcasterID: "42", Requirement: domain.RequirementFollower},
	}
	d := e.Evaluate(context.Background(), rules, verifiedAlice, "owner")
	assert.Equal(t, domain.ReasonVerificationExpired, d.Reason)
	assert.Equal(t, domain.ProviderTwitch, d.Provider)
	f.twitch.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAdmission_ProviderOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		result domain.Verification
		want   domain.Reason
	}{
		{"satisfied", domain.Satisfied(), domain.ReasonNone},
		{"not satisfied", domain.NotSatisfied(), domain.ReasonNotSubscribed},
		{"provider error", domain.VerificationError(errors.New("503 backend error")), domain.ReasonVerificationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, e := newEvaluatorFixture(services.AdmissionConfig{})
			cred := f.connect(t, "alice", domain.ProviderYouTube)
			f.youtube.On("Verify", mock.Anything, domain.RequirementSubscriber, cred, domain.UserID("owner"), "UC1").
				Return(tt.result).Once()

			rules := &domain.GatekeeperRuleSet{
				YouTube: &domain.YouTubeRule{ChannelID: "UC1", Requirement: domain.RequirementSubscriber},
			}
			d := e.Evaluate(context.Background(), rules, verifiedAlice, "owner")
			assert.Equal(t, tt.want, d.Reason)
			assert.Equal(t, tt.want == domain.ReasonNone, d.Allowed)
			f.youtube.AssertExpectations(t)
		})
	}
}

func TestAdmission_RetryableOnlyForProviderFailure(t *testing.T) {
	f, e := newEvaluatorFixture(services.AdmissionConfig{})
	f.connect(t, "alice", domain.ProviderYouTube)
	f.youtube.On("Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(domain.VerificationError(errors.New("timeout"))).Once()

	rules := &domain.GatekeeperRuleSet{YouTube: &domain.YouTubeRule{ChannelID: "UC1", Requirement: domain.RequirementMember}}
	d := e.Evaluate(context.Background(), rules, verifiedAlice, "owner")
	assert.True(t, d.Reason.Retryable())
	assert.Equal(t, "timeout", d.Detail)
	assert.False(t, domain.ReasonNotMember.Retryable())
}

func TestAdmission_OrderStopsAtFirstDenial(t *testing.T) {
	f, e := newEvaluatorFixture(services.AdmissionConfig{})
	f.connect(t, "alice", domain.ProviderYouTube)
	f.connect(t, "alice", domain.ProviderTwitch)

	rules := &domain.GatekeeperRuleSet{
		Email:   &domain.EmailRule{Allowed: []string{"@example.com"}},
		YouTube: &domain.YouTubeRule{ChannelID: "UC1", Requirement: domain.RequirementMember},
		Twitch:  &domain.TwitchRule{BroadcasterID: "42", Requirement: domain.RequirementFollower},
	}

	f.youtube.On("Verify", mock.Anything, domain.RequirementMember, mock.Anything, mock.Anything, "UC1").
		Return(domain.NotSatisfied()).Once()

	d := e.Evaluate(context.Background(), rules, verifiedAlice, "owner")
	assert.Equal(t, domain.ReasonNotMember, d.Reason)
	f.twitch.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// With YouTube satisfied, Twitch decides.
	f.youtube.On("Verify", mock.Anything, domain.RequirementMember, mock.Anything, mock.Anything, "UC1").
		Return(domain.Satisfied()).Once()
	f.twitch.On("Verify", mock.Anything, domain.RequirementFollower, mock.Anything, domain.UserID("owner"), "42").
		Return(domain.NotSatisfied()).Once()

	d = e.Evaluate(context.Background(), rules, verifiedAlice, "owner")
	assert.Equal(t, domain.ReasonNotFollowing, d.Reason)
	assert.Equal(t, domain.ProviderTwitch, d.Provider)
}

func TestAdmission_InvalidProviderRule(t *testing.T) {
	f, e := newEvaluatorFixture(services.AdmissionConfig{})
	f.connect(t, "alice", domain.ProviderYouTube)

	tests := []struct {
		name  string
		rules *domain.GatekeeperRuleSet
	}{
		{"unsupported requirement", &domain.GatekeeperRuleSet{YouTube: &domain.YouTubeRule{ChannelID: "UC1", Requirement: domain.RequirementFollower}}},
		{"missing target", &domain.GatekeeperRuleSet{Twitch: &domain.TwitchRule{Requirement: domain.RequirementSubscriber}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Evaluate(context.Background(), tt.rules, verifiedAlice, "owner")
			assert.False(t, d.Allowed)
			assert.Equal(t, domain.ReasonInvalidRule, d.Reason)
		})
	}
}

func TestAdmission_MissingVerifier(t *testing.T) {
	vault := services.NewTokenVault(memory.NewMemoryCredentialRepository(), nil, services.DefaultTokenVaultConfig(), testLogger())
	e := services.NewAdmissionEvaluator(vault, nil, services.AdmissionConfig{}, testLogger())

	rules := &domain.GatekeeperRuleSet{Twitch: &domain.TwitchRule{BroadcasterID: "42", Requirement: domain.RequirementFollower}}
	d := e.Evaluate(context.Background(), rules, verifiedAlice, "owner")
	assert.Equal(t, domain.ReasonInvalidRule, d.Reason)
}
