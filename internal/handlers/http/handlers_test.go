package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"
	"spacegate/internal/core/services"
	"spacegate/internal/infrastructure/distributed"
	"spacegate/internal/infrastructure/middleware"
	"spacegate/internal/infrastructure/repositories/memory"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type evaluatorFunc func(rules *domain.GatekeeperRuleSet, applicant domain.Applicant) domain.Decision

func (f evaluatorFunc) Evaluate(_ context.Context, rules *domain.GatekeeperRuleSet, applicant domain.Applicant, _ domain.UserID) domain.Decision {
	return f(rules, applicant)
}

type staticMetadata struct{}

func (staticMetadata) FetchAndCache(_ context.Context, provider domain.Provider, externalID string, _ *domain.Credential) (*domain.ProviderMetadata, error) {
	return &domain.ProviderMetadata{Provider: provider, ExternalID: externalID, DisplayName: "Channel " + externalID}, nil
}

type apiFixture struct {
	router *gin.Engine
	auth   services.AuthService
	spaces ports.SpaceRepository
	vault  ports.TokenVault
	hub    *distributed.LocalHub
	logs   *observer.ObservedLogs
}

// denyYouTube admits everyone unless the space has a YouTube rule.
func denyYouTube(rules *domain.GatekeeperRuleSet, _ domain.Applicant) domain.Decision {
	if rules != nil && rules.YouTube != nil {
		return domain.DenyProvider(domain.ProviderYouTube, domain.ReasonVerificationRequired, "no credential")
	}
	return domain.Admit()
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core).Sugar()

	spaces := memory.NewMemorySpaceRepository()
	participants := memory.NewMemoryParticipantRepository()
	vault := services.NewTokenVault(memory.NewMemoryCredentialRepository(), nil, services.DefaultTokenVaultConfig(), logger)
	hub := distributed.NewLocalHub("test", logger)
	auth := services.NewAuthService("handler-secret", time.Hour, spaces)

	ledger := services.NewParticipationLedger(spaces, participants, evaluatorFunc(denyYouTube), hub, nil,
		services.LedgerConfig{InstanceID: "test"}, logger)

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware(), middleware.ErrorHandlerMiddleware(logger))
	NewSpaceHandler(services.NewSpaceService(spaces, logger), ledger, services.NewGatekeeperSummarizer(vault, staticMetadata{}, logger), logger).
		SetupRoutes(router, auth)
	NewConnectionHandler(vault, logger).SetupRoutes(router, auth)

	return &apiFixture{router: router, auth: auth, spaces: spaces, vault: vault, hub: hub, logs: logs}
}

func (f *apiFixture) do(t *testing.T, method, path string, user domain.UserID, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		token, err := f.auth.GenerateToken(domain.Applicant{UserID: user, Email: string(user) + "@example.com", EmailVerified: true}, string(user))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (f *apiFixture) createSpace(t *testing.T, owner domain.UserID, body interface{}) domain.SpaceID {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/v1/spaces", owner, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Space domain.Space `json:"space"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Space.ID
}

func TestSpaceHandler_CreateAndActivate(t *testing.T) {
	f := newAPIFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/api/v1/spaces", "", gin.H{"name": "x"}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/spaces", "owner", gin.H{}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/spaces", "owner", gin.H{"name": "x", "max_participants": -1}).Code)

	id := f.createSpace(t, "owner", gin.H{"name": "Town hall"})
	space, err := f.spaces.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.SpaceStatusDraft, space.Status)
	assert.Equal(t, domain.UserID("owner"), space.OwnerID)

	path := "/api/v1/spaces/" + string(id) + "/status"
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPatch, path, "alice", gin.H{"status": "active"}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPatch, path, "owner", gin.H{"status": "paused"}).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, path, "owner", gin.H{"status": "active"}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPatch, "/api/v1/spaces/missing/status", "owner", gin.H{"status": "active"}).Code)
}

func TestSpaceHandler_JoinAndLeave(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createSpace(t, "owner", gin.H{"name": "Open mic"})
	base := "/api/v1/spaces/" + string(id)

	// Draft spaces are not open.
	w := f.do(t, http.MethodPost, base+"/join", "alice", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	details := decode(t, w)["details"].(map[string]interface{})
	assert.Equal(t, string(domain.ReasonSpaceNotOpen), details["reason"])
	assert.Equal(t, false, details["retryable"])

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, base+"/status", "owner", gin.H{"status": "active"}).Code)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan *domain.ParticipationEvent, 4)
	go f.hub.Subscribe(ctx, func(ev *domain.ParticipationEvent) error {
		events <- ev
		return nil
	})
	require.Eventually(t, func() bool { return f.hub.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	w = f.do(t, http.MethodPost, base+"/join", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "joined", decode(t, w)["status"])

	// Joining again is not an error.
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, base+"/join", "alice", nil).Code)

	select {
	case ev := <-events:
		assert.Equal(t, domain.EventParticipantJoined, ev.Type)
		assert.Equal(t, id, ev.SpaceID)
	case <-time.After(time.Second):
		t.Fatal("no joined event")
	}

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, base+"/participants/me", "alice", nil).Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, base+"/participants/me", "alice", nil).Code)

	select {
	case ev := <-events:
		assert.Equal(t, domain.EventParticipantLeft, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no left event")
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}

	w = f.do(t, http.MethodPost, "/api/v1/spaces/missing/join", "alice", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(domain.ReasonSpaceNotFound), decode(t, w)["details"].(map[string]interface{})["reason"])
}

func TestSpaceHandler_GatekeeperRules(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createSpace(t, "owner", gin.H{"name": "Members only"})
	base := "/api/v1/spaces/" + string(id)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, base+"/status", "owner", gin.H{"status": "active"}).Code)

	invalid := gin.H{"youtube": gin.H{"channel_id": "UC123", "requirement": "follower"}}
	w := f.do(t, http.MethodPut, base+"/gatekeeper", "owner", invalid)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	rules := gin.H{
		"email":   gin.H{"allowed": []string{"@example.com", "carol@partner.io"}},
		"youtube": gin.H{"channel_id": "UC123", "requirement": "subscriber"},
	}
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPut, base+"/gatekeeper", "alice", rules).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, base+"/gatekeeper", "owner", rules).Code)

	// The summary is public and masks addresses.
	w = f.do(t, http.MethodGet, base+"/gatekeeper", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Channel UC123")
	assert.Contains(t, w.Body.String(), "@example.com")
	assert.NotContains(t, w.Body.String(), "carol@partner.io")

	// The space view does not expose the raw rule set.
	w = f.do(t, http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "carol@partner.io")

	// Dry-run reports the provider denial without joining.
	w = f.do(t, http.MethodPost, base+"/admission", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["allowed"])
	assert.Equal(t, string(domain.ReasonVerificationRequired), body["reason"])
	assert.Equal(t, string(domain.ProviderYouTube), body["provider"])

	w = f.do(t, http.MethodPost, base+"/join", "alice", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(domain.ProviderYouTube), decode(t, w)["details"].(map[string]interface{})["provider"])
}

func TestConnectionHandler(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/connections", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Connections []ConnectionView `json:"connections"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Connections, 2)
	for _, c := range list.Connections {
		assert.Equal(t, domain.CredentialMissing, c.Status)
	}

	w = f.do(t, http.MethodPut, "/api/v1/connections/youtube", "alice", gin.H{"access_token": "ya29.secret", "expires_in": 3600})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "ya29.secret")
	assert.Equal(t, string(domain.CredentialConnected), decode(t, w)["status"])
	connected := f.logs.FilterMessage("provider connected").All()
	require.Len(t, connected, 1)
	assert.NotContains(t, connected[0].ContextMap(), "access_token")

	// Providers that always issue an expiry reject credentials without one.
	w = f.do(t, http.MethodPut, "/api/v1/connections/twitch", "alice", gin.H{"access_token": "tok"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPut, "/api/v1/connections/discord", "alice", gin.H{"access_token": "tok", "expires_in": 60})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	cred, err := f.vault.Resolve(context.Background(), "alice", domain.ProviderYouTube)
	require.NoError(t, err)
	assert.Equal(t, "ya29.secret", cred.AccessToken)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, f.vault.Store(context.Background(), &domain.Credential{UserID: "alice", Provider: domain.ProviderTwitch, AccessToken: "old", ExpiresAt: &past}))
	w = f.do(t, http.MethodGet, "/api/v1/connections/twitch", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(domain.CredentialExpired), decode(t, w)["status"])

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/v1/connections/youtube", "alice", nil).Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/v1/connections/youtube", "alice", nil).Code)

	w = f.do(t, http.MethodGet, "/api/v1/connections/youtube", "alice", nil)
	assert.Equal(t, string(domain.CredentialMissing), decode(t, w)["status"])

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/v1/connections", "", nil).Code)
}
