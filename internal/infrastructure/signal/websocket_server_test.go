package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/services"
	"spacegate/internal/infrastructure/repositories/memory"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type feedFixture struct {
	server *FeedServer
	http   *httptest.Server
	auth   services.AuthService
}

func newFeedFixture(t *testing.T, cfg FeedConfig) *feedFixture {
	t.Helper()
	ctx := context.Background()

	spaces := memory.NewMemorySpaceRepository()
	require.NoError(t, spaces.Create(ctx, &domain.Space{ID: "s1", OwnerID: "owner", Status: domain.SpaceStatusActive}))

	participants := memory.NewMemoryParticipantRepository()
	require.NoError(t, participants.Insert(ctx, &domain.Participant{SpaceID: "s1", UserID: "alice", JoinedAt: time.Now()}, 0))

	auth := services.NewAuthService("feed-secret", time.Hour, spaces)
	server := NewFeedServer(auth, participants, cfg, zap.NewNop().Sugar())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.HandleWebSocket)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		server.Close()
		ts.Close()
	})

	return &feedFixture{server: server, http: ts, auth: auth}
}

func (f *feedFixture) url(spaceID string) string {
	return "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws?space_id=" + spaceID
}

func (f *feedFixture) token(t *testing.T, user domain.UserID) string {
	t.Helper()
	token, err := f.auth.GenerateToken(domain.Applicant{UserID: user}, string(user))
	require.NoError(t, err)
	return token
}

func (f *feedFixture) dial(t *testing.T, user domain.UserID, spaceID string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+f.token(t, user))
	return websocket.DefaultDialer.Dial(f.url(spaceID), header)
}

func TestFeed_OwnerReceivesSnapshotAndEvents(t *testing.T) {
	f := newFeedFixture(t, FeedConfig{})

	conn, _, err := f.dial(t, "owner", "s1")
	require.NoError(t, err)
	defer conn.Close()

	var snapshot FeedMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, "snapshot", snapshot.Type)
	assert.Equal(t, 1, snapshot.Count)

	require.Eventually(t, func() bool { return f.server.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.server.Dispatch(&domain.ParticipationEvent{
		Type:      domain.EventParticipantJoined,
		SpaceID:   "s1",
		UserID:    "bob",
		Count:     2,
		Timestamp: time.Now(),
	}))
	// Events for other spaces are not relayed.
	require.NoError(t, f.server.Dispatch(&domain.ParticipationEvent{Type: domain.EventParticipantJoined, SpaceID: "s2"}))

	var msg FeedMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, string(domain.EventParticipantJoined), msg.Type)
	assert.Equal(t, domain.UserID("bob"), msg.UserID)
	assert.Equal(t, 2, msg.Count)
}

func TestFeed_AccessTokenQueryParameter(t *testing.T) {
	f := newFeedFixture(t, FeedConfig{})

	conn, _, err := websocket.DefaultDialer.Dial(f.url("s1")+"&access_token="+f.token(t, "owner"), nil)
	require.NoError(t, err)
	conn.Close()
}

func TestFeed_Rejections(t *testing.T) {
	f := newFeedFixture(t, FeedConfig{})

	tests := []struct {
		name    string
		user    domain.UserID
		spaceID string
		status  int
	}{
		{"not the owner", "alice", "s1", http.StatusForbidden},
		{"unknown space", "owner", "missing", http.StatusNotFound},
		{"no space id", "owner", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := f.dial(t, tt.user, tt.spaceID)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	_, resp, err := websocket.DefaultDialer.Dial(f.url("s1"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFeed_ConnectionRateLimit(t *testing.T) {
	f := newFeedFixture(t, FeedConfig{ConnectionsPerMinute: 1})

	conn, _, err := f.dial(t, "owner", "s1")
	require.NoError(t, err)
	defer conn.Close()

	_, resp, err := f.dial(t, "owner", "s1")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestFeed_CheckOrigin(t *testing.T) {
	s := NewFeedServer(nil, nil, FeedConfig{AllowedOrigins: []string{"https://app.example.com"}}, zap.NewNop().Sugar())

	ok := httptest.NewRequest(http.MethodGet, "/ws", nil)
	ok.Header.Set("Origin", "https://app.example.com")
	assert.True(t, s.checkOrigin(ok))

	bad := httptest.NewRequest(http.MethodGet, "/ws", nil)
	bad.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, s.checkOrigin(bad))
}
