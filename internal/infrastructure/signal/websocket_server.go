package signal

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"
	"spacegate/internal/core/services"
	"spacegate/pkg/tracing"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const clientSendBuffer = 16

type FeedConfig struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
	// AllowedOrigins is matched against the Origin header. Empty allows any
	// origin.
	AllowedOrigins []string
	// ConnectionsPerMinute limits upgrades per client IP. Zero disables it.
	ConnectionsPerMinute int
	MaxConcurrent        int
	MaxMessageSize       int64
}

// FeedMessage is what dashboard clients receive.
type FeedMessage struct {
	Type      string         `json:"type"`
	SpaceID   domain.SpaceID `json:"space_id"`
	UserID    domain.UserID  `json:"user_id,omitempty"`
	Count     int            `json:"count"`
	Timestamp time.Time      `json:"timestamp"`
}

type feedClient struct {
	spaceID domain.SpaceID
	userID  domain.UserID

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// trySend reports false when the buffer was full; the client is then closed.
func (c *feedClient) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		c.closed = true
		close(c.send)
		return false
	}
}

func (c *feedClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// FeedServer relays participation events to space owners over websockets.
// Only the owner of a space may watch it.
type FeedServer struct {
	auth         services.AuthService
	participants ports.ParticipantRepository
	cfg          FeedConfig
	upgrader     websocket.Upgrader

	mu      sync.RWMutex
	clients map[domain.SpaceID]map[*feedClient]struct{}

	limiters *ipLimiters
	slots    chan struct{}

	logger *zap.SugaredLogger
}

func NewFeedServer(auth services.AuthService, participants ports.ParticipantRepository, cfg FeedConfig, logger *zap.SugaredLogger) *FeedServer {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongTimeout <= cfg.PingInterval {
		cfg.PongTimeout = 2 * cfg.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	s := &FeedServer{
		auth:         auth,
		participants: participants,
		cfg:          cfg,
		clients:      make(map[domain.SpaceID]map[*feedClient]struct{}),
		logger:       logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	if cfg.ConnectionsPerMinute > 0 {
		s.limiters = newIPLimiters(rate.Every(time.Minute/time.Duration(cfg.ConnectionsPerMinute)), cfg.ConnectionsPerMinute)
	}
	if cfg.MaxConcurrent > 0 {
		s.slots = make(chan struct{}, cfg.MaxConcurrent)
	}
	return s
}

func (s *FeedServer) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// HandleWebSocket serves GET /ws?space_id=...; the bearer token comes from
// the Authorization header or the access_token query parameter.
func (s *FeedServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.limiters != nil && !s.limiters.allow(clientIP(r)) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	if s.slots != nil {
		select {
		case s.slots <- struct{}{}:
			defer func() { <-s.slots }()
		default:
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}
	}

	spaceID := domain.SpaceID(r.URL.Query().Get("space_id"))
	if spaceID == "" {
		http.Error(w, "space_id is required", http.StatusBadRequest)
		return
	}

	claims, err := s.auth.ValidateToken(bearerToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := s.auth.CheckSpaceOwner(r.Context(), claims.UserID, spaceID); err != nil {
		status := http.StatusForbidden
		if errors.Is(err, domain.ErrSpaceNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	client := &feedClient{
		spaceID: spaceID,
		userID:  claims.UserID,
		send:    make(chan []byte, clientSendBuffer),
	}
	s.register(client)
	s.logger.Infow("feed client connected", "space_id", spaceID, "user_id", claims.UserID)

	s.sendSnapshot(r.Context(), client)

	go s.writePump(conn, client)
	s.readPump(conn, client)

	s.unregister(client)
	s.logger.Infow("feed client disconnected", "space_id", spaceID, "user_id", claims.UserID)
}

// readPump only watches for close and pong frames; clients do not send
// commands.
func (s *FeedServer) readPump(conn *websocket.Conn, client *feedClient) {
	defer conn.Close()

	if s.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(s.cfg.MaxMessageSize)
	}
	conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debugw("feed read error", "space_id", client.spaceID, "error", err)
			}
			return
		}
	}
}

func (s *FeedServer) writePump(conn *websocket.Conn, client *feedClient) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *FeedServer) sendSnapshot(ctx context.Context, client *feedClient) {
	count, err := s.participants.Count(ctx, client.spaceID)
	if err != nil {
		s.logger.Warnw("failed to count participants", "space_id", client.spaceID, "error", err)
		return
	}
	s.enqueue(client, FeedMessage{
		Type:      "snapshot",
		SpaceID:   client.spaceID,
		Count:     count,
		Timestamp: time.Now(),
	})
}

// Dispatch is the event handler wired to the event source.
func (s *FeedServer) Dispatch(event *domain.ParticipationEvent) error {
	_, span := tracing.TraceWebSocketMessage(context.Background(), string(event.Type), string(event.SpaceID))
	defer span.End()

	msg := FeedMessage{
		Type:      string(event.Type),
		SpaceID:   event.SpaceID,
		UserID:    event.UserID,
		Count:     event.Count,
		Timestamp: event.Timestamp,
	}

	s.mu.RLock()
	targets := make([]*feedClient, 0, len(s.clients[event.SpaceID]))
	for c := range s.clients[event.SpaceID] {
		targets = append(targets, c)
	}
	s.mu.RUnlock()

	for _, c := range targets {
		s.enqueue(c, msg)
	}
	return nil
}

// enqueue never blocks; a client whose buffer is full is disconnected.
func (s *FeedServer) enqueue(client *feedClient, msg FeedMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warnw("failed to marshal feed message", "error", err)
		return
	}

	if !client.trySend(data) {
		s.logger.Warnw("dropping slow feed client", "space_id", client.spaceID, "user_id", client.userID)
	}
}

func (s *FeedServer) register(client *feedClient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.clients[client.spaceID]
	if !ok {
		set = make(map[*feedClient]struct{})
		s.clients[client.spaceID] = set
	}
	set[client] = struct{}{}
}

func (s *FeedServer) unregister(client *feedClient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set, ok := s.clients[client.spaceID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(s.clients, client.spaceID)
		}
	}
	client.close()
}

// Close disconnects every client.
func (s *FeedServer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, set := range s.clients {
		for c := range set {
			c.close()
		}
	}
	s.clients = make(map[domain.SpaceID]map[*feedClient]struct{})
}

func (s *FeedServer) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, set := range s.clients {
		n += len(set)
	}
	return n
}

func (s *FeedServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": s.ConnectionCount(),
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("access_token")
}

type ipLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newIPLimiters(r rate.Limit, burst int) *ipLimiters {
	return &ipLimiters{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

func (l *ipLimiters) allow(ip string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[ip] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
