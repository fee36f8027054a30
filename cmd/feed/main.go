package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/services"
	"spacegate/internal/infrastructure/distributed"
	"spacegate/internal/infrastructure/monitoring"
	repositories "spacegate/internal/infrastructure/repositories"
	feed "spacegate/internal/infrastructure/signal"
	"spacegate/pkg/config"
	"spacegate/pkg/logger"
	"spacegate/pkg/retry"
	"spacegate/pkg/tracing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var configPaths = []string{
	"configs/config.yaml",
	"./configs/config.yaml",
	"/etc/spacegate/config.yaml",
	"config.yaml",
}

func loadConfig() (*config.Config, string) {
	for _, path := range configPaths {
		if cfg, err := config.Load(path); err == nil {
			return cfg, path
		}
	}
	return config.DefaultConfig(), ""
}

// The feed binary relays participation events published by gatekeeper
// instances over Redis. Without Redis the gatekeeper serves /ws itself.
func main() {
	cfg, cfgPath := loadConfig()

	zapLogger, err := logger.New(cfg.Logging.Level)
	if err != nil {
		zapLogger = zap.NewExample()
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()
	if cfgPath != "" {
		log.Infow("configuration loaded", "path", cfgPath)
	}

	tracingCfg := tracing.DefaultConfig()
	tracingCfg.Enabled = cfg.Tracing.Enabled
	tracingCfg.ServiceName = "spacegate-feed"
	tracingCfg.JaegerURL = cfg.Tracing.JaegerURL
	tracingCfg.Environment = cfg.Tracing.Environment
	tracingCfg.SampleRate = cfg.Tracing.SampleRate
	tp, err := tracing.Init(tracingCfg)
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repoFactory, err := repositories.NewRepositoryFactory(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	client := repoFactory.RedisClient()
	if client == nil {
		log.Fatal("the feed server requires redis; enable redis or use the gatekeeper's in-process /ws")
	}

	registry := prometheus.NewRegistry()
	collector := monitoring.NewPrometheusCollector(registry)
	health := monitoring.NewHealthChecker()
	health.AddRedisCheck(client, 2*time.Second)

	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, repoFactory.SpaceRepository())

	connectionsPerMinute := 0
	if cfg.RateLimiting.Enabled {
		connectionsPerMinute = cfg.RateLimiting.WebSocket.ConnectionsPerMinute
	}
	server := feed.NewFeedServer(authService, repoFactory.ParticipantRepository(), feed.FeedConfig{
		PingInterval:         cfg.Feed.PingInterval,
		PongTimeout:          cfg.Feed.PongTimeout,
		AllowedOrigins:       cfg.Auth.AllowedOrigins,
		ConnectionsPerMinute: connectionsPerMinute,
		MaxConcurrent:        cfg.RateLimiting.WebSocket.MaxConcurrent,
		MaxMessageSize:       cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
	}, log)

	instanceID := cfg.Server.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	bus := distributed.NewEventBus(client, instanceID, log)
	go subscribe(ctx, bus, server, collector, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.HandleWebSocket)
	mux.HandleFunc("/health", server.HealthCheck)
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !health.IsReady(r.Context()) {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if cfg.Monitoring.PrometheusEnabled {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	srv := &http.Server{
		Addr:              cfg.Feed.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting feed server", "address", cfg.Feed.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("feed server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	cancel()
	server.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Feed.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during feed shutdown", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracing", "error", err)
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}
	log.Info("feed server stopped")
}

// subscribe keeps the bus subscription alive, backing off between attempts
// while Redis is unreachable.
func subscribe(ctx context.Context, source distributed.EventSource, server *feed.FeedServer, collector *monitoring.PrometheusCollector, log *zap.SugaredLogger) {
	handler := func(event *domain.ParticipationEvent) error {
		err := server.Dispatch(event)
		collector.SetFeedConnections(server.ConnectionCount())
		return err
	}

	backoff := retry.DefaultConfig()
	backoff.MaxAttempts = 10
	backoff.NonRetryableErrors = []error{context.Canceled}

	for ctx.Err() == nil {
		err := retry.Retry(ctx, backoff, func(ctx context.Context) error {
			return source.Subscribe(ctx, handler)
		})
		if ctx.Err() != nil {
			return
		}
		log.Warnw("event subscription lost, resubscribing", "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff.MaxDelay):
		}
	}
}
