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
	"spacegate/internal/core/ports"
	"spacegate/internal/core/services"
	httphandlers "spacegate/internal/handlers/http"
	"spacegate/internal/infrastructure/distributed"
	"spacegate/internal/infrastructure/middleware"
	"spacegate/internal/infrastructure/monitoring"
	"spacegate/internal/infrastructure/providers"
	repositories "spacegate/internal/infrastructure/repositories"
	feed "spacegate/internal/infrastructure/signal"
	"spacegate/pkg/circuitbreaker"
	"spacegate/pkg/config"
	"spacegate/pkg/logger"
	"spacegate/pkg/secrets"
	"spacegate/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
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

func main() {
	startTime := time.Now()
	cfg, cfgPath := loadConfig()

	zapLogger, err := logger.New(cfg.Logging.Level)
	if err != nil {
		zapLogger = zap.NewExample()
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()
	if cfgPath == "" {
		log.Warn("no configuration file found, using defaults")
	} else {
		log.Infow("configuration loaded", "path", cfgPath)
	}

	instanceID := cfg.Server.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	tracingCfg := tracing.DefaultConfig()
	tracingCfg.Enabled = cfg.Tracing.Enabled
	tracingCfg.ServiceName = "spacegate-gatekeeper"
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := monitoring.NewPrometheusCollector(registry)

	// Token vault
	var sealer ports.TokenSealer
	if cfg.Vault.EncryptionKey != "" {
		s, err := secrets.NewSealer(cfg.Vault.EncryptionKey, "spacegate/provider-tokens")
		if err != nil {
			log.Fatalw("invalid vault encryption key", "error", err)
		}
		sealer = s
	} else {
		log.Warn("vault.encryption_key is empty, provider tokens are stored unencrypted")
	}
	vault := services.NewTokenVault(repoFactory.CredentialRepository(), sealer, services.DefaultTokenVaultConfig(), log)

	// Providers
	breakerCfg := circuitbreaker.DefaultConfig()
	breakerCfg.FailureThreshold = cfg.Breaker.FailureThreshold
	breakerCfg.Timeout = cfg.Breaker.Timeout
	breakerCfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
		log.Warnw("provider circuit breaker changed state", "name", name, "from", from, "to", to)
		collector.RecordBreakerState(name, from, to)
	}

	identities := providers.NewIdentityCache(cfg.Gatekeeper.IdentityCacheTTL)
	health := monitoring.NewHealthChecker()

	var verifiers []ports.ProviderVerifier
	var fetchers []ports.IdentityFetcher

	youtube, err := providers.NewYouTube(providers.YouTubeConfig{
		ClientConfig: providers.ClientConfig{
			BaseURL:           cfg.Providers.YouTube.APIBaseURL,
			Timeout:           cfg.Gatekeeper.ProviderTimeout,
			RequestsPerSecond: cfg.Providers.YouTube.RequestsPerSecond,
			Breaker:           breakerCfg,
		},
		APIKey: cfg.Providers.YouTube.APIKey,
	}, vault, identities, collector, log)
	if err != nil {
		log.Fatalw("failed to create youtube client", "error", err)
	}
	verifiers = append(verifiers, youtube)
	fetchers = append(fetchers, youtube)
	health.AddBreakerCheck(youtube.Breaker())

	if cfg.Providers.Twitch.ClientID != "" {
		var appTokens *providers.AppTokenCache
		if cfg.Providers.Twitch.ClientSecret != "" {
			appTokens = providers.NewAppTokenCache(
				cfg.Providers.Twitch.ClientID,
				cfg.Providers.Twitch.ClientSecret,
				cfg.Providers.Twitch.TokenURL,
				&http.Client{Timeout: cfg.Gatekeeper.ProviderTimeout},
			)
		}
		twitch, err := providers.NewTwitch(providers.TwitchConfig{
			ClientConfig: providers.ClientConfig{
				BaseURL:           cfg.Providers.Twitch.APIBaseURL,
				Timeout:           cfg.Gatekeeper.ProviderTimeout,
				RequestsPerSecond: cfg.Providers.Twitch.RequestsPerSecond,
				Breaker:           breakerCfg,
			},
			ClientID: cfg.Providers.Twitch.ClientID,
		}, vault, identities, appTokens, collector, log)
		if err != nil {
			log.Fatalw("failed to create twitch client", "error", err)
		}
		verifiers = append(verifiers, twitch)
		fetchers = append(fetchers, twitch)
		health.AddBreakerCheck(twitch.Breaker())
	} else {
		log.Warn("providers.twitch.client_id is empty, twitch rules will deny every join")
	}

	// Gatekeeper services
	metadata := services.NewMetadataCache(repoFactory.MetadataRepository(), fetchers, collector,
		services.MetadataCacheConfig{TTL: cfg.Gatekeeper.MetadataTTL}, log)
	evaluator := services.NewAdmissionEvaluator(vault, verifiers, services.AdmissionConfig{
		EnforceBlocklistWithoutAllowlist: cfg.Gatekeeper.EnforceBlocklistWithoutAllowlist,
	}, log)

	// Participation events go over Redis when other instances and the feed
	// binary can see them, otherwise through an in-process hub whose feed is
	// served from this binary.
	var publisher ports.EventPublisher
	var localHub *distributed.LocalHub
	if client := repoFactory.RedisClient(); client != nil {
		publisher = distributed.NewEventBus(client, instanceID, log)
		health.AddRedisCheck(client, 2*time.Second)
	} else {
		localHub = distributed.NewLocalHub(instanceID, log)
		publisher = localHub
	}

	ledger := services.NewParticipationLedger(repoFactory.SpaceRepository(), repoFactory.ParticipantRepository(),
		evaluator, publisher, collector, services.LedgerConfig{
			ExpirationWindow: cfg.ExpirationWindow(),
			InstanceID:       instanceID,
		}, log)
	spaceService := services.NewSpaceService(repoFactory.SpaceRepository(), log)
	summarizer := services.NewGatekeeperSummarizer(vault, metadata, log)
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, repoFactory.SpaceRepository())

	// HTTP
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.RequestIDMiddleware(),
		middleware.RequestLoggerMiddleware(logger.NewContextLogger(zapLogger)),
		middleware.TracingMiddleware(),
		middleware.ErrorHandlerMiddleware(log),
		middleware.NewHTTPRateLimitMiddleware(cfg),
	)

	httphandlers.NewSpaceHandler(spaceService, ledger, summarizer, log).SetupRoutes(router, authService)
	httphandlers.NewConnectionHandler(vault, log).SetupRoutes(router, authService)

	var feedServer *feed.FeedServer
	if localHub != nil {
		feedServer = feed.NewFeedServer(authService, repoFactory.ParticipantRepository(), feed.FeedConfig{
			PingInterval:         cfg.Feed.PingInterval,
			PongTimeout:          cfg.Feed.PongTimeout,
			AllowedOrigins:       cfg.Auth.AllowedOrigins,
			ConnectionsPerMinute: wsConnectionsPerMinute(cfg),
			MaxConcurrent:        cfg.RateLimiting.WebSocket.MaxConcurrent,
			MaxMessageSize:       cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
		}, log)
		go func() {
			err := localHub.Subscribe(ctx, func(event *domain.ParticipationEvent) error {
				err := feedServer.Dispatch(event)
				collector.SetFeedConnections(feedServer.ConnectionCount())
				return err
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Errorw("local event hub stopped", "error", err)
			}
		}()
		router.GET("/ws", gin.WrapF(feedServer.HandleWebSocket))
		log.Info("serving participation feed in-process on /ws")
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})
	router.GET("/ready", func(c *gin.Context) {
		checkCtx, checkCancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer checkCancel()

		status := health.CheckAll(checkCtx)
		code := http.StatusOK
		if status.Status == monitoring.StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
		log.Info("prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting gatekeeper server", "address", cfg.Server.Address, "instance_id", instanceID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if feedServer != nil {
		feedServer.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}
	cancel()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracing", "error", err)
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}
	log.Info("gatekeeper server stopped")
}

func wsConnectionsPerMinute(cfg *config.Config) int {
	if !cfg.RateLimiting.Enabled {
		return 0
	}
	return cfg.RateLimiting.WebSocket.ConnectionsPerMinute
}
