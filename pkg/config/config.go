package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		InstanceID      string        `yaml:"instance_id"`
	} `yaml:"server"`

	// Feed is the websocket participation feed served by cmd/feed.
	Feed struct {
		Address         string        `yaml:"address"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		PongTimeout     time.Duration `yaml:"pong_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"feed"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret      string        `yaml:"jwt_secret"`
		AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"auth"`

	Gatekeeper struct {
		MetadataTTL      time.Duration `yaml:"metadata_ttl"`
		ProviderTimeout  time.Duration `yaml:"provider_timeout"`
		IdentityCacheTTL time.Duration `yaml:"identity_cache_ttl"`
		// EnforceBlocklistWithoutAllowlist activates email rules that carry
		// only a block list. Off keeps such rules inert.
		EnforceBlocklistWithoutAllowlist bool `yaml:"enforce_blocklist_without_allowlist"`
	} `yaml:"gatekeeper"`

	Spaces struct {
		ExpirationHours int `yaml:"expiration_hours"` // 0 = unlimited
	} `yaml:"spaces"`

	Providers struct {
		YouTube struct {
			APIBaseURL        string  `yaml:"api_base_url"`
			APIKey            string  `yaml:"api_key"`
			RequestsPerSecond float64 `yaml:"requests_per_second"`
		} `yaml:"youtube"`
		Twitch struct {
			APIBaseURL        string  `yaml:"api_base_url"`
			TokenURL          string  `yaml:"token_url"`
			ClientID          string  `yaml:"client_id"`
			ClientSecret      string  `yaml:"client_secret"`
			RequestsPerSecond float64 `yaml:"requests_per_second"`
		} `yaml:"twitch"`
	} `yaml:"providers"`

	Vault struct {
		// EncryptionKey is a base64 master key; empty stores tokens unencrypted.
		EncryptionKey string `yaml:"encryption_key"`
	} `yaml:"vault"`

	Breaker struct {
		FailureThreshold uint32        `yaml:"failure_threshold"`
		Timeout          time.Duration `yaml:"timeout"`
	} `yaml:"breaker"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`

		WebSocket struct {
			ConnectionsPerMinute int   `yaml:"connections_per_minute"`
			MaxConcurrent        int   `yaml:"max_concurrent_connections"`
			MaxMessageSizeBytes  int64 `yaml:"max_message_size_bytes"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

// ExpirationWindow converts spaces.expiration_hours; zero means spaces never expire.
func (c *Config) ExpirationWindow() time.Duration {
	return time.Duration(c.Spaces.ExpirationHours) * time.Hour
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Feed
	if c.Feed.Address == "" {
		return fmt.Errorf("feed.address must not be empty")
	}
	if c.Feed.PingInterval <= 0 {
		return fmt.Errorf("feed.ping_interval must be > 0")
	}
	if c.Feed.PongTimeout <= c.Feed.PingInterval {
		return fmt.Errorf("feed.pong_timeout must be > feed.ping_interval")
	}

	// Monitoring
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}

	// Gatekeeper
	if c.Gatekeeper.MetadataTTL <= 0 {
		return fmt.Errorf("gatekeeper.metadata_ttl must be > 0")
	}
	if c.Gatekeeper.ProviderTimeout <= 0 {
		return fmt.Errorf("gatekeeper.provider_timeout must be > 0")
	}
	if c.Gatekeeper.IdentityCacheTTL < 0 {
		return fmt.Errorf("gatekeeper.identity_cache_ttl must be >= 0")
	}

	// Spaces
	if c.Spaces.ExpirationHours < 0 {
		return fmt.Errorf("spaces.expiration_hours must be >= 0")
	}

	// Providers
	if c.Providers.YouTube.APIBaseURL == "" {
		return fmt.Errorf("providers.youtube.api_base_url must not be empty")
	}
	if c.Providers.Twitch.APIBaseURL == "" {
		return fmt.Errorf("providers.twitch.api_base_url must not be empty")
	}
	if c.Providers.YouTube.RequestsPerSecond < 0 || c.Providers.Twitch.RequestsPerSecond < 0 {
		return fmt.Errorf("providers.*.requests_per_second must be >= 0")
	}
	if c.Providers.Twitch.ClientSecret != "" && c.Providers.Twitch.ClientID == "" {
		return fmt.Errorf("providers.twitch.client_id must be set when client_secret is set")
	}

	// Breaker
	if c.Breaker.FailureThreshold == 0 {
		return fmt.Errorf("breaker.failure_threshold must be > 0")
	}
	if c.Breaker.Timeout <= 0 {
		return fmt.Errorf("breaker.timeout must be > 0")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.websocket.connections_per_minute must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_concurrent_connections must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxMessageSizeBytes < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_message_size_bytes must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Feed.Address = ":8081"
	cfg.Feed.PingInterval = 30 * time.Second
	cfg.Feed.PongTimeout = 60 * time.Second
	cfg.Feed.ShutdownTimeout = 30 * time.Second

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.AccessTokenTTL = 15 * time.Minute
	cfg.Auth.AllowedOrigins = []string{"*"}

	cfg.Gatekeeper.MetadataTTL = 24 * time.Hour
	cfg.Gatekeeper.ProviderTimeout = 8 * time.Second
	cfg.Gatekeeper.IdentityCacheTTL = 5 * time.Minute
	cfg.Gatekeeper.EnforceBlocklistWithoutAllowlist = false

	cfg.Spaces.ExpirationHours = 0

	cfg.Providers.YouTube.APIBaseURL = "https://www.googleapis.com/youtube/v3"
	cfg.Providers.YouTube.RequestsPerSecond = 20
	cfg.Providers.Twitch.APIBaseURL = "https://api.twitch.tv/helix"
	cfg.Providers.Twitch.TokenURL = "https://id.twitch.tv/oauth2/token"
	cfg.Providers.Twitch.RequestsPerSecond = 13 // 800 points per minute

	cfg.Breaker.FailureThreshold = 5
	cfg.Breaker.Timeout = 30 * time.Second

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 60
	cfg.RateLimiting.WebSocket.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 4 * 1024

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("SPACEGATE_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if addr := os.Getenv("SPACEGATE_FEED_ADDRESS"); addr != "" {
		c.Feed.Address = addr
	}
	if level := os.Getenv("SPACEGATE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("SPACEGATE_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if addr := os.Getenv("SPACEGATE_REDIS_ADDRESS"); addr != "" {
		c.Redis.Enabled = true
		c.Redis.Address = addr
	}
	if pw := os.Getenv("SPACEGATE_REDIS_PASSWORD"); pw != "" {
		c.Redis.Password = pw
	}
	if key := os.Getenv("SPACEGATE_VAULT_ENCRYPTION_KEY"); key != "" {
		c.Vault.EncryptionKey = key
	}
	if key := os.Getenv("SPACEGATE_YOUTUBE_API_KEY"); key != "" {
		c.Providers.YouTube.APIKey = key
	}
	if id := os.Getenv("SPACEGATE_TWITCH_CLIENT_ID"); id != "" {
		c.Providers.Twitch.ClientID = id
	}
	if secret := os.Getenv("SPACEGATE_TWITCH_CLIENT_SECRET"); secret != "" {
		c.Providers.Twitch.ClientSecret = secret
	}
	if hours := os.Getenv("SPACEGATE_SPACE_EXPIRATION_HOURS"); hours != "" {
		if h, err := strconv.Atoi(hours); err == nil {
			c.Spaces.ExpirationHours = h
		}
	}
}
