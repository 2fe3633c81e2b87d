package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Events    EventsConfig    `yaml:"events"`
	Auth      AuthConfig      `yaml:"auth"`
	Provider  ProviderConfig  `yaml:"provider"`
	Shortener ShortenerConfig `yaml:"shortener"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`

	// BaseURL is the public base URL of this instance, used to build
	// web-version, confirmation and unsubscribe links.
	BaseURL string `yaml:"base_url"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type EventsConfig struct {
	// Path to the bbolt file holding the raw webhook event audit log.
	Path string `yaml:"path"`
}

type AuthConfig struct {
	// AdminTokenHash is a bcrypt hash of the admin bearer token.
	// Empty disables the auth gate (all admin requests allowed).
	AdminTokenHash string `yaml:"admin_token_hash"`
}

type ProviderConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	WebhookSecret string        `yaml:"webhook_secret"`
	BatchSize     int           `yaml:"batch_size"`
	BatchDelay    time.Duration `yaml:"batch_delay"`
}

type ShortenerConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// Enabled reports whether link shortening is configured at all.
func (c ShortenerConfig) Enabled() bool {
	return c.APIKey != ""
}

type RateLimitConfig struct {
	Subscribe LimitConfig `yaml:"subscribe"`
	TestSend  LimitConfig `yaml:"test_send"`
}

type LimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8090"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/letterflow/app.db"
	}
	if cfg.Events.Path == "" {
		cfg.Events.Path = "/var/lib/letterflow/events.db"
	}
	if cfg.Provider.BatchSize == 0 {
		cfg.Provider.BatchSize = 100
	}
	if cfg.Provider.BatchDelay == 0 {
		cfg.Provider.BatchDelay = time.Second
	}
	if cfg.Shortener.Timeout == 0 {
		cfg.Shortener.Timeout = 10 * time.Second
	}
	if cfg.RateLimit.Subscribe.MaxRequests == 0 {
		cfg.RateLimit.Subscribe.MaxRequests = 5
	}
	if cfg.RateLimit.Subscribe.Window == 0 {
		cfg.RateLimit.Subscribe.Window = time.Hour
	}
	if cfg.RateLimit.TestSend.MaxRequests == 0 {
		cfg.RateLimit.TestSend.MaxRequests = 10
	}
	if cfg.RateLimit.TestSend.Window == 0 {
		cfg.RateLimit.TestSend.Window = time.Hour
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if cfg.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("provider.api_key is required")
	}
	if cfg.Provider.BatchSize < 1 {
		return fmt.Errorf("provider.batch_size must be positive")
	}
	return nil
}
