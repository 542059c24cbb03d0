// Package config loads device client settings from the environment
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name, e.g. DEVICE_AUTH_CLIENT_ID
const Prefix = "DEVICE_AUTH"

// Store backends
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config holds client configuration loaded from environment variables
type Config struct {
	ClientID     string `envconfig:"CLIENT_ID" required:"true"`
	ClientSecret string `envconfig:"CLIENT_SECRET" required:"true"`
	Scope        string `envconfig:"SCOPE" default:"https://www.googleapis.com/auth/calendar.readonly"`

	AuthHost  string `envconfig:"AUTH_HOST" default:"accounts.google.com"`
	AuthPort  int    `envconfig:"AUTH_PORT" default:"443"`
	AuthPath  string `envconfig:"AUTH_PATH" default:"/o/oauth2/device/code"`
	TokenHost string `envconfig:"TOKEN_HOST" default:"www.googleapis.com"`
	TokenPort int    `envconfig:"TOKEN_PORT" default:"443"`
	TokenPath string `envconfig:"TOKEN_PATH" default:"/oauth2/v4/token"`
	GrantType string `envconfig:"GRANT_TYPE" default:"http://oauth.net/grant_type/device/1.0"`

	ReadTimeout time.Duration `envconfig:"READ_TIMEOUT" default:"1500ms"`
	DialTimeout time.Duration `envconfig:"DIAL_TIMEOUT" default:"10s"`

	StoreBackend  string `envconfig:"STORE" default:"file"`
	StorePath     string `envconfig:"STORE_PATH" default:"credentials.img"`
	RedisURL      string `envconfig:"REDIS_URL"`
	RedisKey      string `envconfig:"REDIS_KEY" default:"device-auth:credentials"`
	StoreOffset   int64  `envconfig:"STORE_OFFSET" default:"0"`
	StoreCapacity int64  `envconfig:"STORE_CAPACITY" default:"512"`

	StatusAddr string `envconfig:"STATUS_ADDR"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
}

// Load reads the configuration from the environment and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings envconfig cannot express
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreFile, StoreSQLite:
		if c.StorePath == "" {
			return fmt.Errorf("store %q requires %s_STORE_PATH", c.StoreBackend, Prefix)
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("store %q requires %s_REDIS_URL", c.StoreBackend, Prefix)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive, got %v", c.ReadTimeout)
	}
	if c.StoreOffset < 0 {
		return fmt.Errorf("store offset must not be negative, got %d", c.StoreOffset)
	}
	return nil
}
