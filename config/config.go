package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. TAP_FRESHDESK_FRESHDESK_API_KEY
const EnvPrefix = "TAP_FRESHDESK"

// DefaultRepository is the GitHub repository releases are fetched from
const DefaultRepository = "s0up4200/tap-freshdesk"

// envKeys can be supplied through the environment without a config entry
var envKeys = []string{
	"freshdesk.domain",
	"freshdesk.api_key",
	"freshdesk.request_timeout",
	"freshdesk.user_agent",
	"start_date",
	"state.backend",
	"state.path",
	"state.redis.addr",
	"state.redis.password",
	"logging.level",
}

// Load loads the configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config.{yaml,json,toml} in standard locations
		v.SetConfigName("config")

		// Check current directory first
		v.AddConfigPath(".")

		// Check home directory
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".tap-freshdesk"))
		}

		// Check /etc
		v.AddConfigPath("/etc/tap-freshdesk/")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("concurrency", 2)
	v.SetDefault("page_size", 100)

	// Rate limit defaults, one call every two seconds per client
	v.SetDefault("rate_limit.limit", 1)
	v.SetDefault("rate_limit.interval_seconds", 2)

	// State defaults
	v.SetDefault("state.backend", "file")
	v.SetDefault("state.path", "state.json")
	v.SetDefault("state.redis.addr", "localhost:6379")
	v.SetDefault("state.redis.key", "tap-freshdesk:state")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)

	v.SetDefault("update.repository", DefaultRepository)
}

// validate checks if the configuration is valid
func validate(cfg *Config) error {
	if cfg.Freshdesk.Domain == "" {
		return fmt.Errorf("freshdesk.domain is required")
	}

	if cfg.Freshdesk.APIKey == "" || cfg.Freshdesk.APIKey == "your-api-key-here" {
		return fmt.Errorf("freshdesk.api_key must be set to a valid API key")
	}

	if cfg.StartDate != "" {
		if _, err := time.Parse(time.RFC3339, cfg.StartDate); err != nil {
			return fmt.Errorf("invalid start_date: %s (must be RFC3339)", cfg.StartDate)
		}
	}

	if cfg.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}

	if cfg.PageSize < 1 || cfg.PageSize > 100 {
		return fmt.Errorf("page_size must be between 1 and 100")
	}

	if cfg.RateLimit.Limit < 1 || cfg.RateLimit.IntervalSeconds <= 0 {
		return fmt.Errorf("rate_limit.limit and rate_limit.interval_seconds must be positive")
	}

	switch cfg.State.Backend {
	case "file":
		if cfg.State.Path == "" {
			return fmt.Errorf("state.path is required for the file backend")
		}
	case "redis":
		if cfg.State.Redis.Addr == "" {
			return fmt.Errorf("state.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid state.backend: %s (must be 'file' or 'redis')", cfg.State.Backend)
	}

	// Validate logging level
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"console": true,
		"json":    true,
	}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	return nil
}

// RateInterval returns the configured limiter window
func (c *RateLimitConfig) RateInterval() time.Duration {
	return time.Duration(c.IntervalSeconds * float64(time.Second))
}
