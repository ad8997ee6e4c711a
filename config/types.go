package config

// Config represents the complete configuration structure
type Config struct {
	Freshdesk   FreshdeskConfig `mapstructure:"freshdesk"`
	StartDate   string          `mapstructure:"start_date"`
	Streams     []string        `mapstructure:"streams"`
	Filters     FilterConfig    `mapstructure:"filters"`
	Concurrency int             `mapstructure:"concurrency"`
	PageSize    int             `mapstructure:"page_size"`
	State       StateConfig     `mapstructure:"state"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Update      UpdateConfig    `mapstructure:"update"`
}

// FreshdeskConfig holds Freshdesk API connection details
type FreshdeskConfig struct {
	Domain string `mapstructure:"domain"`
	APIKey string `mapstructure:"api_key"`
	// RequestTimeout is kept raw so that numbers and strings both decode and
	// the client can reject anything that is not a positive number.
	RequestTimeout string `mapstructure:"request_timeout"`
	UserAgent      string `mapstructure:"user_agent"`
}

// FilterConfig maps a stream name to a record filter expression
type FilterConfig map[string]string

// StateConfig selects where bookmarks are persisted
type StateConfig struct {
	Backend string      `mapstructure:"backend"`
	Path    string      `mapstructure:"path"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds the Redis connection used by the redis state backend
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// RateLimitConfig controls the proactive limiter of every stream client
type RateLimitConfig struct {
	Limit           int     `mapstructure:"limit"`
	IntervalSeconds float64 `mapstructure:"interval_seconds"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
}

// UpdateConfig points the update command at the release repository
type UpdateConfig struct {
	Repository string `mapstructure:"repository"`
}
