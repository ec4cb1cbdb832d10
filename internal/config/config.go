package config

import "time"

// ClientConfig is the root configuration for the realtime client core.
// Every retry threshold and delay in the core comes from here, validated
// once at startup.
type ClientConfig struct {
	Transport TransportConfig `yaml:"transport"`
	Retry     RetryConfig     `yaml:"retry"`
	Queue     QueueConfig     `yaml:"queue"`
	Health    HealthConfig    `yaml:"health"`
	Auth      AuthConfig      `yaml:"auth"`
	Store     StoreConfig     `yaml:"store"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// TransportConfig holds socket transport settings.
type TransportConfig struct {
	URL              string        `yaml:"url"`
	FallbackURL      string        `yaml:"fallback_url"` // long-polling style endpoint used by the fallback strategy
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	BufferSize       int           `yaml:"buffer_size"`
}

// RetryConfig is the single source of truth for reconnection policy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Jitter      bool          `yaml:"jitter"`
}

// QueueConfig holds outbound message queue settings.
type QueueConfig struct {
	MaxSize    int           `yaml:"max_size"`
	MaxRetries int           `yaml:"max_retries"`
	Retention  time.Duration `yaml:"retention"`
}

// HealthConfig holds health-check ping settings.
type HealthConfig struct {
	Interval           time.Duration `yaml:"interval"`
	Timeout            time.Duration `yaml:"timeout"`
	UnhealthyThreshold int           `yaml:"unhealthy_threshold"`
}

// AuthConfig holds authentication and token refresh settings.
type AuthConfig struct {
	RefreshThreshold time.Duration `yaml:"refresh_threshold"`
	MaxRetries       int           `yaml:"max_retries"` // auth retries during connect, linear backoff
	RetryDelay       time.Duration `yaml:"retry_delay"`
}

// StoreConfig holds the on-device persistence settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}
