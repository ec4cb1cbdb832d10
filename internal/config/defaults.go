package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultConnectTimeout     = 10 * time.Second
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultBufferSize         = 256
	DefaultMaxAttempts        = 5
	DefaultBaseDelay          = 1 * time.Second
	DefaultMaxDelay           = 60 * time.Second
	DefaultQueueMaxSize       = 500
	DefaultQueueMaxRetries    = 3
	DefaultQueueRetention     = 24 * time.Hour
	DefaultHealthInterval     = 15 * time.Second
	DefaultHealthTimeout      = 10 * time.Second
	DefaultUnhealthyThreshold = 3
	DefaultRefreshThreshold   = 5 * time.Minute
	DefaultAuthMaxRetries     = 3
	DefaultAuthRetryDelay     = 2 * time.Second
	DefaultStorePath          = "./realtime-state"
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
)

func (c *ClientConfig) applyDefaults() {
	// Transport defaults
	if c.Transport.ConnectTimeout == 0 {
		c.Transport.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Transport.HandshakeTimeout == 0 {
		c.Transport.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = DefaultWriteTimeout
	}
	if c.Transport.BufferSize == 0 {
		c.Transport.BufferSize = DefaultBufferSize
	}

	// Retry defaults
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = DefaultBaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = DefaultMaxDelay
	}

	// Queue defaults
	if c.Queue.MaxSize == 0 {
		c.Queue.MaxSize = DefaultQueueMaxSize
	}
	if c.Queue.MaxRetries == 0 {
		c.Queue.MaxRetries = DefaultQueueMaxRetries
	}
	if c.Queue.Retention == 0 {
		c.Queue.Retention = DefaultQueueRetention
	}

	// Health defaults
	if c.Health.Interval == 0 {
		c.Health.Interval = DefaultHealthInterval
	}
	if c.Health.Timeout == 0 {
		c.Health.Timeout = DefaultHealthTimeout
	}
	if c.Health.UnhealthyThreshold == 0 {
		c.Health.UnhealthyThreshold = DefaultUnhealthyThreshold
	}

	// Auth defaults
	if c.Auth.RefreshThreshold == 0 {
		c.Auth.RefreshThreshold = DefaultRefreshThreshold
	}
	if c.Auth.MaxRetries == 0 {
		c.Auth.MaxRetries = DefaultAuthMaxRetries
	}
	if c.Auth.RetryDelay == 0 {
		c.Auth.RetryDelay = DefaultAuthRetryDelay
	}

	// Store defaults
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
