package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *ClientConfig) Validate() error {
	if c.Transport.URL == "" {
		return errors.New("transport.url is required")
	}
	if c.Transport.ConnectTimeout <= 0 {
		return errors.New("transport.connect_timeout must be positive")
	}
	if c.Transport.HandshakeTimeout <= 0 {
		return errors.New("transport.handshake_timeout must be positive")
	}
	if c.Transport.BufferSize < 1 {
		return errors.New("transport.buffer_size must be >= 1")
	}

	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >= 1")
	}
	if c.Retry.BaseDelay <= 0 {
		return errors.New("retry.base_delay must be positive")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry.max_delay (%v) cannot be less than base_delay (%v)", c.Retry.MaxDelay, c.Retry.BaseDelay)
	}

	if c.Queue.MaxSize < 1 {
		return errors.New("queue.max_size must be >= 1")
	}
	if c.Queue.MaxRetries < 1 {
		return errors.New("queue.max_retries must be >= 1")
	}
	if c.Queue.Retention <= 0 {
		return errors.New("queue.retention must be positive")
	}

	if c.Health.Interval <= 0 {
		return errors.New("health.interval must be positive")
	}
	if c.Health.Timeout <= 0 {
		return errors.New("health.timeout must be positive")
	}
	if c.Health.UnhealthyThreshold < 1 {
		return errors.New("health.unhealthy_threshold must be >= 1")
	}

	if c.Auth.RefreshThreshold <= 0 {
		return errors.New("auth.refresh_threshold must be positive")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
		}
	}

	return nil
}
