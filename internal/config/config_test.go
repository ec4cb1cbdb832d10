package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
transport:
  url: wss://realtime.test/ws
  fallback_url: wss://realtime.test/poll
  connect_timeout: 3s
retry:
  max_attempts: 7
queue:
  max_size: 42
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Transport.URL != "wss://realtime.test/ws" {
		t.Errorf("Transport.URL = %q, want %q", cfg.Transport.URL, "wss://realtime.test/ws")
	}
	if cfg.Transport.ConnectTimeout != 3*time.Second {
		t.Errorf("Transport.ConnectTimeout = %v, want 3s", cfg.Transport.ConnectTimeout)
	}
	if cfg.Retry.MaxAttempts != 7 {
		t.Errorf("Retry.MaxAttempts = %d, want 7", cfg.Retry.MaxAttempts)
	}
	if cfg.Queue.MaxSize != 42 {
		t.Errorf("Queue.MaxSize = %d, want 42", cfg.Queue.MaxSize)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_REALTIME_URL", "wss://env.test/ws")

	yaml := `
transport:
  url: ${TEST_REALTIME_URL}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Transport.URL != "wss://env.test/ws" {
		t.Errorf("Transport.URL = %q, want %q", cfg.Transport.URL, "wss://env.test/ws")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
transport:
  url: wss://realtime.test/ws
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Transport.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("Transport.ConnectTimeout = %v, want default %v", cfg.Transport.ConnectTimeout, DefaultConnectTimeout)
	}
	if cfg.Retry.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("Retry.MaxAttempts = %d, want default %d", cfg.Retry.MaxAttempts, DefaultMaxAttempts)
	}
	if cfg.Queue.Retention != DefaultQueueRetention {
		t.Errorf("Queue.Retention = %v, want default %v", cfg.Queue.Retention, DefaultQueueRetention)
	}
	if cfg.Health.Interval != DefaultHealthInterval {
		t.Errorf("Health.Interval = %v, want default %v", cfg.Health.Interval, DefaultHealthInterval)
	}
	if cfg.Auth.RefreshThreshold != DefaultRefreshThreshold {
		t.Errorf("Auth.RefreshThreshold = %v, want default %v", cfg.Auth.RefreshThreshold, DefaultRefreshThreshold)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
}

func TestValidate(t *testing.T) {
	valid := func() ClientConfig {
		var cfg ClientConfig
		cfg.Transport.URL = "wss://realtime.test/ws"
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*ClientConfig)
		wantErr string
	}{
		{
			name:    "missing url",
			mutate:  func(c *ClientConfig) { c.Transport.URL = "" },
			wantErr: "transport.url is required",
		},
		{
			name:    "zero connect timeout",
			mutate:  func(c *ClientConfig) { c.Transport.ConnectTimeout = 0 },
			wantErr: "transport.connect_timeout must be positive",
		},
		{
			name:    "max delay below base",
			mutate:  func(c *ClientConfig) { c.Retry.BaseDelay = 2 * time.Minute },
			wantErr: "retry.max_delay (1m0s) cannot be less than base_delay (2m0s)",
		},
		{
			name:    "zero queue size",
			mutate:  func(c *ClientConfig) { c.Queue.MaxSize = -1 },
			wantErr: "queue.max_size must be >= 1",
		},
		{
			name:    "zero health interval",
			mutate:  func(c *ClientConfig) { c.Health.Interval = -time.Second },
			wantErr: "health.interval must be positive",
		},
		{
			name: "bad metrics port",
			mutate: func(c *ClientConfig) {
				c.Metrics.Enabled = true
				c.Metrics.Port = 70000
			},
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "valid config",
			mutate:  func(c *ClientConfig) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
