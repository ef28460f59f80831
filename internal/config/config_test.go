package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collector.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const validYAML = `
instance:
  id: collector-1
  env: test

realtime:
  site_url: https://dashboard.example.com
  token: tok-abc
  heartbeat_interval: 15s

database:
  postgres:
    host: localhost
    name: chainwatch
    user: collector
    password: secret

writer:
  batch_size: 50

health:
  port: 9090
`

func TestLoad(t *testing.T) {
	path := writeTempFile(t, validYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Instance.ID != "collector-1" {
		t.Errorf("instance.id = %q, want collector-1", cfg.Instance.ID)
	}
	if cfg.Realtime.SiteURL != "https://dashboard.example.com" {
		t.Errorf("realtime.site_url = %q", cfg.Realtime.SiteURL)
	}
	if cfg.Realtime.HeartbeatInterval != 15*time.Second {
		t.Errorf("heartbeat_interval = %v, want 15s", cfg.Realtime.HeartbeatInterval)
	}
	if cfg.Writer.BatchSize != 50 {
		t.Errorf("writer.batch_size = %d, want 50", cfg.Writer.BatchSize)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("CW_TOKEN", "env-token")
	t.Setenv("CW_DB_PASSWORD", "env-secret")

	yaml := strings.ReplaceAll(validYAML, "token: tok-abc", "token: ${CW_TOKEN}")
	yaml = strings.ReplaceAll(yaml, "password: secret", "password: ${CW_DB_PASSWORD}")
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Realtime.Token != "env-token" {
		t.Errorf("realtime.token = %q, want env-token", cfg.Realtime.Token)
	}
	if cfg.Database.Postgres.Password != "env-secret" {
		t.Errorf("database password = %q, want env-secret", cfg.Database.Postgres.Password)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, validYAML)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}

	if cfg.Realtime.Device != DefaultDevice {
		t.Errorf("device = %q, want %q", cfg.Realtime.Device, DefaultDevice)
	}
	if cfg.Realtime.ReconnectBaseDelay != DefaultReconnectBaseDelay {
		t.Errorf("reconnect_base_delay = %v, want %v", cfg.Realtime.ReconnectBaseDelay, DefaultReconnectBaseDelay)
	}
	if cfg.Database.Postgres.Port != DefaultDBPort {
		t.Errorf("db port = %d, want %d", cfg.Database.Postgres.Port, DefaultDBPort)
	}
	if cfg.Database.Postgres.SSLMode != DefaultDBSSLMode {
		t.Errorf("ssl_mode = %q, want %q", cfg.Database.Postgres.SSLMode, DefaultDBSSLMode)
	}
	if cfg.Writer.FlushInterval != DefaultFlushInterval {
		t.Errorf("flush_interval = %v, want %v", cfg.Writer.FlushInterval, DefaultFlushInterval)
	}
	if cfg.Health.Path != DefaultHealthPath {
		t.Errorf("health.path = %q, want %q", cfg.Health.Path, DefaultHealthPath)
	}
	// Explicit values survive defaulting.
	if cfg.Realtime.HeartbeatInterval != 15*time.Second {
		t.Errorf("heartbeat_interval = %v, want 15s", cfg.Realtime.HeartbeatInterval)
	}
	if cfg.Health.Port != 9090 {
		t.Errorf("health.port = %d, want 9090", cfg.Health.Port)
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, validYAML)
	if _, err := LoadAndValidate(path); err != nil {
		t.Fatalf("LoadAndValidate: %v", err)
	}
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CollectorConfig)
		wantSub string
	}{
		{"missing instance id", func(c *CollectorConfig) { c.Instance.ID = "" }, "instance.id"},
		{"missing endpoint", func(c *CollectorConfig) { c.Realtime.URL = ""; c.Realtime.SiteURL = "" }, "realtime.url"},
		{"missing token", func(c *CollectorConfig) { c.Realtime.Token = "" }, "realtime.token"},
		{"backoff inverted", func(c *CollectorConfig) {
			c.Realtime.ReconnectBaseDelay = time.Minute
			c.Realtime.ReconnectMaxDelay = time.Second
		}, "reconnect_base_delay"},
		{"missing db host", func(c *CollectorConfig) { c.Database.Postgres.Host = "" }, "database.postgres.host"},
		{"missing db password", func(c *CollectorConfig) { c.Database.Postgres.Password = "" }, "database.postgres.password"},
		{"min conns above max", func(c *CollectorConfig) { c.Database.Postgres.MinConns = 20 }, "min_conns"},
		{"zero batch size", func(c *CollectorConfig) { c.Writer.BatchSize = -1 }, "writer.batch_size"},
		{"bad health port", func(c *CollectorConfig) { c.Health.Port = 70000 }, "health.port"},
	}

	path := writeTempFile(t, validYAML)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadWithDefaults(path)
			if err != nil {
				t.Fatalf("LoadWithDefaults: %v", err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantSub)
			}
		})
	}
}
