package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  mode: memory
server:
  port: 9090
notification:
  max_retries: 5
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want default", cfg.Server.Host)
	}
	if cfg.Notification.MaxRetries != 5 {
		t.Errorf("Notification.MaxRetries = %d, want 5", cfg.Notification.MaxRetries)
	}
	if cfg.Notification.RetryDelay != time.Minute {
		t.Errorf("Notification.RetryDelay = %v, want default 1m", cfg.Notification.RetryDelay)
	}
	if cfg.Notification.BatchSize != 10 {
		t.Errorf("Notification.BatchSize = %d, want default 10", cfg.Notification.BatchSize)
	}
	if cfg.Alerting.DefaultCooldownMinutes != 30 {
		t.Errorf("Alerting.DefaultCooldownMinutes = %d, want default 30", cfg.Alerting.DefaultCooldownMinutes)
	}
	if cfg.Providers.InApp.DefaultExpirationDays != 30 {
		t.Errorf("InApp.DefaultExpirationDays = %d, want default 30", cfg.Providers.InApp.DefaultExpirationDays)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load() should fail for missing file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if !cfg.Storage.UseMemory() {
		t.Error("Default() should use memory storage")
	}
	if cfg.Kafka.Topic != "vigil-metrics" {
		t.Errorf("Kafka.Topic = %q, want vigil-metrics", cfg.Kafka.Topic)
	}
}

func TestRoutingConfig_ForSeverity(t *testing.T) {
	cfg := &RoutingConfig{
		Default:  Route{Channels: []string{"in_app"}},
		Critical: Route{Channels: []string{"email", "slack"}, Recipients: []string{"oncall@example.com"}},
	}

	critical := cfg.ForSeverity("critical")
	if len(critical.Channels) != 2 {
		t.Errorf("critical route channels = %v, want [email slack]", critical.Channels)
	}

	low := cfg.ForSeverity("low")
	if len(low.Channels) != 1 || low.Channels[0] != "in_app" {
		t.Errorf("low route = %v, want default in_app", low.Channels)
	}
}

func TestServerConfig_Address(t *testing.T) {
	c := &ServerConfig{Host: "127.0.0.1", Port: 8080}
	if got := c.Address(); got != "127.0.0.1:8080" {
		t.Errorf("Address() = %q, want 127.0.0.1:8080", got)
	}
}
