package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// validJWTSecret meets the 32-character minimum requirement.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
ingest:
  topic_pattern: "site/{siteId}/dev/{deviceId}"
  device_policy: "auto_provision"
api:
  host: "0.0.0.0"
  port: 8080
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.Broker.ClientID != "test-client" {
		t.Errorf("MQTT.Broker.ClientID = %q, want %q", cfg.MQTT.Broker.ClientID, "test-client")
	}
	if cfg.Ingest.TopicPattern != "site/{siteId}/dev/{deviceId}" {
		t.Errorf("Ingest.TopicPattern = %q", cfg.Ingest.TopicPattern)
	}
	if cfg.Ingest.DevicePolicy != PolicyAutoProvision {
		t.Errorf("Ingest.DevicePolicy = %q, want %q", cfg.Ingest.DevicePolicy, PolicyAutoProvision)
	}
	// Untouched sections keep their defaults.
	if cfg.Ingest.DevicePlaceholder != "deviceId" {
		t.Errorf("Ingest.DevicePlaceholder = %q, want deviceId", cfg.Ingest.DevicePlaceholder)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	t.Setenv("CLIMATE_JWT_SECRET", validJWTSecret)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Ingest.TopicPattern != DefaultTopicPattern {
		t.Errorf("Ingest.TopicPattern = %q, want %q", cfg.Ingest.TopicPattern, DefaultTopicPattern)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
ingest:
  device_policy: "sometimes"
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for unknown policy, got nil")
	}
	if !strings.Contains(err.Error(), "ingest.device_policy") {
		t.Errorf("Load() error = %v, want mention of ingest.device_policy", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Security.JWT.Secret = validJWTSecret
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, true},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"mqtt enabled without host", func(c *Config) { c.MQTT.Broker.Host = "" }, true},
		{"mqtt disabled without host", func(c *Config) { c.MQTT.Enabled = false; c.MQTT.Broker.Host = "" }, false},
		{"nats enabled without url", func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" }, true},
		{"empty topic pattern", func(c *Config) { c.Ingest.TopicPattern = "" }, true},
		{"pattern without device placeholder", func(c *Config) { c.Ingest.TopicPattern = "home/{homeId}/reading" }, true},
		{"unknown policy", func(c *Config) { c.Ingest.DevicePolicy = "maybe" }, true},
		{"zero in-flight", func(c *Config) { c.Ingest.MaxInFlight = 0 }, true},
		{"invalid port low", func(c *Config) { c.API.Port = 0 }, true},
		{"invalid port high", func(c *Config) { c.API.Port = 70000 }, true},
		{"missing JWT secret", func(c *Config) { c.Security.JWT.Secret = "" }, true},
		{"JWT secret too short", func(c *Config) { c.Security.JWT.Secret = "short" }, true},
		{"JWT secret not needed without API", func(c *Config) { c.API.Enabled = false; c.Security.JWT.Secret = "" }, false},
		{"influx enabled without bucket", func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.URL = "http://influx:8086" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Database.Path = ""
	cfg.API.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	for _, want := range []string{"database.path", "api.port", "security.jwt.secret"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %v, want mention of %s", err, want)
		}
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("CLIMATE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("CLIMATE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("CLIMATE_MQTT_PORT", "8883")
	t.Setenv("CLIMATE_MQTT_USERNAME", "testuser")
	t.Setenv("CLIMATE_MQTT_PASSWORD", "testpass")
	t.Setenv("CLIMATE_NATS_URL", "nats://bus:4222")
	t.Setenv("CLIMATE_TOPIC_PATTERN", "h/{deviceId}")
	t.Setenv("CLIMATE_DEVICE_POLICY", PolicyAutoProvision)
	t.Setenv("CLIMATE_API_PORT", "9090")
	t.Setenv("CLIMATE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("CLIMATE_JWT_SECRET", "jwt-secret")
	t.Setenv("CLIMATE_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Broker.Port", cfg.MQTT.Broker.Port, 8883},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"NATS.URL", cfg.NATS.URL, "nats://bus:4222"},
		{"NATS.Enabled", cfg.NATS.Enabled, true},
		{"Ingest.TopicPattern", cfg.Ingest.TopicPattern, "h/{deviceId}"},
		{"Ingest.DevicePolicy", cfg.Ingest.DevicePolicy, PolicyAutoProvision},
		{"API.Port", cfg.API.Port, 9090},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Security.JWT.Secret", cfg.Security.JWT.Secret, "jwt-secret"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Ingest.DevicePolicy != PolicyRequireProvisioned {
		t.Errorf("defaultConfig Ingest.DevicePolicy = %q, want %q", cfg.Ingest.DevicePolicy, PolicyRequireProvisioned)
	}
}
