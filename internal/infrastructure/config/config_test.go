package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes YAML content to a temporary config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// validConfig returns a configuration that passes validation.
func validConfig() *Config {
	return defaultConfig()
}

// =============================================================================
// Load Tests
// =============================================================================

func TestLoad_ValidConfig(t *testing.T) {
	content := `
database:
  driver: "sqlite3"
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "broker.local"
    port: 8883
    tls: true
    client_id: "test-client"
  auth:
    username: "device"
    password: "secret"
  qos: 1
  subscriptions:
    - "device/+/readings/sendReading"
api:
  host: "0.0.0.0"
  port: 8080
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if !cfg.MQTT.Broker.TLS {
		t.Error("MQTT.Broker.TLS = false, want true")
	}
	if cfg.MQTT.Broker.TLSInsecureSkipVerify {
		t.Error("MQTT.Broker.TLSInsecureSkipVerify should default to false")
	}
	if len(cfg.MQTT.Subscriptions) != 1 || cfg.MQTT.Subscriptions[0] != "device/+/readings/sendReading" {
		t.Errorf("MQTT.Subscriptions = %v, want single readings filter", cfg.MQTT.Subscriptions)
	}
	// Values absent from the file keep their defaults.
	if cfg.MQTT.Debug.Topic != "common/debug" {
		t.Errorf("MQTT.Debug.Topic = %q, want %q", cfg.MQTT.Debug.Topic, "common/debug")
	}
	if cfg.Database.CommandTimeout != 180 {
		t.Errorf("Database.CommandTimeout = %d, want 180", cfg.Database.CommandTimeout)
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
database:
  driver: "postgres"
  dsn: ""
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for empty postgres dsn, got nil")
	}
	if !strings.Contains(err.Error(), "database.dsn") {
		t.Errorf("Load() error = %v, want mention of database.dsn", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	content := `
mqtt:
  broker:
    host: "from-file"
`
	t.Setenv("DEVICESERVER_MQTT_HOST", "from-env")

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MQTT.Broker.Host != "from-env" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "from-env")
	}
}

// =============================================================================
// Validate Tests
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing sqlite path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name: "postgres with dsn",
			mutate: func(c *Config) {
				c.Database.Driver = DriverPostgres
				c.Database.DSN = "postgres://localhost/devices?sslmode=disable"
			},
			wantErr: false,
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "mysql" },
			wantErr: true,
		},
		{
			name:    "zero command timeout",
			mutate:  func(c *Config) { c.Database.CommandTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "missing broker host",
			mutate:  func(c *Config) { c.MQTT.Broker.Host = "" },
			wantErr: true,
		},
		{
			name:    "invalid broker port",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 0 },
			wantErr: true,
		},
		{
			name:    "empty subscription",
			mutate:  func(c *Config) { c.MQTT.Subscriptions = []string{"device/#", " "} },
			wantErr: true,
		},
		{
			name:    "debug enabled without topic",
			mutate:  func(c *Config) { c.MQTT.Debug.Topic = "" },
			wantErr: true,
		},
		{
			name: "debug disabled without topic",
			mutate: func(c *Config) {
				c.MQTT.Debug.Enabled = false
				c.MQTT.Debug.Topic = ""
			},
			wantErr: false,
		},
		{
			name:    "invalid api port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "api tls without cert",
			mutate:  func(c *Config) { c.API.TLS.Enabled = true },
			wantErr: true,
		},
		{
			name:    "negative buffer",
			mutate:  func(c *Config) { c.Dispatch.BufferSize = -1 },
			wantErr: true,
		},
		{
			name:    "influx enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
		{
			name:    "kafka enabled without brokers",
			mutate:  func(c *Config) { c.Kafka.Enabled = true },
			wantErr: true,
		},
		{
			name:    "JWT secret too short",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: true,
		},
		{
			name:    "JWT secret empty disables auth",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.MQTT.QoS = 5
	cfg.API.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	for _, want := range []string{"mqtt.qos", "api.port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %q, want it to mention %q", err, want)
		}
	}
}

// =============================================================================
// Accessor Tests
// =============================================================================

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Database: DatabaseConfig{CommandTimeout: 180},
	}

	if got := cfg.API.Timeouts.ReadTimeout(); got != 30*time.Second {
		t.Errorf("ReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.API.Timeouts.WriteTimeout(); got != 45*time.Second {
		t.Errorf("WriteTimeout() = %v, want 45s", got)
	}
	if got := cfg.API.Timeouts.IdleTimeout(); got != 60*time.Second {
		t.Errorf("IdleTimeout() = %v, want 60s", got)
	}
	if got := cfg.GetCommandTimeout(); got != 3*time.Minute {
		t.Errorf("GetCommandTimeout() = %v, want 3m", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("DEVICESERVER_DATABASE_PATH", "/custom/path.db")
	t.Setenv("DEVICESERVER_MQTT_HOST", "mqtt.example.com")
	t.Setenv("DEVICESERVER_MQTT_PORT", "8883")
	t.Setenv("DEVICESERVER_MQTT_USERNAME", "testuser")
	t.Setenv("DEVICESERVER_MQTT_PASSWORD", "testpass")
	t.Setenv("DEVICESERVER_MQTT_TLS_INSECURE_SKIP_VERIFY", "true")
	t.Setenv("DEVICESERVER_MQTT_SUBSCRIPTIONS", "device/#,common/#")
	t.Setenv("DEVICESERVER_API_HOST", "192.168.1.1")
	t.Setenv("DEVICESERVER_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("DEVICESERVER_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("DEVICESERVER_JWT_SECRET", "jwt-secret")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if !cfg.MQTT.Broker.TLSInsecureSkipVerify {
		t.Error("MQTT.Broker.TLSInsecureSkipVerify = false, want true")
	}
	if len(cfg.MQTT.Subscriptions) != 2 || cfg.MQTT.Subscriptions[1] != "common/#" {
		t.Errorf("MQTT.Subscriptions = %v, want [device/# common/#]", cfg.MQTT.Subscriptions)
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("Kafka.Brokers = %v, want 2 entries", cfg.Kafka.Brokers)
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
}

func TestApplyEnvOverrides_InvalidValue(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("DEVICESERVER_API_PORT", "not-a-number")

	if err := applyEnvOverrides(cfg); err == nil {
		t.Error("applyEnvOverrides() expected error for non-numeric port")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig should validate, got %v", err)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("defaultConfig Database.Driver = %q, want %q", cfg.Database.Driver, DriverSQLite)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if !cfg.MQTT.Debug.Enabled {
		t.Error("defaultConfig should enable the debug heartbeat")
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
}
