package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config is the root configuration structure for the device server.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	API           APIConfig           `yaml:"api"`
	WebSocket     WebSocketConfig     `yaml:"websocket"`
	Dispatch      DispatchConfig      `yaml:"dispatch"`
	SettingsStore SettingsStoreConfig `yaml:"settings_store"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Redis         RedisConfig         `yaml:"redis"`
	Logging       LoggingConfig       `yaml:"logging"`
	Security      SecurityConfig      `yaml:"security"`
}

// DatabaseConfig contains relational database settings.
//
// Driver selects between the embedded SQLite store (Path) and an external
// PostgreSQL server (DSN).
type DatabaseConfig struct {
	Driver         string `yaml:"driver" env:"DEVICESERVER_DATABASE_DRIVER"`
	Path           string `yaml:"path" env:"DEVICESERVER_DATABASE_PATH"`
	DSN            string `yaml:"dsn" env:"DEVICESERVER_DATABASE_DSN"`
	WALMode        bool   `yaml:"wal_mode"`
	BusyTimeout    int    `yaml:"busy_timeout"`
	CommandTimeout int    `yaml:"command_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker        MQTTBrokerConfig    `yaml:"broker"`
	Auth          MQTTAuthConfig      `yaml:"auth"`
	QoS           int                 `yaml:"qos"`
	Subscriptions []string            `yaml:"subscriptions" env:"DEVICESERVER_MQTT_SUBSCRIPTIONS"`
	Debug         MQTTDebugConfig     `yaml:"debug"`
	Reconnect     MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" env:"DEVICESERVER_MQTT_HOST"`
	Port     int    `yaml:"port" env:"DEVICESERVER_MQTT_PORT"`
	TLS      bool   `yaml:"tls" env:"DEVICESERVER_MQTT_TLS"`
	ClientID string `yaml:"client_id" env:"DEVICESERVER_MQTT_CLIENT_ID"`

	// TLSInsecureSkipVerify disables broker certificate verification.
	// Only for brokers with self-signed certificates on a trusted network.
	TLSInsecureSkipVerify bool `yaml:"tls_insecure_skip_verify" env:"DEVICESERVER_MQTT_TLS_INSECURE_SKIP_VERIFY"`

	// CAFile is an optional PEM bundle used to verify the broker certificate.
	CAFile string `yaml:"ca_file"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" env:"DEVICESERVER_MQTT_USERNAME"`
	Password string `yaml:"password" env:"DEVICESERVER_MQTT_PASSWORD"`
}

// MQTTDebugConfig controls the debug heartbeat published before every outbound message.
type MQTTDebugConfig struct {
	Enabled bool   `yaml:"enabled" env:"DEVICESERVER_MQTT_DEBUG_ENABLED"`
	Topic   string `yaml:"topic"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host" env:"DEVICESERVER_API_HOST"`
	Port     int              `yaml:"port" env:"DEVICESERVER_API_PORT"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
// An empty AllowedOrigins list allows any origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains live feed settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// DispatchConfig contains inbound message queue settings.
type DispatchConfig struct {
	// BufferSize is the number of inbound messages held before the broker
	// callback blocks.
	BufferSize int `yaml:"buffer_size"`
}

// SettingsStoreConfig contains the bbolt settings snapshot store location.
type SettingsStoreConfig struct {
	Path string `yaml:"path" env:"DEVICESERVER_SETTINGS_STORE_PATH"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" env:"DEVICESERVER_INFLUXDB_ENABLED"`
	URL           string `yaml:"url" env:"DEVICESERVER_INFLUXDB_URL"`
	Token         string `yaml:"token" env:"DEVICESERVER_INFLUXDB_TOKEN"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// KafkaConfig contains settings for forwarding readings to Kafka.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled" env:"DEVICESERVER_KAFKA_ENABLED"`
	Brokers []string `yaml:"brokers" env:"DEVICESERVER_KAFKA_BROKERS"`
	Topic   string   `yaml:"topic"`
	Async   bool     `yaml:"async"`
}

// RedisConfig contains settings for the latest-reading cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env:"DEVICESERVER_REDIS_ENABLED"`
	Addr     string `yaml:"addr" env:"DEVICESERVER_REDIS_ADDR"`
	Password string `yaml:"password" env:"DEVICESERVER_REDIS_PASSWORD"`
	DB       int    `yaml:"db"`
	TTL      int    `yaml:"ttl"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"DEVICESERVER_LOG_LEVEL"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
// An empty Secret disables bearer authentication on the API.
type JWTConfig struct {
	Secret string `yaml:"secret" env:"DEVICESERVER_JWT_SECRET"`
	Issuer string `yaml:"issuer"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DEVICESERVER_SECTION_KEY
// For example: DEVICESERVER_MQTT_HOST, DEVICESERVER_DATABASE_DSN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:         DriverSQLite,
			Path:           "./data/deviceserver.db",
			WALMode:        true,
			BusyTimeout:    5,
			CommandTimeout: 180,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "deviceserver",
			},
			QoS: 1,
			Subscriptions: []string{
				"device/+/readings/sendReading",
				"device/+/settings/changeSettings",
			},
			Debug: MQTTDebugConfig{
				Enabled: true,
				Topic:   "common/debug",
			},
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Dispatch: DispatchConfig{
			BufferSize: 256,
		},
		SettingsStore: SettingsStoreConfig{
			Path: "./data/settings.bolt",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Kafka: KafkaConfig{
			Topic: "device-readings",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  3600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies DEVICESERVER_* environment variables declared
// through `env` struct tags. Unset variables leave the file value untouched.
func applyEnvOverrides(cfg *Config) error {
	return env.Parse(cfg)
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite3 driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be %q or %q", DriverSQLite, DriverPostgres))
	}
	if c.Database.CommandTimeout <= 0 {
		errs = append(errs, "database.command_timeout must be positive")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	for i, sub := range c.MQTT.Subscriptions {
		if strings.TrimSpace(sub) == "" {
			errs = append(errs, fmt.Sprintf("mqtt.subscriptions[%d] cannot be empty", i))
		}
	}
	if c.MQTT.Debug.Enabled && c.MQTT.Debug.Topic == "" {
		errs = append(errs, "mqtt.debug.topic is required when debug is enabled")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls.cert_file and api.tls.key_file are required when TLS is enabled")
	}

	if c.Dispatch.BufferSize < 0 {
		errs = append(errs, "dispatch.buffer_size cannot be negative")
	}

	if c.SettingsStore.Path == "" {
		errs = append(errs, "settings_store.path is required")
	}

	// Optional sinks are only checked when switched on.
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		errs = append(errs, "kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required when redis is enabled")
	}

	// A short HMAC secret makes forged tokens practical.
	const minJWTSecretLength = 32
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters when set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReadTimeout returns the API read timeout as a Duration.
func (t APITimeoutConfig) ReadTimeout() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// WriteTimeout returns the API write timeout as a Duration.
func (t APITimeoutConfig) WriteTimeout() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// IdleTimeout returns the API idle timeout as a Duration.
func (t APITimeoutConfig) IdleTimeout() time.Duration {
	return time.Duration(t.Idle) * time.Second
}

// GetCommandTimeout returns the database command timeout as a Duration.
func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Database.CommandTimeout) * time.Second
}
