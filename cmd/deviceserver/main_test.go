package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/device-server/internal/infrastructure/config"
	"github.com/nerrad567/device-server/internal/infrastructure/logging"
)

// writeConfig writes a config file into a temp dir and points
// DEVICESERVER_CONFIG at it for the duration of the test.
func writeConfig(t *testing.T, body string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body = strings.ReplaceAll(body, "{{dir}}", dir)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("DEVICESERVER_CONFIG", path)
	return dir
}

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("DEVICESERVER_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("error = %v, want loading config failure", err)
	}
}

func TestRun_ValidationFailure(t *testing.T) {
	writeConfig(t, `
database:
  driver: "mysql"
settings_store:
  path: "{{dir}}/settings.bolt"
`)

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "database.driver") {
		t.Errorf("run() error = %v, want database.driver validation failure", err)
	}
}

// TestRun_BrokerUnreachable verifies a failed initial connect is fatal.
func TestRun_BrokerUnreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}

	dir := writeConfig(t, `
database:
  path: "{{dir}}/deviceserver.db"
settings_store:
  path: "{{dir}}/settings.bolt"
mqtt:
  broker:
    host: "127.0.0.1"
    port: 19999
    client_id: "deviceserver-test"
logging:
  level: "error"
  format: "text"
`)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail when the broker is unreachable")
	}
	if !strings.Contains(err.Error(), "starting gateway") {
		t.Errorf("error = %v, want gateway start failure", err)
	}

	// Storage was opened and migrated before the connect attempt.
	if _, statErr := os.Stat(filepath.Join(dir, "deviceserver.db")); statErr != nil {
		t.Errorf("database file not created: %v", statErr)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("DEVICESERVER_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("DEVICESERVER_CONFIG", "/etc/deviceserver.yaml")
	if got := getConfigPath(); got != "/etc/deviceserver.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}

func TestConnectSinks_AllDisabled(t *testing.T) {
	cfg := &config.Config{}

	s, err := connectSinks(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("connectSinks() error = %v", err)
	}
	if hs := s.handlers(); len(hs) != 0 {
		t.Errorf("handlers() = %d, want none", len(hs))
	}
	s.close(logging.Discard())
}

func TestConnectSinks_KafkaHandler(t *testing.T) {
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Enabled: true, Brokers: []string{"127.0.0.1:9092"}, Topic: "device-readings"},
	}

	s, err := connectSinks(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("connectSinks() error = %v", err)
	}
	defer s.close(logging.Discard())

	hs := s.handlers()
	if len(hs) != 1 || hs[0].Name() != "kafka-forwarder" {
		t.Errorf("handlers() = %v", hs)
	}
}

func TestConnectSinks_RedisUnreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}

	cfg := &config.Config{
		Redis: config.RedisConfig{Enabled: true, Addr: "127.0.0.1:1"},
	}

	if _, err := connectSinks(context.Background(), cfg, logging.Discard()); err == nil {
		t.Error("connectSinks() expected error for unreachable Redis")
	}
}
