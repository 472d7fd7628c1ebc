package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("SWITCHSYNC_CONFIG")
	defer os.Setenv("SWITCHSYNC_CONFIG", originalEnv)

	os.Setenv("SWITCHSYNC_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is invalid.
func TestRun_MissingDatabasePath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
database:
  path: ""
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout

security:
  jwt:
    secret: "test-secret-for-development-only"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("SWITCHSYNC_CONFIG")
	defer os.Setenv("SWITCHSYNC_CONFIG", originalEnv)
	os.Setenv("SWITCHSYNC_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("SWITCHSYNC_CONFIG")
	defer os.Setenv("SWITCHSYNC_CONFIG", originalEnv)

	os.Unsetenv("SWITCHSYNC_CONFIG")

	path := getConfigPath()
	if path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("SWITCHSYNC_CONFIG")
	defer os.Setenv("SWITCHSYNC_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("SWITCHSYNC_CONFIG", expected)

	path := getConfigPath()
	if path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestRun_StartupAndShutdown tests full startup with external transports
// disabled, shutting down cleanly when the context expires.
func TestRun_StartupAndShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dbPath := filepath.Join(tmpDir, "test.db")

	configContent := `
database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

api:
  host: "127.0.0.1"
  port: 18234
  timeouts:
    read: 30
    write: 60
    idle: 120

websocket:
  path: "/ws"
  max_message_size: 8192
  ping_interval: 5
  pong_timeout: 10

logging:
  level: error
  format: text
  output: stdout

security:
  jwt:
    secret: "test-secret-for-development-only"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("SWITCHSYNC_CONFIG")
	defer os.Setenv("SWITCHSYNC_CONFIG", originalEnv)
	os.Setenv("SWITCHSYNC_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v, want clean shutdown", err)
	}
}
