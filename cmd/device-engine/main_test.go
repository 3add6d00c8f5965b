package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
// An explicitly configured path must load; there is no fallback for it.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("DEVICE_ENGINE_CONFIG")
	defer os.Setenv("DEVICE_ENGINE_CONFIG", originalEnv)

	os.Setenv("DEVICE_ENGINE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidPort verifies run fails when the config file parses but
// does not validate.
func TestRun_InvalidPort(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
service:
  host: "127.0.0.1"
  port: 99999

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883

engine:
  max_devices: 100
  model_path: "` + tmpDir + `"

influxdb:
  enabled: false

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("DEVICE_ENGINE_CONFIG")
	defer os.Setenv("DEVICE_ENGINE_CONFIG", originalEnv)
	os.Setenv("DEVICE_ENGINE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with an out-of-range service port")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("DEVICE_ENGINE_CONFIG")
	defer os.Setenv("DEVICE_ENGINE_CONFIG", originalEnv)

	os.Unsetenv("DEVICE_ENGINE_CONFIG")

	path := getConfigPath()
	if path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("DEVICE_ENGINE_CONFIG")
	defer os.Setenv("DEVICE_ENGINE_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("DEVICE_ENGINE_CONFIG", expected)

	path := getConfigPath()
	if path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestRun_SuccessfulStartupAndShutdown tests full startup with a valid
// config. Devices only dial brokers once started, so the engine comes up
// with no external services and run returns nil at context expiry.
func TestRun_SuccessfulStartupAndShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	modelDir := filepath.Join(tmpDir, "models")

	if err := os.MkdirAll(modelDir, 0750); err != nil {
		t.Fatalf("failed to create model dir: %v", err)
	}

	modelContent := `{
  "id": "startup-sensor",
  "name": "Startup Sensor",
  "protocol": "mqtt",
  "telemetry": [
    {
      "name": "temperature",
      "type": "float",
      "unit": "celsius",
      "generator": {"type": "constant", "value": 21.5}
    }
  ]
}`
	modelPath := filepath.Join(modelDir, "startup-sensor.json")
	if err := os.WriteFile(modelPath, []byte(modelContent), 0600); err != nil {
		t.Fatalf("failed to write test model: %v", err)
	}

	configContent := `
service:
  host: "127.0.0.1"
  port: 18925

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883

engine:
  max_devices: 100
  model_path: "` + modelDir + `"
  stats_interval: 1

influxdb:
  enabled: false

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("DEVICE_ENGINE_CONFIG")
	defer os.Setenv("DEVICE_ENGINE_CONFIG", originalEnv)
	os.Setenv("DEVICE_ENGINE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() returned error: %v", err)
	}
}

// TestRun_MissingModelDir verifies a nonexistent model directory is
// tolerated. Models can still arrive through the API, so the registry
// starts empty rather than failing startup.
func TestRun_MissingModelDir(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
service:
  host: "127.0.0.1"
  port: 18926

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883

engine:
  max_devices: 100
  model_path: "` + filepath.Join(tmpDir, "does-not-exist") + `"

influxdb:
  enabled: false

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("DEVICE_ENGINE_CONFIG")
	defer os.Setenv("DEVICE_ENGINE_CONFIG", originalEnv)
	os.Setenv("DEVICE_ENGINE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() returned error: %v", err)
	}
}
