package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
service:
  host: "0.0.0.0"
  port: 9090
mqtt:
  broker:
    host: "broker.example.com"
    port: 1883
engine:
  max_devices: 500
  model_path: "/tmp/models"
influxdb:
  enabled: true
  url: "http://influx:8086"
  token: "test-token"
  bucket: "telemetry"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Port != 9090 {
		t.Errorf("Service.Port = %d, want %d", cfg.Service.Port, 9090)
	}

	if cfg.MQTT.Broker.Host != "broker.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.example.com")
	}

	if cfg.Engine.MaxDevices != 500 {
		t.Errorf("Engine.MaxDevices = %d, want %d", cfg.Engine.MaxDevices, 500)
	}

	if !cfg.InfluxDB.Enabled {
		t.Error("InfluxDB.Enabled = false, want true")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_DefaultsPreserved(t *testing.T) {
	// A minimal file must not clobber defaults of untouched sections.
	content := `
service:
  port: 8081
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Engine.MaxDevices != 10000 {
		t.Errorf("Engine.MaxDevices = %d, want default 10000", cfg.Engine.MaxDevices)
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want default 1883", cfg.MQTT.Broker.Port)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SERVICE_PORT", "8088")
	t.Setenv("DEVICE_MODEL_PATH", "/custom/models")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	if cfg.Service.Port != 8088 {
		t.Errorf("Service.Port = %d, want 8088", cfg.Service.Port)
	}

	if cfg.Engine.ModelPath != "/custom/models" {
		t.Errorf("Engine.ModelPath = %q, want %q", cfg.Engine.ModelPath, "/custom/models")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return defaultConfig()
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid service port low",
			mutate:  func(c *Config) { c.Service.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid service port high",
			mutate:  func(c *Config) { c.Service.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "invalid broker port",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = -1 },
			wantErr: true,
		},
		{
			name:    "zero max devices",
			mutate:  func(c *Config) { c.Engine.MaxDevices = 0 },
			wantErr: true,
		},
		{
			name:    "empty model path",
			mutate:  func(c *Config) { c.Engine.ModelPath = "" },
			wantErr: true,
		},
		{
			name:    "zero stats interval",
			mutate:  func(c *Config) { c.Engine.StatsInterval = 0 },
			wantErr: true,
		},
		{
			name: "influx enabled without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = ""
			},
			wantErr: true,
		},
		{
			name: "influx enabled without bucket",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.Bucket = ""
			},
			wantErr: true,
		},
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

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		Service: ServiceConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Engine: EngineConfig{StatsInterval: 5},
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

	if got := cfg.GetStatsInterval().Seconds(); got != 5 {
		t.Errorf("GetStatsInterval() = %v, want 5", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("MQTT_BROKER_HOST", "mqtt.example.com")
	t.Setenv("MQTT_BROKER_PORT", "8883")
	t.Setenv("MQTT_USE_TLS", "true")
	t.Setenv("MQTT_USERNAME", "testuser")
	t.Setenv("MQTT_PASSWORD", "testpass")
	t.Setenv("MAX_DEVICES_PER_INSTANCE", "250")
	t.Setenv("DEVICE_MODEL_PATH", "/data/models")
	t.Setenv("INFLUXDB_URL", "http://influx:8086")
	t.Setenv("INFLUXDB_TOKEN", "secret-token")
	t.Setenv("INFLUXDB_ORG", "test-org")
	t.Setenv("INFLUXDB_BUCKET", "test-bucket")
	t.Setenv("LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}

	if !cfg.MQTT.Broker.TLS {
		t.Error("MQTT.Broker.TLS = false, want true")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.Engine.MaxDevices != 250 {
		t.Errorf("Engine.MaxDevices = %d, want 250", cfg.Engine.MaxDevices)
	}

	if cfg.Engine.ModelPath != "/data/models" {
		t.Errorf("Engine.ModelPath = %q, want %q", cfg.Engine.ModelPath, "/data/models")
	}

	if !cfg.InfluxDB.Enabled {
		t.Error("InfluxDB.Enabled = false, want true after INFLUXDB_URL set")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}

	if cfg.InfluxDB.Org != "test-org" {
		t.Errorf("InfluxDB.Org = %q, want %q", cfg.InfluxDB.Org, "test-org")
	}

	if cfg.InfluxDB.Bucket != "test-bucket" {
		t.Errorf("InfluxDB.Bucket = %q, want %q", cfg.InfluxDB.Bucket, "test-bucket")
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"TRUE", true},
		{"yes", true},
		{"on", true},
		{" true ", true},
		{"0", false},
		{"false", false},
		{"no", false},
		{"", false},
		{"garbage", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseBool(tt.input); got != tt.want {
				t.Errorf("parseBool(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Service.Port != 8080 {
		t.Errorf("defaultConfig Service.Port = %d, want 8080", cfg.Service.Port)
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.Engine.MaxDevices != 10000 {
		t.Errorf("defaultConfig Engine.MaxDevices = %d, want 10000", cfg.Engine.MaxDevices)
	}

	if cfg.Engine.ModelPath == "" {
		t.Error("defaultConfig should have non-empty Engine.ModelPath")
	}

	if cfg.InfluxDB.Enabled {
		t.Error("defaultConfig InfluxDB.Enabled = true, want false")
	}
}
