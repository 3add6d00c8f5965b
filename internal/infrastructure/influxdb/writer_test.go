package influxdb

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/iotix/device-engine/internal/infrastructure/config"
)

// testConfig returns a configuration for the local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "iotix-dev-token",
		Org:           "iotix",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1, // 1 second for faster test feedback
	}
}

// skipIfNoInfluxDB skips the test if InfluxDB is not running.
func skipIfNoInfluxDB(t *testing.T) {
	t.Helper()
	cfg := testConfig()
	writer, err := Connect(cfg)
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}
	writer.Close()
}

// ====== Disabled Writer ======

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := Connect(cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestNewDisabled(t *testing.T) {
	w := NewDisabled()

	if w.Enabled() {
		t.Error("Enabled() = true for disabled writer, want false")
	}
	if w.IsConnected() {
		t.Error("IsConnected() = true for disabled writer, want false")
	}

	// Every write must be a safe no-op.
	w.WriteTelemetry("d1", "m1", "g1", SourceSimulated, map[string]any{"v": 1.0})
	w.WriteDeviceEvent("d1", "m1", "", SourceSimulated, "started", nil)
	w.WriteEngineStats(1, 1, 0, 2, 3, 4)
	w.WriteConnectionMetric("d1", "mqtt", SourceSimulated, true, 12.5)
	w.WritePoint("custom", map[string]string{"a": "b"}, map[string]any{"v": 1})
	w.Flush()

	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}

	if err := w.HealthCheck(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Errorf("HealthCheck() error = %v, want ErrDisabled", err)
	}
}

// ====== Field Coercion ======

func TestTelemetryFields(t *testing.T) {
	data := map[string]any{
		"deviceId":    "sensor-1",
		"timestamp":   "2025-01-01T00:00:00Z",
		"temperature": 21.5,
		"count":       int64(7),
		"small":       int(3),
		"active":      true,
		"unit":        "celsius",
		"nested":      map[string]any{"x": 1},
		"list":        []any{1, 2},
	}

	got := telemetryFields(data)

	want := map[string]any{
		"temperature": 21.5,
		"count":       7.0,
		"small":       3.0,
		"active":      true,
		"unit":        "celsius",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("telemetryFields() = %#v, want %#v", got, want)
	}
}

func TestTelemetryFields_Empty(t *testing.T) {
	got := telemetryFields(map[string]any{
		"deviceId":  "sensor-1",
		"timestamp": "now",
	})
	if len(got) != 0 {
		t.Errorf("telemetryFields() = %v, want empty", got)
	}
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  float64
		ok    bool
	}{
		{"float64", 1.5, 1.5, true},
		{"float32", float32(2.0), 2.0, true},
		{"int", 3, 3.0, true},
		{"int64", int64(4), 4.0, true},
		{"uint32", uint32(5), 5.0, true},
		{"string", "6", 0, false},
		{"bool", true, 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := toFloat(tt.value)
			if got != tt.want || ok != tt.ok {
				t.Errorf("toFloat(%v) = (%v, %v), want (%v, %v)",
					tt.value, got, ok, tt.want, tt.ok)
			}
		})
	}
}

// ====== Integration ======

func TestConnect(t *testing.T) {
	skipIfNoInfluxDB(t)
	cfg := testConfig()

	writer, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer writer.Close()

	if !writer.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if !writer.Enabled() {
		t.Error("Enabled() = false after Connect()")
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999" // Non-existent port

	_, err := Connect(cfg)
	if err == nil {
		t.Fatal("Connect() should return error for invalid URL")
	}
}

func TestWriteTelemetry(t *testing.T) {
	skipIfNoInfluxDB(t)

	writer, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer writer.Close()

	// Track errors with mutex for race safety
	var writeErr error
	var mu sync.Mutex
	writer.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	writer.WriteTelemetry("test-device-001", "test-model", "test-group", SourceSimulated, map[string]any{
		"temperature": 21.5,
		"humidity":    48.0,
	})
	writer.Flush()

	// Give a moment for error callback
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		t.Errorf("Write error = %v", writeErr)
	}
}

func TestWriteDeviceEvent(t *testing.T) {
	skipIfNoInfluxDB(t)

	writer, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer writer.Close()

	var writeErr error
	var mu sync.Mutex
	writer.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	writer.WriteDeviceEvent("test-device-002", "test-model", "", SourceSimulated, "started", map[string]any{
		"attempt": 1,
		"reason":  "launch",
	})
	writer.Flush()

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		t.Errorf("Write error = %v", writeErr)
	}
}

func TestWriteEngineStats(t *testing.T) {
	skipIfNoInfluxDB(t)

	writer, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer writer.Close()

	var writeErr error
	var mu sync.Mutex
	writer.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	writer.WriteEngineStats(150, 140, 10, 4200, 512000, 3)
	writer.Flush()

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		t.Errorf("Write error = %v", writeErr)
	}
}

func TestWriteConnectionMetric(t *testing.T) {
	skipIfNoInfluxDB(t)

	writer, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer writer.Close()

	var writeErr error
	var mu sync.Mutex
	writer.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	writer.WriteConnectionMetric("test-device-003", "mqtt", SourceSimulated, true, 42.0)
	writer.WriteConnectionMetric("test-device-003", "mqtt", SourceSimulated, false, 0) // latency omitted
	writer.Flush()

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		t.Errorf("Write error = %v", writeErr)
	}
}

func TestClose(t *testing.T) {
	skipIfNoInfluxDB(t)

	writer, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	writer.WriteTelemetry("close-test", "m", "", SourceSimulated, map[string]any{"v": 1.0})

	if err := writer.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	if writer.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}

	// Writes after close are dropped silently.
	writer.WriteTelemetry("close-test", "m", "", SourceSimulated, map[string]any{"v": 2.0})
}
