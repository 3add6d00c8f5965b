package device

import (
	"context"
	"time"

	"github.com/iotix/device-engine/internal/model"
)

// ====== Lifecycle States ======

// Status is the lifecycle state of a device.
type Status string

// Device lifecycle states. A failed start lands in StatusError; both
// StatusStopped and StatusError devices may be started again.
const (
	StatusCreated  Status = "created"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// ConnectionState is the transport state of a device.
type ConnectionState string

// Connection states. ConnReconnecting is derived: a running device
// whose adapter reports no live connection is reconnecting (the
// protocol client retries on its own).
const (
	ConnDisconnected ConnectionState = "disconnected"
	ConnConnecting   ConnectionState = "connecting"
	ConnConnected    ConnectionState = "connected"
	ConnReconnecting ConnectionState = "reconnecting"
)

// Metrics source tags. Virtual devices produce synthetic telemetry;
// proxy devices mirror real hardware.
const (
	sourceSimulated = "simulated"
	sourcePhysical  = "physical"
)

// ====== Capability Set ======

// Device is the common capability set of virtual and proxy devices.
// The engine's catalogue holds devices through this interface;
// proxy-only operations (Bind, Unbind, BindingStatus) live on
// *ProxyDevice and are reached by type assertion.
type Device interface {
	ID() string
	ModelID() string
	GroupID() string
	Status() Status
	IsProxy() bool

	// Start brings the device to StatusRunning. Starting an already
	// running device is a no-op. ctx bounds connection establishment
	// only; telemetry runs on the device's own lifetime.
	Start(ctx context.Context) error

	// Stop brings the device to StatusStopped, awaiting telemetry
	// shutdown. Stopping a device that is not running is a no-op.
	Stop() error

	// Snapshot returns the control-plane view of the device.
	Snapshot() Snapshot

	// Metrics returns the device's counters and last telemetry values.
	Metrics() Metrics
}

// Snapshot is the control-plane view of one device, shaped for JSON
// responses.
type Snapshot struct {
	ID              string          `json:"deviceId"`
	ModelID         string          `json:"modelId"`
	Type            string          `json:"type"`
	Status          Status          `json:"status"`
	ConnectionState ConnectionState `json:"connectionState"`
	GroupID         string          `json:"groupId,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	StartedAt       *time.Time      `json:"startedAt,omitempty"`
	BoundAt         *time.Time      `json:"boundAt,omitempty"`
	LastTelemetryAt *time.Time      `json:"lastTelemetryAt,omitempty"`
	ErrorMessage    string          `json:"errorMessage,omitempty"`

	// Proxy-only fields.
	Binding     *model.BindingConfig `json:"binding,omitempty"`
	WebhookPath string               `json:"webhookPath,omitempty"`
}

// Metrics carries a device's counters. For proxy devices MessagesSent
// and BytesSent are always zero; for virtual devices MessagesReceived
// and BytesReceived are always zero.
type Metrics struct {
	DeviceID         string         `json:"deviceId"`
	MessagesSent     int64          `json:"messagesSent"`
	MessagesReceived int64          `json:"messagesReceived"`
	BytesSent        int64          `json:"bytesSent"`
	BytesReceived    int64          `json:"bytesReceived"`
	ErrorCount       int64          `json:"errorCount"`
	ConnectionCount  int64          `json:"connectionCount"`
	UptimeSeconds    float64        `json:"uptimeSeconds"`
	LastTelemetry    map[string]any `json:"lastTelemetry,omitempty"`
}

// BindingStatus describes a proxy device's inbound binding.
type BindingStatus struct {
	Bound       bool       `json:"bound"`
	Protocol    string     `json:"protocol,omitempty"`
	Broker      string     `json:"broker,omitempty"`
	Port        int        `json:"port,omitempty"`
	Topic       string     `json:"topic,omitempty"`
	WebhookPath string     `json:"webhookPath,omitempty"`
	ResourceURI string     `json:"resourceUri,omitempty"`
	BoundAt     *time.Time `json:"boundAt,omitempty"`
}

// ====== Collaborator Interfaces ======

// MetricsSink receives telemetry and lifecycle data points.
// Implementations must be non-blocking and never return errors; the
// InfluxDB writer satisfies this.
type MetricsSink interface {
	WriteTelemetry(deviceID, modelID, groupID, source string, data map[string]any)
	WriteDeviceEvent(deviceID, modelID, groupID, source, eventType string, metadata map[string]any)
	WriteConnectionMetric(deviceID, protocol, source string, connected bool, latencyMs float64)
}

// noopSink discards all data points. Used when no sink is configured.
type noopSink struct{}

func (noopSink) WriteTelemetry(string, string, string, string, map[string]any)           {}
func (noopSink) WriteDeviceEvent(string, string, string, string, string, map[string]any) {}
func (noopSink) WriteConnectionMetric(string, string, string, bool, float64)             {}

// Logger is the minimal logging interface the package depends on.
// Avoids a hard dependency on the infrastructure logging package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is injected.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ConnectionDefaults carries engine-level broker settings, fed by the
// MQTT section of the service configuration. They fill connection
// fields that neither the per-device override nor the model sets, and
// apply to MQTT devices only.
type ConnectionDefaults struct {
	BrokerHost string
	BrokerPort int
	TLS        bool
	Username   string
	Password   string
}
