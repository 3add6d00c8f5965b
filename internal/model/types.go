package model

import (
	"encoding/json"
	"fmt"
)

// DeviceModel is the template from which virtual devices are instantiated.
// Models are loaded from JSON files at startup or registered via the API,
// and are never mutated in place; re-registration replaces the whole model.
type DeviceModel struct {
	// Identity
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`

	// Classification
	Type     DeviceType `json:"type,omitempty"`
	Protocol Protocol   `json:"protocol,omitempty"`

	// Transport defaults for devices built from this model.
	// Per-device overrides and engine-level defaults fill the gaps.
	Connection *ConnectionConfig `json:"connection,omitempty"`

	// Telemetry attributes each device emits on its own cadence.
	// Proxy models carry none; their data arrives from outside.
	Telemetry []TelemetryAttribute `json:"telemetry,omitempty"`

	// Metadata is free-form and travels with the model untouched.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ApplyDefaults fills unset fields with their documented defaults.
func (m *DeviceModel) ApplyDefaults() {
	if m.Version == "" {
		m.Version = "1.0.0"
	}
	if m.Type == "" {
		m.Type = DeviceTypeSensor
	}
	if m.Protocol == "" {
		m.Protocol = ProtocolMQTT
	}
	for i := range m.Telemetry {
		if m.Telemetry[i].IntervalMs == 0 {
			m.Telemetry[i].IntervalMs = defaultIntervalMs
		}
	}
}

// DeepCopy creates a complete independent copy of the DeviceModel.
// Slice and map fields are cloned so modifications to the copy do not
// affect the registered original.
func (m *DeviceModel) DeepCopy() *DeviceModel {
	if m == nil {
		return nil
	}

	cpy := *m // Shallow copy of value fields

	if m.Connection != nil {
		conn := *m.Connection
		cpy.Connection = &conn
	}

	if m.Telemetry != nil {
		cpy.Telemetry = make([]TelemetryAttribute, len(m.Telemetry))
		copy(cpy.Telemetry, m.Telemetry)
	}

	cpy.Metadata = deepCopyMap(m.Metadata)

	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, int, float64, etc.) are safe to copy by value
		return v
	}
}

// TelemetryAttribute describes one value stream a device emits.
type TelemetryAttribute struct {
	Name string `json:"name"`

	// Type is the declared value type (float, int, bool, string).
	// Informational; the generator decides what actually comes out.
	Type string `json:"type,omitempty"`

	Unit      string          `json:"unit,omitempty"`
	Generator GeneratorConfig `json:"generator"`

	// IntervalMs is the emission period. Defaults to 1000.
	IntervalMs int `json:"intervalMs,omitempty"`

	// Topic overrides the connection-level topic pattern for this
	// attribute. Supports ${...} template tokens.
	Topic string `json:"topic,omitempty"`
}

const defaultIntervalMs = 1000

// GeneratorConfig is a tagged union over all generator variants. Which
// fields matter depends on Type; unknown types fall back to uniform random
// at construction time rather than failing validation.
type GeneratorConfig struct {
	Type string `json:"type,omitempty"`

	// random + sine
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`

	// random
	Distribution Distribution `json:"distribution,omitempty"`
	Mean         *float64     `json:"mean,omitempty"`
	StdDev       *float64     `json:"stddev,omitempty"`
	Rate         *float64     `json:"rate,omitempty"`

	// sequence
	Start *float64 `json:"start,omitempty"`
	Step  *float64 `json:"step,omitempty"`
	Wrap  bool     `json:"wrap,omitempty"`

	// constant
	Value any `json:"value,omitempty"`

	// replay
	DataFile string `json:"dataFile,omitempty"`
	Loop     *bool  `json:"loop,omitempty"`

	// sine
	PeriodMs int     `json:"periodMs,omitempty"`
	Phase    float64 `json:"phase,omitempty"`
}

// ConnectionConfig carries transport settings. Pointer fields distinguish
// "explicitly set" from "absent" so the per-device merge (override over
// model over engine defaults) works field-wise.
type ConnectionConfig struct {
	Broker          string `json:"broker,omitempty"`
	Port            *int   `json:"port,omitempty"`
	TLS             *bool  `json:"tls,omitempty"`
	ClientIDPattern string `json:"clientIdPattern,omitempty"`
	TopicPattern    string `json:"topicPattern,omitempty"`
	QoS             *int   `json:"qos,omitempty"`
	KeepAlive       *int   `json:"keepAlive,omitempty"`
	CleanSession    *bool  `json:"cleanSession,omitempty"`
	Username        string `json:"username,omitempty"`

	// PasswordRef names a secret; the engine never resolves it.
	PasswordRef string `json:"passwordRef,omitempty"`
}

// DeepCopy creates an independent copy of the ConnectionConfig.
func (c *ConnectionConfig) DeepCopy() *ConnectionConfig {
	if c == nil {
		return nil
	}
	cpy := *c
	if c.Port != nil {
		v := *c.Port
		cpy.Port = &v
	}
	if c.TLS != nil {
		v := *c.TLS
		cpy.TLS = &v
	}
	if c.QoS != nil {
		v := *c.QoS
		cpy.QoS = &v
	}
	if c.KeepAlive != nil {
		v := *c.KeepAlive
		cpy.KeepAlive = &v
	}
	if c.CleanSession != nil {
		v := *c.CleanSession
		cpy.CleanSession = &v
	}
	return &cpy
}

// BindingConfig describes the inbound side of a proxy device: where real
// telemetry arrives from.
type BindingConfig struct {
	Protocol string `json:"protocol"`
	Broker   string `json:"broker,omitempty"`
	Port     int    `json:"port,omitempty"`
	Topic    string `json:"topic,omitempty"`
	QoS      int    `json:"qos,omitempty"`
	Username string `json:"username,omitempty"`

	// PasswordRef names a secret; the engine never resolves it.
	PasswordRef string `json:"passwordRef,omitempty"`

	// WebhookPath overrides the default webhook path for HTTP bindings.
	WebhookPath string `json:"webhookPath,omitempty"`

	// ResourceURI identifies the upstream resource, informational only.
	ResourceURI string `json:"resourceUri,omitempty"`
}

// DeviceType classifies what a model simulates.
type DeviceType string

// DeviceType constants.
const (
	DeviceTypeSensor   DeviceType = "sensor"
	DeviceTypeGateway  DeviceType = "gateway"
	DeviceTypeActuator DeviceType = "actuator"
	DeviceTypeCustom   DeviceType = "custom"

	// DeviceTypeProxy marks models whose devices mirror a physical
	// device instead of generating telemetry.
	DeviceTypeProxy DeviceType = "proxy"
)

// AllDeviceTypes returns all valid device type values.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{
		DeviceTypeSensor, DeviceTypeGateway, DeviceTypeActuator,
		DeviceTypeCustom, DeviceTypeProxy,
	}
}

// Protocol is the outbound transport a device publishes over.
type Protocol string

// Protocol constants.
const (
	ProtocolMQTT Protocol = "mqtt"
	ProtocolCoAP Protocol = "coap"
	ProtocolHTTP Protocol = "http"
)

// AllProtocols returns all valid protocol values.
func AllProtocols() []Protocol {
	return []Protocol{ProtocolMQTT, ProtocolCoAP, ProtocolHTTP}
}

// Distribution selects the sampling shape of a random generator.
type Distribution string

// Distribution constants.
const (
	DistributionUniform     Distribution = "uniform"
	DistributionNormal      Distribution = "normal"
	DistributionExponential Distribution = "exponential"
)

// AllDistributions returns all valid distribution values.
func AllDistributions() []Distribution {
	return []Distribution{
		DistributionUniform, DistributionNormal, DistributionExponential,
	}
}

// ParseModel decodes a device model from JSON, applies defaults and
// validates the result.
func ParseModel(data []byte) (*DeviceModel, error) {
	var m DeviceModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	m.ApplyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
