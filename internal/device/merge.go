package device

import (
	"github.com/iotix/device-engine/internal/adapter"
	"github.com/iotix/device-engine/internal/model"
)

// Protocol-level connection defaults, the lowest tier of the merge.
const (
	defaultBroker    = "localhost"
	defaultMQTTPort  = 1883
	defaultHTTPPort  = 80
	defaultCoAPPort  = 5683
	defaultQoS       = 1
	defaultKeepAlive = 60 // seconds

	// defaultClientIDPattern names devices on the broker when neither
	// the override nor the model sets a pattern.
	defaultClientIDPattern = "iotix-${deviceId}"

	// defaultTopicPattern is the publication topic of last resort.
	defaultTopicPattern = "devices/${deviceId}/telemetry"
)

// EffectiveConnection merges connection settings field-wise. Precedence
// per field: device override, then model connection, then engine
// defaults (MQTT devices only, fed by the MQTT_BROKER_* configuration),
// then protocol defaults. The returned client ID pattern keeps its
// template tokens; the caller resolves them per device.
func EffectiveConnection(m *model.DeviceModel, override *model.ConnectionConfig, defaults ConnectionDefaults) (adapter.Connection, string) {
	merged := overlay(m.Connection, override)

	conn := adapter.Connection{
		Broker:       merged.Broker,
		TopicPattern: merged.TopicPattern,
		Username:     merged.Username,
		QoS:          defaultQoS,
		KeepAlive:    defaultKeepAlive,
		CleanSession: true,
	}
	if merged.Port != nil {
		conn.Port = *merged.Port
	}
	if merged.QoS != nil && *merged.QoS >= 0 && *merged.QoS <= 2 {
		conn.QoS = byte(*merged.QoS)
	}
	if merged.KeepAlive != nil {
		conn.KeepAlive = *merged.KeepAlive
	}
	if merged.CleanSession != nil {
		conn.CleanSession = *merged.CleanSession
	}
	if merged.TLS != nil {
		conn.TLS = *merged.TLS
	}

	// Engine-level broker settings describe the engine's own MQTT
	// broker; they never redirect HTTP or CoAP devices.
	if m.Protocol == model.ProtocolMQTT {
		if conn.Broker == "" {
			conn.Broker = defaults.BrokerHost
		}
		if conn.Port == 0 {
			conn.Port = defaults.BrokerPort
		}
		if merged.TLS == nil {
			conn.TLS = defaults.TLS
		}
		if conn.Username == "" {
			conn.Username = defaults.Username
		}
		conn.Password = defaults.Password
	}

	if conn.Broker == "" {
		conn.Broker = defaultBroker
	}
	if conn.Port == 0 {
		switch m.Protocol {
		case model.ProtocolHTTP:
			conn.Port = defaultHTTPPort
		case model.ProtocolCoAP:
			conn.Port = defaultCoAPPort
		default:
			conn.Port = defaultMQTTPort
		}
	}

	clientPattern := merged.ClientIDPattern
	if clientPattern == "" {
		clientPattern = defaultClientIDPattern
	}

	return conn, clientPattern
}

// overlay copies base and lays explicitly-set override fields on top.
// Either argument may be nil.
func overlay(base, override *model.ConnectionConfig) model.ConnectionConfig {
	var merged model.ConnectionConfig
	if base != nil {
		merged = *base.DeepCopy()
	}
	if override == nil {
		return merged
	}

	if override.Broker != "" {
		merged.Broker = override.Broker
	}
	if override.Port != nil {
		merged.Port = override.Port
	}
	if override.TLS != nil {
		merged.TLS = override.TLS
	}
	if override.ClientIDPattern != "" {
		merged.ClientIDPattern = override.ClientIDPattern
	}
	if override.TopicPattern != "" {
		merged.TopicPattern = override.TopicPattern
	}
	if override.QoS != nil {
		merged.QoS = override.QoS
	}
	if override.KeepAlive != nil {
		merged.KeepAlive = override.KeepAlive
	}
	if override.CleanSession != nil {
		merged.CleanSession = override.CleanSession
	}
	if override.Username != "" {
		merged.Username = override.Username
	}
	if override.PasswordRef != "" {
		merged.PasswordRef = override.PasswordRef
	}

	return merged
}
