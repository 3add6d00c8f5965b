package device

import (
	"testing"

	"github.com/iotix/device-engine/internal/model"
)

func intp(v int) *int    { return &v }
func boolp(v bool) *bool { return &v }

func TestEffectiveConnection_ProtocolDefaults(t *testing.T) {
	m := &model.DeviceModel{ID: "m", Protocol: model.ProtocolMQTT}

	conn, pattern := EffectiveConnection(m, nil, ConnectionDefaults{})

	if conn.Broker != "localhost" {
		t.Errorf("Broker = %q, want localhost", conn.Broker)
	}
	if conn.Port != 1883 {
		t.Errorf("Port = %d, want 1883", conn.Port)
	}
	if conn.QoS != 1 {
		t.Errorf("QoS = %d, want 1", conn.QoS)
	}
	if conn.KeepAlive != 60 {
		t.Errorf("KeepAlive = %d, want 60", conn.KeepAlive)
	}
	if !conn.CleanSession {
		t.Error("CleanSession = false, want true")
	}
	if conn.TLS {
		t.Error("TLS = true, want false")
	}
	if pattern != "iotix-${deviceId}" {
		t.Errorf("client pattern = %q, want iotix-${deviceId}", pattern)
	}
}

func TestEffectiveConnection_PortByProtocol(t *testing.T) {
	tests := []struct {
		proto model.Protocol
		want  int
	}{
		{model.ProtocolMQTT, 1883},
		{model.ProtocolHTTP, 80},
		{model.ProtocolCoAP, 5683},
	}

	for _, tt := range tests {
		t.Run(string(tt.proto), func(t *testing.T) {
			m := &model.DeviceModel{ID: "m", Protocol: tt.proto}
			conn, _ := EffectiveConnection(m, nil, ConnectionDefaults{})
			if conn.Port != tt.want {
				t.Errorf("Port = %d, want %d", conn.Port, tt.want)
			}
		})
	}
}

func TestEffectiveConnection_ModelValues(t *testing.T) {
	m := &model.DeviceModel{
		ID:       "m",
		Protocol: model.ProtocolMQTT,
		Connection: &model.ConnectionConfig{
			Broker:          "broker.example.com",
			Port:            intp(8883),
			TLS:             boolp(true),
			QoS:             intp(2),
			KeepAlive:       intp(30),
			CleanSession:    boolp(false),
			Username:        "model-user",
			ClientIDPattern: "m-${deviceId}",
			TopicPattern:    "m/${deviceId}",
		},
	}

	conn, pattern := EffectiveConnection(m, nil, ConnectionDefaults{})

	if conn.Broker != "broker.example.com" || conn.Port != 8883 {
		t.Errorf("broker = %s:%d, want broker.example.com:8883", conn.Broker, conn.Port)
	}
	if !conn.TLS {
		t.Error("TLS = false, want true")
	}
	if conn.QoS != 2 {
		t.Errorf("QoS = %d, want 2", conn.QoS)
	}
	if conn.KeepAlive != 30 {
		t.Errorf("KeepAlive = %d, want 30", conn.KeepAlive)
	}
	if conn.CleanSession {
		t.Error("CleanSession = true, want false")
	}
	if conn.Username != "model-user" {
		t.Errorf("Username = %q, want model-user", conn.Username)
	}
	if pattern != "m-${deviceId}" {
		t.Errorf("client pattern = %q, want m-${deviceId}", pattern)
	}
	if conn.TopicPattern != "m/${deviceId}" {
		t.Errorf("TopicPattern = %q, want m/${deviceId}", conn.TopicPattern)
	}
}

func TestEffectiveConnection_OverrideWins(t *testing.T) {
	m := &model.DeviceModel{
		ID:       "m",
		Protocol: model.ProtocolMQTT,
		Connection: &model.ConnectionConfig{
			Broker: "model-broker",
			Port:   intp(1883),
			QoS:    intp(1),
		},
	}
	override := &model.ConnectionConfig{
		Broker: "override-broker",
		QoS:    intp(0),
	}

	conn, _ := EffectiveConnection(m, override, ConnectionDefaults{})

	if conn.Broker != "override-broker" {
		t.Errorf("Broker = %q, want override-broker", conn.Broker)
	}
	if conn.QoS != 0 {
		t.Errorf("QoS = %d, want 0 from override", conn.QoS)
	}
	// Fields the override leaves unset fall through to the model.
	if conn.Port != 1883 {
		t.Errorf("Port = %d, want 1883 from model", conn.Port)
	}
}

func TestEffectiveConnection_EngineDefaultsForMQTT(t *testing.T) {
	m := &model.DeviceModel{ID: "m", Protocol: model.ProtocolMQTT}
	defaults := ConnectionDefaults{
		BrokerHost: "engine-broker",
		BrokerPort: 8883,
		TLS:        true,
		Username:   "engine-user",
		Password:   "engine-pass",
	}

	conn, _ := EffectiveConnection(m, nil, defaults)

	if conn.Broker != "engine-broker" {
		t.Errorf("Broker = %q, want engine-broker", conn.Broker)
	}
	if conn.Port != 8883 {
		t.Errorf("Port = %d, want 8883", conn.Port)
	}
	if !conn.TLS {
		t.Error("TLS = false, want true from engine defaults")
	}
	if conn.Username != "engine-user" {
		t.Errorf("Username = %q, want engine-user", conn.Username)
	}
	if conn.Password != "engine-pass" {
		t.Errorf("Password = %q, want engine-pass", conn.Password)
	}
}

func TestEffectiveConnection_EngineDefaultsIgnoredForHTTP(t *testing.T) {
	m := &model.DeviceModel{ID: "m", Protocol: model.ProtocolHTTP}
	defaults := ConnectionDefaults{BrokerHost: "engine-broker", BrokerPort: 8883}

	conn, _ := EffectiveConnection(m, nil, defaults)

	if conn.Broker != "localhost" {
		t.Errorf("Broker = %q, want localhost (engine defaults are MQTT-only)", conn.Broker)
	}
	if conn.Port != 80 {
		t.Errorf("Port = %d, want 80", conn.Port)
	}
}

func TestEffectiveConnection_ModelBeatsEngineDefaults(t *testing.T) {
	m := &model.DeviceModel{
		ID:       "m",
		Protocol: model.ProtocolMQTT,
		Connection: &model.ConnectionConfig{
			Broker: "model-broker",
			TLS:    boolp(false),
		},
	}
	defaults := ConnectionDefaults{BrokerHost: "engine-broker", TLS: true}

	conn, _ := EffectiveConnection(m, nil, defaults)

	if conn.Broker != "model-broker" {
		t.Errorf("Broker = %q, want model-broker", conn.Broker)
	}
	if conn.TLS {
		t.Error("TLS = true, want explicit model false to beat engine default")
	}
}

func TestEffectiveConnection_InvalidQoSFallsBack(t *testing.T) {
	m := &model.DeviceModel{
		ID:         "m",
		Protocol:   model.ProtocolMQTT,
		Connection: &model.ConnectionConfig{QoS: intp(7)},
	}

	conn, _ := EffectiveConnection(m, nil, ConnectionDefaults{})

	if conn.QoS != 1 {
		t.Errorf("QoS = %d, want fallback 1 for out-of-range value", conn.QoS)
	}
}
