// Package adapter provides outbound protocol transports for virtual
// devices and inbound bindings for proxy devices.
//
// This package manages:
//   - MQTT publishing with auto-reconnect and wildcard subscriptions
//   - HTTP telemetry delivery to REST collectors
//   - CoAP PUT delivery and resource observation
//   - Inbound MQTT bindings that mirror physical device traffic
//   - Inbound HTTP webhook bindings backed by a shared registry
//
// # Architecture
//
// Virtual devices speak to the outside world only through the
// ProtocolAdapter interface. A Factory maps a model's declared
// protocol onto a concrete transport, so device logic stays
// protocol-agnostic:
//
//	Virtual Device → ProtocolAdapter → MQTT / HTTP / CoAP
//	Proxy Device   ← InboundBinder   ← MQTT subscription / webhook
//
// All adapters resolve connection settings from a fully merged
// Connection value; precedence of overrides is decided by the device
// layer, never here.
//
// # Payload Handling
//
// Outbound payloads are JSON-encoded unless already raw bytes.
// Inbound payloads are decoded as JSON when possible; undecodable
// bodies are handed to subscribers as raw bytes so nothing is lost.
//
// # Thread Safety
//
// All adapter types are safe for concurrent use. Subscription tables
// and connection flags are guarded by their own mutexes, and message
// handlers run with panic recovery so one bad handler cannot take
// down a transport.
//
// # Usage
//
//	factory := adapter.NewFactory(logger)
//	tr, err := factory(model.ProtocolMQTT, conn)
//	if err != nil {
//	    return err
//	}
//	if err := tr.Connect(ctx); err != nil {
//	    return err
//	}
//	defer tr.Disconnect()
//
//	err = tr.Publish(ctx, "devices/sensor-1/temperature", map[string]any{
//	    "deviceId": "sensor-1",
//	    "value":    21.4,
//	}, 1)
package adapter
