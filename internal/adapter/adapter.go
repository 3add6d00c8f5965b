package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iotix/device-engine/internal/infrastructure/logging"
	"github.com/iotix/device-engine/internal/model"
)

// MessageHandler receives inbound messages from a subscription.
// The payload is the decoded JSON value, or raw []byte when the body
// is not valid JSON.
type MessageHandler func(topic string, payload any)

// TelemetryHandler receives decoded telemetry from an inbound binding.
// size is the wire size of the inbound frame in bytes, before decoding.
type TelemetryHandler func(payload map[string]any, size int)

// ProtocolAdapter is the outbound transport used by virtual devices.
// Implementations are safe for concurrent use.
type ProtocolAdapter interface {
	// Connect establishes the transport connection. It blocks until the
	// connection is up, the protocol's connect timeout elapses, or ctx
	// is cancelled.
	Connect(ctx context.Context) error

	// Disconnect tears the connection down. Safe to call on a transport
	// that never connected.
	Disconnect() error

	// Publish delivers a payload to a topic. Payloads are JSON-encoded
	// unless already []byte.
	Publish(ctx context.Context, topic string, payload any, qos byte) error

	// Subscribe registers a handler for messages on a topic pattern.
	Subscribe(ctx context.Context, topic string, handler MessageHandler, qos byte) error

	// Unsubscribe removes a previously registered subscription.
	Unsubscribe(topic string) error

	// IsConnected reports whether the transport currently has a live
	// connection.
	IsConnected() bool

	// ProtocolName identifies the transport ("mqtt", "http", "coap").
	ProtocolName() string
}

// InboundBinder attaches a proxy device to an external telemetry
// source. MQTT binders subscribe to a broker topic; HTTP binders
// register a webhook endpoint and return its path.
type InboundBinder interface {
	// Bind starts delivering inbound telemetry to onTelemetry. For HTTP
	// bindings the returned path is the webhook endpoint; other
	// protocols return "".
	Bind(ctx context.Context, onTelemetry TelemetryHandler) (webhookPath string, err error)

	// Unbind stops delivery and releases the binding.
	Unbind() error

	// IsConnected reports whether the binding is live.
	IsConnected() bool
}

// Connection holds fully merged connection settings for a transport.
// The device layer resolves override, model, and engine defaults into
// this flat form; adapters never consult raw model config.
type Connection struct {
	Broker       string
	Port         int
	ClientID     string
	Username     string
	Password     string
	TopicPattern string
	QoS          byte
	KeepAlive    int // seconds
	CleanSession bool
	TLS          bool
}

// Factory builds the outbound transport for a protocol.
type Factory func(proto model.Protocol, conn Connection) (ProtocolAdapter, error)

// BinderFactory builds the inbound binding for a proxy device.
type BinderFactory func(deviceID string, binding model.BindingConfig) (InboundBinder, error)

// NewFactory returns a Factory dispatching on the model protocol.
func NewFactory(logger *logging.Logger) Factory {
	return func(proto model.Protocol, conn Connection) (ProtocolAdapter, error) {
		switch proto {
		case model.ProtocolMQTT:
			return NewMQTTAdapter(conn, logger), nil
		case model.ProtocolHTTP:
			return NewHTTPAdapter(conn, logger), nil
		case model.ProtocolCoAP:
			return NewCoAPAdapter(conn, logger), nil
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, proto)
		}
	}
}

// NewBinderFactory returns a BinderFactory for proxy devices. HTTP
// bindings register against the shared webhook registry.
func NewBinderFactory(registry *WebhookRegistry, logger *logging.Logger) BinderFactory {
	return func(deviceID string, binding model.BindingConfig) (InboundBinder, error) {
		switch binding.Protocol {
		case string(model.ProtocolMQTT):
			return NewMQTTProxy(deviceID, binding, logger), nil
		case string(model.ProtocolHTTP):
			return NewHTTPProxy(deviceID, binding, registry, logger), nil
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, binding.Protocol)
		}
	}
}

// encodePayload serialises an outbound payload. Raw []byte passes
// through untouched; everything else is JSON-encoded.
func encodePayload(payload any) ([]byte, error) {
	if raw, ok := payload.([]byte); ok {
		return raw, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// decodePayload deserialises an inbound body. Valid JSON becomes the
// decoded value; anything else is returned as raw bytes.
func decodePayload(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return data
	}
	return v
}

// isRawPayload reports whether the payload should skip JSON encoding
// and be sent as opaque bytes.
func isRawPayload(payload any) bool {
	_, ok := payload.([]byte)
	return ok
}
