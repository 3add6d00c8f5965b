package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/iotix/device-engine/internal/infrastructure/logging"
	"github.com/iotix/device-engine/internal/model"
)

const (
	// proxyConnectTimeout bounds the broker handshake for proxy
	// bindings. Shorter than the device timeout because a proxy binding
	// failure should surface quickly at creation time.
	proxyConnectTimeout = 10 * time.Second

	proxyDefaultBroker = "localhost"
	proxyDefaultPort   = 1883
)

// MQTTProxy mirrors telemetry from a physical device by subscribing
// to its broker topic. Payloads must be JSON objects; anything else
// is counted as dropped and logged.
type MQTTProxy struct {
	deviceID string
	binding  model.BindingConfig
	logger   *logging.Logger

	client pahomqtt.Client

	connected bool
	connMu    sync.RWMutex

	dropped atomic.Int64
}

// NewMQTTProxy creates an unbound MQTT proxy binding.
func NewMQTTProxy(deviceID string, binding model.BindingConfig, logger *logging.Logger) *MQTTProxy {
	if logger == nil {
		logger = logging.Default()
	}
	return &MQTTProxy{
		deviceID: deviceID,
		binding:  binding,
		logger:   logger.With("component", "mqtt-proxy", "device_id", deviceID),
	}
}

// Bind connects to the configured broker and subscribes to the bound
// topic. Telemetry is delivered to onTelemetry as decoded JSON
// objects. The returned webhook path is always empty for MQTT.
func (p *MQTTProxy) Bind(ctx context.Context, onTelemetry TelemetryHandler) (string, error) {
	if onTelemetry == nil {
		return "", fmt.Errorf("%w: nil telemetry handler", ErrSubscribeFailed)
	}
	if p.binding.Topic == "" {
		return "", fmt.Errorf("%w: binding topic required", ErrInvalidTopic)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	broker := p.binding.Broker
	if broker == "" {
		broker = proxyDefaultBroker
	}
	port := p.binding.Port
	if port == 0 {
		port = proxyDefaultPort
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", broker, port)).
		SetClientID(fmt.Sprintf("iotix-proxy-%s", p.deviceID)).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(mqttReconnectMinDelay).
		SetMaxReconnectInterval(mqttReconnectMaxDelay).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			p.setConnected(false)
			p.logger.Warn("proxy binding lost connection", "error", err)
		}).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			p.setConnected(true)
		})

	if p.binding.Username != "" {
		opts.SetUsername(p.binding.Username)
	}

	client := pahomqtt.NewClient(opts)

	timeout := proxyConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return "", fmt.Errorf("%w: broker %s:%d did not respond within %s",
			ErrTimeout, broker, port, timeout)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return "", fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	qos := byte(p.binding.QoS)
	subToken := client.Subscribe(p.binding.Topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		p.handleMessage(msg, onTelemetry)
	})
	if !subToken.WaitTimeout(mqttOperationTimeout) {
		client.Disconnect(0)
		return "", fmt.Errorf("%w: subscribe to %s", ErrTimeout, p.binding.Topic)
	}
	if err := subToken.Error(); err != nil {
		client.Disconnect(0)
		return "", fmt.Errorf("%w: %v", ErrSubscribeFailed, err)
	}

	p.client = client
	p.setConnected(true)

	p.logger.Info("proxy binding established",
		"broker", broker,
		"port", port,
		"topic", p.binding.Topic,
		"qos", qos,
	)
	return "", nil
}

// Unbind unsubscribes and disconnects from the broker.
func (p *MQTTProxy) Unbind() error {
	if p.client == nil {
		return nil
	}

	p.setConnected(false)

	token := p.client.Unsubscribe(p.binding.Topic)
	token.WaitTimeout(mqttOperationTimeout)

	p.client.Disconnect(mqttDisconnectQuiesce)
	p.client = nil

	p.logger.Info("proxy binding released", "topic", p.binding.Topic)
	return nil
}

// IsConnected reports whether the binding has a live broker
// connection.
func (p *MQTTProxy) IsConnected() bool {
	p.connMu.RLock()
	defer p.connMu.RUnlock()
	return p.connected && p.client != nil && p.client.IsConnected()
}

// Dropped returns how many inbound messages were discarded because
// they were not JSON objects.
func (p *MQTTProxy) Dropped() int64 {
	return p.dropped.Load()
}

// handleMessage decodes one inbound frame. Runs on paho's callback
// goroutine with panic recovery.
func (p *MQTTProxy) handleMessage(msg pahomqtt.Message, onTelemetry TelemetryHandler) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("proxy telemetry handler panicked",
				"topic", msg.Topic(),
				"panic", r,
			)
		}
	}()

	var payload map[string]any
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		p.dropped.Add(1)
		p.logger.Warn("dropping non-object proxy payload",
			"topic", msg.Topic(),
			"bytes", len(msg.Payload()),
			"error", err,
		)
		return
	}

	onTelemetry(payload, len(msg.Payload()))
}

func (p *MQTTProxy) setConnected(v bool) {
	p.connMu.Lock()
	p.connected = v
	p.connMu.Unlock()
}
