package adapter

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/iotix/device-engine/internal/infrastructure/logging"
)

const (
	// mqttConnectTimeout bounds the initial broker handshake. Paho keeps
	// retrying underneath, so a refused broker surfaces as a timeout.
	mqttConnectTimeout = 30 * time.Second

	// mqttOperationTimeout bounds publish, subscribe, and unsubscribe
	// token waits.
	mqttOperationTimeout = 5 * time.Second

	// mqttDisconnectQuiesce is how long paho may spend flushing
	// in-flight work on disconnect, in milliseconds.
	mqttDisconnectQuiesce = 250

	// mqttReconnectMinDelay and mqttReconnectMaxDelay bound paho's
	// automatic reconnect backoff.
	mqttReconnectMinDelay = 1 * time.Second
	mqttReconnectMaxDelay = 30 * time.Second

	// maxQoS is the highest MQTT quality-of-service level.
	maxQoS = 2

	// maxPayloadSize caps outbound payloads at 1MB. Telemetry frames are
	// tiny; anything larger indicates a runaway generator.
	maxPayloadSize = 1024 * 1024
)

// mqttSubscription tracks an active subscription for re-subscribe
// after reconnection and for routing inbound messages.
type mqttSubscription struct {
	handler MessageHandler
	qos     byte
}

// MQTTAdapter delivers telemetry over MQTT using the paho client.
//
// All inbound messages flow through a single default handler that
// routes by matching the topic against the local subscription table,
// so overlapping wildcard patterns each see the message exactly once.
//
// Thread Safety: all methods are safe for concurrent use.
type MQTTAdapter struct {
	conn   Connection
	logger *logging.Logger

	client pahomqtt.Client

	// subscriptions tracks active subscriptions keyed by topic pattern.
	subscriptions map[string]mqttSubscription
	subMu         sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	onConnect    func()
	onDisconnect func(error)
	callbackMu   sync.RWMutex
}

// NewMQTTAdapter creates an MQTT transport for the given connection
// settings. No network activity happens until Connect.
func NewMQTTAdapter(conn Connection, logger *logging.Logger) *MQTTAdapter {
	if logger == nil {
		logger = logging.Default()
	}
	return &MQTTAdapter{
		conn:          conn,
		logger:        logger.With("component", "mqtt-adapter", "client_id", conn.ClientID),
		subscriptions: make(map[string]mqttSubscription),
	}
}

// Connect dials the broker and blocks until the connection is
// established or the connect timeout elapses. A context deadline
// shorter than the default timeout takes precedence.
//
// Returns:
//   - ErrTimeout if the broker does not answer in time
//   - ErrConnectionFailed for handshake or authentication failures
func (a *MQTTAdapter) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	opts := a.buildOptions()
	client := pahomqtt.NewClient(opts)

	timeout := mqttConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return fmt.Errorf("%w: broker %s:%d did not respond within %s",
			ErrTimeout, a.conn.Broker, a.conn.Port, timeout)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	a.client = client

	// The OnConnect handler fires asynchronously; mark connected here so
	// callers can publish immediately after Connect returns.
	a.setConnected(true)

	a.logger.Info("connected to broker",
		"broker", a.conn.Broker,
		"port", a.conn.Port,
		"tls", a.conn.TLS,
	)
	return nil
}

// Disconnect closes the broker connection. Safe to call on an adapter
// that never connected.
func (a *MQTTAdapter) Disconnect() error {
	if a.client == nil {
		return nil
	}

	a.setConnected(false)
	a.client.Disconnect(mqttDisconnectQuiesce)
	a.logger.Info("disconnected from broker", "broker", a.conn.Broker)
	return nil
}

// Publish sends a payload to a topic and waits for broker
// acknowledgement appropriate to the QoS level.
//
// Returns:
//   - ErrInvalidTopic for an empty topic
//   - ErrInvalidQoS for QoS above 2
//   - ErrNotConnected when no live connection exists
//   - ErrPublishFailed / ErrTimeout on delivery failure
func (a *MQTTAdapter) Publish(ctx context.Context, topic string, payload any, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: %d", ErrInvalidQoS, qos)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	data, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	if len(data) > maxPayloadSize {
		return fmt.Errorf("%w: payload %d bytes exceeds limit %d",
			ErrPublishFailed, len(data), maxPayloadSize)
	}

	if !a.IsConnected() {
		return ErrNotConnected
	}

	token := a.client.Publish(topic, qos, false, data)
	if !token.WaitTimeout(mqttOperationTimeout) {
		return fmt.Errorf("%w: publish to %s", ErrTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	return nil
}

// Subscribe registers a handler for a topic pattern. Wildcards (+, #)
// are supported. The subscription survives reconnection.
//
// The pattern is tracked locally before the broker call so a
// reconnect that races the subscribe still restores it; on failure
// the tracking is rolled back.
func (a *MQTTAdapter) Subscribe(ctx context.Context, topic string, handler MessageHandler, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: %d", ErrInvalidQoS, qos)
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSubscribeFailed, err)
	}
	if !a.IsConnected() {
		return ErrNotConnected
	}

	a.subMu.Lock()
	a.subscriptions[topic] = mqttSubscription{handler: handler, qos: qos}
	a.subMu.Unlock()

	// nil paho callback: unrouted messages land in the default handler,
	// which dispatches through the subscription table.
	token := a.client.Subscribe(topic, qos, nil)
	if !token.WaitTimeout(mqttOperationTimeout) {
		a.dropSubscription(topic)
		return fmt.Errorf("%w: subscribe to %s", ErrTimeout, topic)
	}
	if err := token.Error(); err != nil {
		a.dropSubscription(topic)
		return fmt.Errorf("%w: %v", ErrSubscribeFailed, err)
	}

	a.logger.Debug("subscribed", "topic", topic, "qos", qos)
	return nil
}

// Unsubscribe removes a subscription by its exact pattern.
func (a *MQTTAdapter) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !a.IsConnected() {
		return ErrNotConnected
	}

	a.dropSubscription(topic)

	token := a.client.Unsubscribe(topic)
	if !token.WaitTimeout(mqttOperationTimeout) {
		return fmt.Errorf("%w: unsubscribe from %s", ErrTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsubscribeFailed, err)
	}

	a.logger.Debug("unsubscribed", "topic", topic)
	return nil
}

// IsConnected reports whether the adapter holds a live broker
// connection.
func (a *MQTTAdapter) IsConnected() bool {
	a.connMu.RLock()
	defer a.connMu.RUnlock()
	return a.connected && a.client != nil && a.client.IsConnected()
}

// ProtocolName identifies this transport.
func (a *MQTTAdapter) ProtocolName() string {
	return "mqtt"
}

// SetOnConnect registers a callback fired on every (re)connection.
func (a *MQTTAdapter) SetOnConnect(fn func()) {
	a.callbackMu.Lock()
	defer a.callbackMu.Unlock()
	a.onConnect = fn
}

// SetOnDisconnect registers a callback fired when the connection is
// lost unexpectedly. Graceful Disconnect does not fire it.
func (a *MQTTAdapter) SetOnDisconnect(fn func(error)) {
	a.callbackMu.Lock()
	defer a.callbackMu.Unlock()
	a.onDisconnect = fn
}

// SubscriptionCount returns the number of active subscriptions.
func (a *MQTTAdapter) SubscriptionCount() int {
	a.subMu.RLock()
	defer a.subMu.RUnlock()
	return len(a.subscriptions)
}

// HasSubscription reports whether the exact pattern is subscribed.
func (a *MQTTAdapter) HasSubscription(topic string) bool {
	a.subMu.RLock()
	defer a.subMu.RUnlock()
	_, ok := a.subscriptions[topic]
	return ok
}

// ====== Internals ======

func (a *MQTTAdapter) buildOptions() *pahomqtt.ClientOptions {
	scheme := "tcp"
	if a.conn.TLS {
		scheme = "ssl"
	}
	brokerURL := fmt.Sprintf("%s://%s:%d", scheme, a.conn.Broker, a.conn.Port)

	keepAlive := time.Duration(a.conn.KeepAlive) * time.Second
	if keepAlive <= 0 {
		keepAlive = 60 * time.Second
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(a.conn.ClientID).
		SetCleanSession(a.conn.CleanSession).
		SetKeepAlive(keepAlive).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(mqttReconnectMinDelay).
		SetMaxReconnectInterval(mqttReconnectMaxDelay).
		SetDefaultPublishHandler(a.route).
		SetOnConnectHandler(a.handleConnect).
		SetConnectionLostHandler(a.handleConnectionLost)

	if a.conn.Username != "" {
		opts.SetUsername(a.conn.Username)
		opts.SetPassword(a.conn.Password)
	}

	if a.conn.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	return opts
}

// route dispatches an inbound message to every subscription whose
// pattern matches the topic. Runs on paho's callback goroutine.
func (a *MQTTAdapter) route(_ pahomqtt.Client, msg pahomqtt.Message) {
	topic := msg.Topic()
	payload := decodePayload(msg.Payload())

	a.subMu.RLock()
	handlers := make([]MessageHandler, 0, 1)
	for pattern, sub := range a.subscriptions {
		if MatchTopic(pattern, topic) {
			handlers = append(handlers, sub.handler)
		}
	}
	a.subMu.RUnlock()

	for _, handler := range handlers {
		a.invoke(handler, topic, payload)
	}
}

// invoke runs a handler with panic recovery so a faulty callback
// cannot kill paho's dispatch goroutine.
func (a *MQTTAdapter) invoke(handler MessageHandler, topic string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("message handler panicked",
				"topic", topic,
				"panic", r,
			)
		}
	}()
	handler(topic, payload)
}

// handleConnect fires on initial connection and every reconnect.
// Re-establishes broker-side subscriptions from the local table.
func (a *MQTTAdapter) handleConnect(client pahomqtt.Client) {
	a.setConnected(true)

	a.subMu.RLock()
	patterns := make(map[string]byte, len(a.subscriptions))
	for topic, sub := range a.subscriptions {
		patterns[topic] = sub.qos
	}
	a.subMu.RUnlock()

	for topic, qos := range patterns {
		token := client.Subscribe(topic, qos, nil)
		if !token.WaitTimeout(mqttOperationTimeout) || token.Error() != nil {
			a.logger.Warn("failed to restore subscription",
				"topic", topic,
				"error", token.Error(),
			)
		}
	}

	a.callbackMu.RLock()
	fn := a.onConnect
	a.callbackMu.RUnlock()
	if fn != nil {
		fn()
	}
}

// handleConnectionLost fires when the broker connection drops. Paho's
// auto-reconnect takes over; we just flip state and notify.
func (a *MQTTAdapter) handleConnectionLost(_ pahomqtt.Client, err error) {
	a.setConnected(false)
	a.logger.Warn("connection lost",
		"broker", a.conn.Broker,
		"error", err,
	)

	a.callbackMu.RLock()
	fn := a.onDisconnect
	a.callbackMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (a *MQTTAdapter) setConnected(v bool) {
	a.connMu.Lock()
	a.connected = v
	a.connMu.Unlock()
}

func (a *MQTTAdapter) dropSubscription(topic string) {
	a.subMu.Lock()
	delete(a.subscriptions, topic)
	a.subMu.Unlock()
}
