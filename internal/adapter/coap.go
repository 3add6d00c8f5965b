package adapter

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/message/pool"
	coapudp "github.com/plgd-dev/go-coap/v3/udp"
	udpclient "github.com/plgd-dev/go-coap/v3/udp/client"

	"github.com/iotix/device-engine/internal/infrastructure/logging"
)

// coapCancelTimeout bounds observation cancellation on unsubscribe.
const coapCancelTimeout = 5 * time.Second

// coapObservation is the cancellable handle returned by Observe.
type coapObservation interface {
	Cancel(ctx context.Context, opts ...message.Option) error
}

// CoAPAdapter delivers telemetry over CoAP/UDP. Topics map onto
// resource paths; QoS 0 sends non-confirmable PUTs, QoS 1 and above
// send confirmable ones. Subscribe uses CoAP observe (RFC 7641).
type CoAPAdapter struct {
	conn   Connection
	logger *logging.Logger

	client *udpclient.Conn

	// observations tracks active observe relations keyed by topic.
	observations map[string]coapObservation
	obsMu        sync.Mutex

	connected bool
	connMu    sync.RWMutex
}

// NewCoAPAdapter creates a CoAP transport for the given connection
// settings. No network activity happens until Connect.
func NewCoAPAdapter(conn Connection, logger *logging.Logger) *CoAPAdapter {
	if logger == nil {
		logger = logging.Default()
	}
	return &CoAPAdapter{
		conn:         conn,
		logger:       logger.With("component", "coap-adapter", "client_id", conn.ClientID),
		observations: make(map[string]coapObservation),
	}
}

// Connect dials the CoAP endpoint over UDP.
func (a *CoAPAdapter) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	target := net.JoinHostPort(a.conn.Broker, strconv.Itoa(a.conn.Port))
	conn, err := coapudp.Dial(target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	a.client = conn
	a.setConnected(true)

	a.logger.Info("coap transport ready", "target", target)
	return nil
}

// Disconnect cancels active observations and closes the connection.
func (a *CoAPAdapter) Disconnect() error {
	a.setConnected(false)

	a.obsMu.Lock()
	observations := a.observations
	a.observations = make(map[string]coapObservation)
	a.obsMu.Unlock()

	for topic, obs := range observations {
		ctx, cancel := context.WithTimeout(context.Background(), coapCancelTimeout)
		if err := obs.Cancel(ctx); err != nil {
			a.logger.Warn("failed to cancel observation", "topic", topic, "error", err)
		}
		cancel()
	}

	if a.client != nil {
		if err := a.client.Close(); err != nil {
			return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
	}

	a.logger.Info("coap transport closed", "target", a.conn.Broker)
	return nil
}

// Publish PUTs the payload to the topic's resource path. A 2.xx
// response code counts as delivered.
func (a *CoAPAdapter) Publish(ctx context.Context, topic string, payload any, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: %d", ErrInvalidQoS, qos)
	}
	if !a.IsConnected() {
		return ErrNotConnected
	}

	data, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	mediaType := message.AppJSON
	if isRawPayload(payload) {
		mediaType = message.AppOctets
	}

	req, err := a.client.NewPutRequest(ctx, coapPath(topic), mediaType, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	if qos >= 1 {
		req.SetType(message.Confirmable)
	} else {
		req.SetType(message.NonConfirmable)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	if !coapSuccess(resp.Code()) {
		return fmt.Errorf("%w: %s returned %v", ErrPublishFailed, topic, resp.Code())
	}

	return nil
}

// Subscribe establishes an observe relation on the topic's resource
// path. QoS is ignored; notification reliability follows the server.
func (a *CoAPAdapter) Subscribe(ctx context.Context, topic string, handler MessageHandler, _ byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !a.IsConnected() {
		return ErrNotConnected
	}

	obs, err := a.client.Observe(ctx, coapPath(topic), func(notification *pool.Message) {
		body, err := notification.ReadBody()
		if err != nil {
			a.logger.Warn("failed to read observe notification", "topic", topic, "error", err)
			return
		}
		handler(topic, decodePayload(body))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSubscribeFailed, err)
	}

	a.obsMu.Lock()
	a.observations[topic] = obs
	a.obsMu.Unlock()

	a.logger.Debug("observing resource", "topic", topic)
	return nil
}

// Unsubscribe cancels the observe relation for the topic.
func (a *CoAPAdapter) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	a.obsMu.Lock()
	obs, ok := a.observations[topic]
	delete(a.observations, topic)
	a.obsMu.Unlock()

	if !ok {
		return fmt.Errorf("%w: no observation for %s", ErrUnsubscribeFailed, topic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), coapCancelTimeout)
	defer cancel()
	if err := obs.Cancel(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsubscribeFailed, err)
	}

	return nil
}

// IsConnected reports whether the UDP association is usable.
func (a *CoAPAdapter) IsConnected() bool {
	a.connMu.RLock()
	defer a.connMu.RUnlock()
	return a.connected && a.client != nil && a.client.Context().Err() == nil
}

// ProtocolName identifies this transport.
func (a *CoAPAdapter) ProtocolName() string {
	return "coap"
}

func (a *CoAPAdapter) setConnected(v bool) {
	a.connMu.Lock()
	a.connected = v
	a.connMu.Unlock()
}

// coapPath turns a topic into an absolute resource path.
func coapPath(topic string) string {
	return "/" + strings.TrimPrefix(topic, "/")
}

// coapSuccess reports whether a response code is in the 2.xx class.
func coapSuccess(code codes.Code) bool {
	switch code {
	case codes.Created, codes.Deleted, codes.Valid, codes.Changed, codes.Content, codes.Continue:
		return true
	default:
		return false
	}
}
