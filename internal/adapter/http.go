package adapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/iotix/device-engine/internal/infrastructure/logging"
)

const (
	// httpRequestTimeout bounds each outbound request end to end.
	httpRequestTimeout = 10 * time.Second

	// httpMaxResponseBytes caps how much of a collector response is read.
	httpMaxResponseBytes = 1024 * 1024
)

// HTTPAdapter delivers telemetry by POSTing JSON to a collector
// endpoint. The topic becomes the request path under the base URL, so
// "devices/sensor-1/temperature" posts to
// http://host:port/devices/sensor-1/temperature.
//
// HTTP is fire-and-forget: Subscribe is a logged no-op because plain
// HTTP has no inbound channel.
type HTTPAdapter struct {
	conn    Connection
	baseURL string
	logger  *logging.Logger

	client *http.Client

	connected bool
	connMu    sync.RWMutex
}

// NewHTTPAdapter creates an HTTP transport for the given connection
// settings. No network activity happens until Connect.
func NewHTTPAdapter(conn Connection, logger *logging.Logger) *HTTPAdapter {
	if logger == nil {
		logger = logging.Default()
	}

	scheme := "http"
	if conn.TLS {
		scheme = "https"
	}

	return &HTTPAdapter{
		conn:    conn,
		baseURL: fmt.Sprintf("%s://%s:%d", scheme, conn.Broker, conn.Port),
		logger:  logger.With("component", "http-adapter", "client_id", conn.ClientID),
	}
}

// Connect prepares the shared HTTP client. No probe request is sent;
// collectors are often write-only and reject anything but telemetry
// posts, so reachability surfaces on first Publish instead.
func (a *HTTPAdapter) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	a.client = &http.Client{
		Timeout: httpRequestTimeout,
	}
	a.setConnected(true)

	a.logger.Info("http transport ready", "base_url", a.baseURL)
	return nil
}

// Disconnect drops idle keep-alive connections.
func (a *HTTPAdapter) Disconnect() error {
	a.setConnected(false)
	if a.client != nil {
		a.client.CloseIdleConnections()
	}
	a.logger.Info("http transport closed", "base_url", a.baseURL)
	return nil
}

// Publish POSTs the payload to the topic path. QoS is ignored; HTTP
// delivery is acknowledged by the response status.
func (a *HTTPAdapter) Publish(ctx context.Context, topic string, payload any, qos byte) error {
	_, err := a.send(ctx, http.MethodPost, topic, payload)
	return err
}

// Get fetches the body at a topic path. Used by tests and by callers
// that poll collector state.
func (a *HTTPAdapter) Get(ctx context.Context, topic string) ([]byte, error) {
	return a.send(ctx, http.MethodGet, topic, nil)
}

// Put sends the payload with PUT semantics instead of POST.
func (a *HTTPAdapter) Put(ctx context.Context, topic string, payload any) error {
	_, err := a.send(ctx, http.MethodPut, topic, payload)
	return err
}

// Subscribe is not supported over plain HTTP. It logs and succeeds so
// models that share attribute definitions across protocols still load.
func (a *HTTPAdapter) Subscribe(_ context.Context, topic string, _ MessageHandler, _ byte) error {
	a.logger.Warn("subscribe not supported over http", "topic", topic)
	return nil
}

// Unsubscribe is a no-op; HTTP holds no subscriptions.
func (a *HTTPAdapter) Unsubscribe(_ string) error {
	return nil
}

// IsConnected reports whether Connect has prepared the transport.
func (a *HTTPAdapter) IsConnected() bool {
	a.connMu.RLock()
	defer a.connMu.RUnlock()
	return a.connected
}

// ProtocolName identifies this transport.
func (a *HTTPAdapter) ProtocolName() string {
	return "http"
}

// send issues one request and returns the response body for GETs.
func (a *HTTPAdapter) send(ctx context.Context, method, topic string, payload any) ([]byte, error) {
	if topic == "" {
		return nil, ErrInvalidTopic
	}
	if !a.IsConnected() {
		return nil, ErrNotConnected
	}

	url := a.baseURL + "/" + strings.TrimPrefix(topic, "/")

	var body io.Reader
	contentType := ""
	if payload != nil {
		data, err := encodePayload(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPublishFailed, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
		if isRawPayload(payload) {
			contentType = "application/octet-stream"
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, httpMaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrPublishFailed, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: %s %s returned %d",
			ErrPublishFailed, method, url, resp.StatusCode)
	}

	return data, nil
}

func (a *HTTPAdapter) setConnected(v bool) {
	a.connMu.Lock()
	a.connected = v
	a.connMu.Unlock()
}
