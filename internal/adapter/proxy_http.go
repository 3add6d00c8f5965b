package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/iotix/device-engine/internal/infrastructure/logging"
	"github.com/iotix/device-engine/internal/model"
)

// webhookPathPrefix is where the REST API exposes webhook endpoints.
const webhookPathPrefix = "/api/v1/webhooks/"

// HTTPProxy receives telemetry for a proxy device through the
// engine's webhook endpoint. Bind registers the device in the shared
// WebhookRegistry; the API layer dispatches inbound posts by device
// ID.
type HTTPProxy struct {
	deviceID string
	binding  model.BindingConfig
	registry *WebhookRegistry
	logger   *logging.Logger

	mu    sync.RWMutex
	bound bool
	path  string
}

// NewHTTPProxy creates an unbound webhook binding.
func NewHTTPProxy(deviceID string, binding model.BindingConfig, registry *WebhookRegistry, logger *logging.Logger) *HTTPProxy {
	if logger == nil {
		logger = logging.Default()
	}
	return &HTTPProxy{
		deviceID: deviceID,
		binding:  binding,
		registry: registry,
		logger:   logger.With("component", "http-proxy", "device_id", deviceID),
	}
}

// Bind registers the telemetry handler and returns the webhook path
// external systems should POST to. A custom path from the binding
// config is returned as-is; the registry itself is always keyed by
// device ID.
func (p *HTTPProxy) Bind(ctx context.Context, onTelemetry TelemetryHandler) (string, error) {
	if onTelemetry == nil {
		return "", fmt.Errorf("%w: nil telemetry handler", ErrSubscribeFailed)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	path := p.binding.WebhookPath
	if path == "" {
		path = webhookPathPrefix + p.deviceID
	}

	p.registry.Register(p.deviceID, onTelemetry)

	p.mu.Lock()
	p.bound = true
	p.path = path
	p.mu.Unlock()

	p.logger.Info("webhook binding established", "path", path)
	return path, nil
}

// Unbind removes the webhook registration.
func (p *HTTPProxy) Unbind() error {
	p.registry.Unregister(p.deviceID)

	p.mu.Lock()
	p.bound = false
	p.mu.Unlock()

	p.logger.Info("webhook binding released", "path", p.Path())
	return nil
}

// IsConnected reports whether the webhook is registered. HTTP
// bindings have no transport connection to lose.
func (p *HTTPProxy) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bound
}

// Path returns the webhook path assigned at Bind, or "" before
// binding.
func (p *HTTPProxy) Path() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.path
}
