package adapter

import "sync"

// WebhookRegistry maps device IDs to inbound telemetry handlers. The
// HTTP API dispatches webhook posts through it, and HTTP proxy
// bindings register themselves here on Bind.
//
// Thread Safety: safe for concurrent use.
type WebhookRegistry struct {
	mu       sync.RWMutex
	handlers map[string]TelemetryHandler
}

// NewWebhookRegistry creates an empty registry.
func NewWebhookRegistry() *WebhookRegistry {
	return &WebhookRegistry{
		handlers: make(map[string]TelemetryHandler),
	}
}

// Register installs the handler for a device, replacing any previous
// one. Device IDs are unique engine-wide, so replacement only happens
// when a proxy device is rebound.
func (r *WebhookRegistry) Register(deviceID string, handler TelemetryHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[deviceID] = handler
}

// Unregister removes the handler for a device. Removing an unknown
// device is a no-op.
func (r *WebhookRegistry) Unregister(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, deviceID)
}

// Dispatch routes a payload to the device's handler. size is the wire
// size of the original request body. Returns false when no binding
// exists. The handler runs outside the registry lock.
func (r *WebhookRegistry) Dispatch(deviceID string, payload map[string]any, size int) bool {
	r.mu.RLock()
	handler, ok := r.handlers[deviceID]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	handler(payload, size)
	return true
}

// Has reports whether a handler is registered for the device.
func (r *WebhookRegistry) Has(deviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[deviceID]
	return ok
}

// Count returns the number of registered handlers.
func (r *WebhookRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
