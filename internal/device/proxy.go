package device

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iotix/device-engine/internal/adapter"
	"github.com/iotix/device-engine/internal/model"
)

// ProxyConfig assembles a proxy device's collaborators.
type ProxyConfig struct {
	ID      string
	GroupID string
	Model   *model.DeviceModel
	Binder  adapter.BinderFactory
	Sink    MetricsSink
	Logger  Logger
}

// ProxyDevice mirrors telemetry from a real external device into the
// metrics pipeline. It holds no generators; data arrives through an
// inbound binding and is recorded with source=physical. messagesSent
// and bytesSent stay zero for the device's whole lifetime.
//
// Thread Safety: all exported methods are safe for concurrent use.
type ProxyDevice struct {
	id      string
	groupID string
	mdl     *model.DeviceModel
	factory adapter.BinderFactory
	sink    MetricsSink
	logger  Logger

	// opMu serialises Bind/Unbind/Start/Stop.
	opMu sync.Mutex

	mu              sync.RWMutex
	status          Status
	connState       ConnectionState
	binder          adapter.InboundBinder
	binding         *model.BindingConfig
	webhookPath     string
	errorMsg        string
	createdAt       time.Time
	boundAt         *time.Time
	lastTelemetryAt *time.Time
	lastTelemetry   map[string]any

	messagesReceived atomic.Int64
	bytesReceived    atomic.Int64
	errorCount       atomic.Int64
	connCount        atomic.Int64
}

// NewProxy creates a proxy device in StatusCreated. Nothing is bound
// until Bind.
func NewProxy(cfg ProxyConfig) *ProxyDevice {
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	sink := cfg.Sink
	if sink == nil {
		sink = noopSink{}
	}

	return &ProxyDevice{
		id:            cfg.ID,
		groupID:       cfg.GroupID,
		mdl:           cfg.Model,
		factory:       cfg.Binder,
		sink:          sink,
		logger:        logger,
		status:        StatusCreated,
		connState:     ConnDisconnected,
		createdAt:     time.Now().UTC(),
		lastTelemetry: make(map[string]any),
	}
}

// ID returns the device's unique identifier.
func (p *ProxyDevice) ID() string { return p.id }

// ModelID returns the id of the model this device was built from.
func (p *ProxyDevice) ModelID() string { return p.mdl.ID }

// GroupID returns the device's group, or "" when ungrouped.
func (p *ProxyDevice) GroupID() string { return p.groupID }

// IsProxy reports true.
func (p *ProxyDevice) IsProxy() bool { return true }

// Status returns the current lifecycle state.
func (p *ProxyDevice) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// ====== Binding ======

// Bind attaches the device to an external telemetry source and moves
// it to StatusRunning. Binding an already bound device releases the
// previous binding first. For HTTP bindings the returned path is the
// webhook endpoint external systems POST to; other protocols return
// "".
func (p *ProxyDevice) Bind(ctx context.Context, cfg model.BindingConfig) (string, error) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.releaseBinder()

	p.mu.Lock()
	p.status = StatusStarting
	p.connState = ConnConnecting
	p.errorMsg = ""
	p.mu.Unlock()

	binder, err := p.factory(p.id, cfg)
	if err != nil {
		return "", p.failBind(cfg.Protocol, err)
	}

	dialStart := time.Now()
	path, err := binder.Bind(ctx, p.onTelemetry)
	if err != nil {
		return "", p.failBind(cfg.Protocol, err)
	}
	latency := float64(time.Since(dialStart).Milliseconds())

	now := time.Now().UTC()
	binding := cfg
	p.mu.Lock()
	p.binder = binder
	p.binding = &binding
	p.webhookPath = path
	p.boundAt = &now
	p.status = StatusRunning
	p.connState = ConnConnected
	p.mu.Unlock()

	p.connCount.Add(1)
	p.sink.WriteConnectionMetric(p.id, cfg.Protocol, sourcePhysical, true, latency)
	p.sink.WriteDeviceEvent(p.id, p.mdl.ID, p.groupID, sourcePhysical, "bound", map[string]any{
		"protocol": cfg.Protocol,
	})
	p.logger.Info("proxy device bound",
		"device_id", p.id,
		"protocol", cfg.Protocol,
		"topic", cfg.Topic,
		"webhook_path", path,
	)
	return path, nil
}

// Unbind releases the binding and moves the device to StatusStopped.
// The last binding config is retained so Start can re-bind. A no-op
// when nothing is bound.
func (p *ProxyDevice) Unbind() error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.RLock()
	bound := p.binder != nil
	proto := ""
	if p.binding != nil {
		proto = p.binding.Protocol
	}
	p.mu.RUnlock()

	if !bound {
		return nil
	}

	p.releaseBinder()

	p.mu.Lock()
	p.status = StatusStopped
	p.connState = ConnDisconnected
	p.mu.Unlock()

	p.sink.WriteConnectionMetric(p.id, proto, sourcePhysical, false, 0)
	p.sink.WriteDeviceEvent(p.id, p.mdl.ID, p.groupID, sourcePhysical, "unbound", nil)
	p.logger.Info("proxy device unbound", "device_id", p.id)
	return nil
}

// Start re-binds the last binding. Binding config arrives through
// Bind; a proxy that was never bound cannot start.
func (p *ProxyDevice) Start(ctx context.Context) error {
	if p.Status() == StatusRunning {
		return nil
	}

	p.mu.RLock()
	binding := p.binding
	p.mu.RUnlock()
	if binding == nil {
		return fmt.Errorf("%w: device %s", ErrNotBound, p.id)
	}

	_, err := p.Bind(ctx, *binding)
	return err
}

// Stop delegates to Unbind.
func (p *ProxyDevice) Stop() error {
	return p.Unbind()
}

// failBind records a bind failure. Caller still holds opMu.
func (p *ProxyDevice) failBind(protocol string, err error) error {
	p.errorCount.Add(1)

	p.mu.Lock()
	p.status = StatusError
	p.connState = ConnDisconnected
	p.errorMsg = err.Error()
	p.mu.Unlock()

	p.sink.WriteConnectionMetric(p.id, protocol, sourcePhysical, false, 0)
	p.logger.Error("proxy bind failed", "device_id", p.id, "protocol", protocol, "error", err)
	return fmt.Errorf("bind device %s: %w", p.id, err)
}

// releaseBinder unbinds the current binder, if any, logging failures.
// Caller holds opMu; boundAt and webhookPath are cleared.
func (p *ProxyDevice) releaseBinder() {
	p.mu.Lock()
	binder := p.binder
	p.binder = nil
	p.webhookPath = ""
	p.boundAt = nil
	p.mu.Unlock()

	if binder == nil {
		return
	}
	if err := binder.Unbind(); err != nil {
		p.logger.Warn("binder release failed", "device_id", p.id, "error", err)
	}
}

// onTelemetry handles one inbound frame: counters, memo, sink. size is
// the frame's wire size so bytesReceived reflects exactly what
// arrived.
func (p *ProxyDevice) onTelemetry(payload map[string]any, size int) {
	p.messagesReceived.Add(1)
	p.bytesReceived.Add(int64(size))

	now := time.Now().UTC()
	p.mu.Lock()
	p.lastTelemetryAt = &now
	for k, v := range payload {
		p.lastTelemetry[k] = v
	}
	p.mu.Unlock()

	p.sink.WriteTelemetry(p.id, p.mdl.ID, p.groupID, sourcePhysical, payload)
}

// ====== Views ======

// Snapshot returns the control-plane view, including the binding and
// webhook path when bound.
func (p *ProxyDevice) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	state := p.connState
	if p.status == StatusRunning && p.binder != nil && !p.binder.IsConnected() {
		state = ConnReconnecting
	}

	snap := Snapshot{
		ID:              p.id,
		ModelID:         p.mdl.ID,
		Type:            string(p.mdl.Type),
		Status:          p.status,
		ConnectionState: state,
		GroupID:         p.groupID,
		CreatedAt:       p.createdAt,
		ErrorMessage:    p.errorMsg,
		WebhookPath:     p.webhookPath,
	}
	if p.binding != nil {
		b := *p.binding
		snap.Binding = &b
	}
	if p.boundAt != nil {
		t := *p.boundAt
		snap.BoundAt = &t
	}
	if p.lastTelemetryAt != nil {
		t := *p.lastTelemetryAt
		snap.LastTelemetryAt = &t
	}
	return snap
}

// Metrics returns counters plus the last mirrored payload values.
// MessagesSent and BytesSent are zero by definition.
func (p *ProxyDevice) Metrics() Metrics {
	p.mu.RLock()
	last := make(map[string]any, len(p.lastTelemetry))
	for k, v := range p.lastTelemetry {
		last[k] = v
	}
	running := p.status == StatusRunning
	boundAt := p.boundAt
	p.mu.RUnlock()

	var uptime float64
	if running && boundAt != nil {
		uptime = time.Since(*boundAt).Seconds()
	}

	return Metrics{
		DeviceID:         p.id,
		MessagesReceived: p.messagesReceived.Load(),
		BytesReceived:    p.bytesReceived.Load(),
		ErrorCount:       p.errorCount.Load(),
		ConnectionCount:  p.connCount.Load(),
		UptimeSeconds:    uptime,
		LastTelemetry:    last,
	}
}

// BindingStatus reports the binding's current shape. After Unbind the
// last config is still shown with Bound false.
func (p *ProxyDevice) BindingStatus() BindingStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := BindingStatus{
		Bound:       p.binder != nil,
		WebhookPath: p.webhookPath,
	}
	if p.binding != nil {
		st.Protocol = p.binding.Protocol
		st.Broker = p.binding.Broker
		st.Port = p.binding.Port
		st.Topic = p.binding.Topic
		st.ResourceURI = p.binding.ResourceURI
	}
	if p.boundAt != nil {
		t := *p.boundAt
		st.BoundAt = &t
	}
	return st
}
