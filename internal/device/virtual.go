package device

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iotix/device-engine/internal/adapter"
	"github.com/iotix/device-engine/internal/generator"
	"github.com/iotix/device-engine/internal/model"
)

// VirtualConfig assembles a virtual device's collaborators.
type VirtualConfig struct {
	ID       string
	GroupID  string
	Model    *model.DeviceModel
	Override *model.ConnectionConfig
	Defaults ConnectionDefaults
	Adapter  adapter.Factory
	Sink     MetricsSink
	Logger   Logger
}

// VirtualDevice is one running instance of a device model. It owns a
// protocol adapter and one telemetry goroutine per attribute, and
// maintains lifecycle status plus monotone counters.
//
// Thread Safety: all exported methods are safe for concurrent use.
// Start and Stop serialise on an operation mutex; state reads take a
// read lock and never block the telemetry loops.
type VirtualDevice struct {
	id       string
	groupID  string
	mdl      *model.DeviceModel
	override *model.ConnectionConfig
	defaults ConnectionDefaults
	factory  adapter.Factory
	sink     MetricsSink
	logger   Logger

	// opMu serialises lifecycle operations so concurrent Start/Stop
	// calls cannot interleave adapter construction and teardown.
	opMu sync.Mutex

	mu              sync.RWMutex
	status          Status
	connState       ConnectionState
	adapter         adapter.ProtocolAdapter
	cancel          context.CancelFunc
	errorMsg        string
	createdAt       time.Time
	startedAt       *time.Time
	lastTelemetryAt *time.Time
	lastTelemetry   map[string]any
	customState     map[string]any

	wg sync.WaitGroup

	messagesSent atomic.Int64
	bytesSent    atomic.Int64
	errorCount   atomic.Int64
	connCount    atomic.Int64
}

// NewVirtual creates a virtual device in StatusCreated. No adapter
// exists and no goroutines run until Start.
func NewVirtual(cfg VirtualConfig) *VirtualDevice {
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	sink := cfg.Sink
	if sink == nil {
		sink = noopSink{}
	}

	return &VirtualDevice{
		id:            cfg.ID,
		groupID:       cfg.GroupID,
		mdl:           cfg.Model,
		override:      cfg.Override,
		defaults:      cfg.Defaults,
		factory:       cfg.Adapter,
		sink:          sink,
		logger:        logger,
		status:        StatusCreated,
		connState:     ConnDisconnected,
		createdAt:     time.Now().UTC(),
		lastTelemetry: make(map[string]any),
		customState:   make(map[string]any),
	}
}

// ID returns the device's unique identifier.
func (d *VirtualDevice) ID() string { return d.id }

// ModelID returns the id of the model this device was built from.
func (d *VirtualDevice) ModelID() string { return d.mdl.ID }

// GroupID returns the device's group, or "" when ungrouped.
func (d *VirtualDevice) GroupID() string { return d.groupID }

// IsProxy reports false; virtual devices generate their own telemetry.
func (d *VirtualDevice) IsProxy() bool { return false }

// Status returns the current lifecycle state.
func (d *VirtualDevice) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// ====== Lifecycle ======

// Start connects the adapter and launches one telemetry goroutine per
// attribute. Valid from created, stopped, or error; a no-op when
// already running. On failure the device lands in StatusError with
// the cause recorded, and may be started again.
//
// ctx bounds connection establishment. The telemetry loops run on the
// device's own lifetime and stop only via Stop.
func (d *VirtualDevice) Start(ctx context.Context) error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	if d.Status() == StatusRunning {
		return nil
	}

	d.mu.Lock()
	d.status = StatusStarting
	d.errorMsg = ""
	d.mu.Unlock()

	conn, clientPattern := EffectiveConnection(d.mdl, d.override, d.defaults)
	conn.ClientID = d.resolve(clientPattern)

	ad, err := d.factory(d.mdl.Protocol, conn)
	if err != nil {
		return d.failStart(err)
	}

	d.setConnState(ConnConnecting)
	dialStart := time.Now()
	if err := ad.Connect(ctx); err != nil {
		return d.failStart(err)
	}
	latency := float64(time.Since(dialStart).Milliseconds())

	d.connCount.Add(1)
	d.sink.WriteConnectionMetric(d.id, string(d.mdl.Protocol), sourceSimulated, true, latency)

	// Telemetry outlives ctx: the start request's deadline must not
	// cancel loops minutes later. Stop owns their shutdown.
	loopCtx, cancel := context.WithCancel(context.Background())

	now := time.Now().UTC()
	d.mu.Lock()
	d.adapter = ad
	d.cancel = cancel
	d.startedAt = &now
	d.connState = ConnConnected
	d.mu.Unlock()

	for i := range d.mdl.Telemetry {
		attr := d.mdl.Telemetry[i]
		gen := generator.New(attr.Generator)
		d.wg.Add(1)
		go d.telemetryLoop(loopCtx, ad, attr, gen, conn.TopicPattern, conn.QoS)
	}

	d.setStatus(StatusRunning)
	d.sink.WriteDeviceEvent(d.id, d.mdl.ID, d.groupID, sourceSimulated, "started", nil)
	d.logger.Info("device started",
		"device_id", d.id,
		"model_id", d.mdl.ID,
		"protocol", string(d.mdl.Protocol),
		"attributes", len(d.mdl.Telemetry),
		"connect_ms", latency,
	)
	return nil
}

// Stop cancels the telemetry loops, awaits their exit, and disconnects
// the adapter. A no-op unless the device is running.
func (d *VirtualDevice) Stop() error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	if d.Status() != StatusRunning {
		return nil
	}

	d.setStatus(StatusStopping)

	d.mu.Lock()
	cancel := d.cancel
	ad := d.adapter
	d.cancel = nil
	d.adapter = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()

	if ad != nil {
		if err := ad.Disconnect(); err != nil {
			d.logger.Warn("adapter disconnect failed", "device_id", d.id, "error", err)
		}
	}

	d.mu.Lock()
	d.connState = ConnDisconnected
	d.status = StatusStopped
	d.mu.Unlock()

	d.sink.WriteConnectionMetric(d.id, string(d.mdl.Protocol), sourceSimulated, false, 0)
	d.sink.WriteDeviceEvent(d.id, d.mdl.ID, d.groupID, sourceSimulated, "stopped", nil)
	d.logger.Info("device stopped", "device_id", d.id)
	return nil
}

// failStart records a start failure: StatusError, the cause, and a
// disconnected connection metric. Caller still holds opMu.
func (d *VirtualDevice) failStart(err error) error {
	d.errorCount.Add(1)

	d.mu.Lock()
	d.status = StatusError
	d.connState = ConnDisconnected
	d.errorMsg = err.Error()
	d.mu.Unlock()

	d.sink.WriteConnectionMetric(d.id, string(d.mdl.Protocol), sourceSimulated, false, 0)
	d.logger.Error("device start failed", "device_id", d.id, "model_id", d.mdl.ID, "error", err)
	return fmt.Errorf("start device %s: %w", d.id, err)
}

// ====== Telemetry ======

// telemetryLoop emits one attribute on its own cadence until cancelled.
// Publish failures are counted and logged; the loop keeps its cadence.
// One attribute failing never tears down the others.
func (d *VirtualDevice) telemetryLoop(ctx context.Context, ad adapter.ProtocolAdapter, attr model.TelemetryAttribute, gen generator.ValueGenerator, topicPattern string, qos byte) {
	defer d.wg.Done()

	pattern := attr.Topic
	if pattern == "" {
		pattern = topicPattern
	}
	if pattern == "" {
		pattern = defaultTopicPattern
	}
	topic := d.resolve(pattern)

	interval := time.Duration(attr.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		d.emit(ctx, ad, attr, gen, topic, qos)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(interval)

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// emit generates and publishes one value. Skips the publish while the
// adapter has no live connection; the value still lands in the
// last-telemetry memo so templates and metrics stay current.
func (d *VirtualDevice) emit(ctx context.Context, ad adapter.ProtocolAdapter, attr model.TelemetryAttribute, gen generator.ValueGenerator, topic string, qos byte) {
	value := gen.Generate()

	d.mu.Lock()
	d.lastTelemetry[attr.Name] = value
	d.mu.Unlock()

	if !ad.IsConnected() {
		return
	}

	payload := map[string]any{
		"deviceId":  d.id,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		attr.Name:   value,
	}
	if attr.Unit != "" {
		payload["unit"] = attr.Unit
	}

	body, err := json.Marshal(payload)
	if err != nil {
		d.errorCount.Add(1)
		d.logger.Error("telemetry encode failed", "device_id", d.id, "attribute", attr.Name, "error", err)
		return
	}

	if err := ad.Publish(ctx, topic, payload, qos); err != nil {
		// Cancellation during Stop is not a device error.
		if ctx.Err() != nil {
			return
		}
		d.errorCount.Add(1)
		d.logger.Warn("telemetry publish failed",
			"device_id", d.id,
			"attribute", attr.Name,
			"topic", topic,
			"error", err,
		)
		return
	}

	d.messagesSent.Add(1)
	d.bytesSent.Add(int64(len(body)))

	now := time.Now().UTC()
	d.mu.Lock()
	d.lastTelemetryAt = &now
	d.mu.Unlock()

	d.sink.WriteTelemetry(d.id, d.mdl.ID, d.groupID, sourceSimulated, payload)
}

// ====== Views ======

// Snapshot returns the control-plane view. The connection state is
// derived live: a running device whose adapter lost its connection
// reports reconnecting while the protocol client retries.
func (d *VirtualDevice) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	state := d.connState
	if d.status == StatusRunning && d.adapter != nil && !d.adapter.IsConnected() {
		state = ConnReconnecting
	}

	snap := Snapshot{
		ID:              d.id,
		ModelID:         d.mdl.ID,
		Type:            string(d.mdl.Type),
		Status:          d.status,
		ConnectionState: state,
		GroupID:         d.groupID,
		CreatedAt:       d.createdAt,
		ErrorMessage:    d.errorMsg,
	}
	if d.startedAt != nil {
		t := *d.startedAt
		snap.StartedAt = &t
	}
	if d.lastTelemetryAt != nil {
		t := *d.lastTelemetryAt
		snap.LastTelemetryAt = &t
	}
	return snap
}

// Metrics returns counters plus the last value of every attribute.
// Counter reads are atomic; a snapshot taken mid-publish may be torn
// across counters, which is acceptable for advisory metrics.
func (d *VirtualDevice) Metrics() Metrics {
	d.mu.RLock()
	last := make(map[string]any, len(d.lastTelemetry))
	for k, v := range d.lastTelemetry {
		last[k] = v
	}
	running := d.status == StatusRunning
	startedAt := d.startedAt
	d.mu.RUnlock()

	var uptime float64
	if running && startedAt != nil {
		uptime = time.Since(*startedAt).Seconds()
	}

	return Metrics{
		DeviceID:        d.id,
		MessagesSent:    d.messagesSent.Load(),
		BytesSent:       d.bytesSent.Load(),
		ErrorCount:      d.errorCount.Load(),
		ConnectionCount: d.connCount.Load(),
		UptimeSeconds:   uptime,
		LastTelemetry:   last,
	}
}

// SetCustomState stores a per-device key available to template
// resolution as ${key}.
func (d *VirtualDevice) SetCustomState(key string, value any) {
	d.mu.Lock()
	d.customState[key] = value
	d.mu.Unlock()
}

// resolve runs the template resolver against this device's identity
// and current state.
func (d *VirtualDevice) resolve(tpl string) string {
	d.mu.RLock()
	last := make(map[string]any, len(d.lastTelemetry))
	for k, v := range d.lastTelemetry {
		last[k] = v
	}
	custom := make(map[string]any, len(d.customState))
	for k, v := range d.customState {
		custom[k] = v
	}
	d.mu.RUnlock()

	return ResolveTemplate(tpl, d.id, d.mdl.ID, last, custom)
}

func (d *VirtualDevice) setStatus(s Status) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}

func (d *VirtualDevice) setConnState(s ConnectionState) {
	d.mu.Lock()
	d.connState = s
	d.mu.Unlock()
}
