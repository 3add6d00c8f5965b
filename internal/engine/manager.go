package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iotix/device-engine/internal/adapter"
	"github.com/iotix/device-engine/internal/device"
	"github.com/iotix/device-engine/internal/model"
)

const (
	defaultMaxDevices    = 10000
	defaultStatsInterval = 5 * time.Second
	defaultPageSize      = 100
	maxPageSize          = 1000
)

// Metrics source tags, mirrored on manager-level lifecycle events.
const (
	sourceSimulated = "simulated"
	sourcePhysical  = "physical"
)

// MetricsSink extends the device sink with the engine-level stats
// point emitted by the periodic stats task. The InfluxDB writer
// satisfies this.
type MetricsSink interface {
	device.MetricsSink
	WriteEngineStats(running, runningSimulated, runningPhysical, totalMessages, totalBytes, activeGroups int64)
}

// noopSink discards all data points. Used when no sink is configured.
type noopSink struct{}

func (noopSink) WriteTelemetry(string, string, string, string, map[string]any)           {}
func (noopSink) WriteDeviceEvent(string, string, string, string, string, map[string]any) {}
func (noopSink) WriteConnectionMetric(string, string, string, bool, float64)             {}
func (noopSink) WriteEngineStats(int64, int64, int64, int64, int64, int64)               {}

// Logger is the minimal logging interface the package depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is injected.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ====== Manager ======

// Config assembles the manager's collaborators and limits.
type Config struct {
	Registry *model.Registry
	Adapters adapter.Factory
	Binders  adapter.BinderFactory
	Sink     MetricsSink
	Defaults device.ConnectionDefaults

	// MaxDevices caps the catalogue size. Zero means the default of
	// 10000.
	MaxDevices int

	// StatsInterval is the cadence of the engine stats task. Zero
	// means the default of 5 s.
	StatsInterval time.Duration

	Logger Logger
}

// Manager owns the device catalogue and group index and orchestrates
// device lifecycle. One Manager runs per process.
//
// Thread Safety: all exported methods are safe for concurrent use.
// Catalogue and group mutations serialise on an internal mutex;
// device I/O always happens outside it.
type Manager struct {
	registry   *model.Registry
	adapters   adapter.Factory
	binders    adapter.BinderFactory
	sink       MetricsSink
	defaults   device.ConnectionDefaults
	maxDevices int
	statsEvery time.Duration
	logger     Logger

	mu      sync.RWMutex
	devices map[string]device.Device
	groups  map[string]map[string]struct{}

	statsCancel context.CancelFunc
	statsDone   chan struct{}
}

// New creates a Manager. Start must be called to run the stats task.
func New(cfg Config) *Manager {
	if cfg.Sink == nil {
		cfg.Sink = noopSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.MaxDevices <= 0 {
		cfg.MaxDevices = defaultMaxDevices
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = defaultStatsInterval
	}
	return &Manager{
		registry:   cfg.Registry,
		adapters:   cfg.Adapters,
		binders:    cfg.Binders,
		sink:       cfg.Sink,
		defaults:   cfg.Defaults,
		maxDevices: cfg.MaxDevices,
		statsEvery: cfg.StatsInterval,
		logger:     cfg.Logger,
		devices:    make(map[string]device.Device),
		groups:     make(map[string]map[string]struct{}),
	}
}

// Start launches the periodic stats task. Calling Start twice is a
// no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statsCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.statsCancel = cancel
	m.statsDone = make(chan struct{})
	go m.statsLoop(ctx, m.statsDone)
	m.logger.Info("device manager started",
		"max_devices", m.maxDevices,
		"stats_interval", m.statsEvery.String())
}

// Shutdown stops the stats task, stops every device concurrently and
// clears the catalogue. Stop errors are logged, not raised.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	cancel, done := m.statsCancel, m.statsDone
	m.statsCancel, m.statsDone = nil, nil
	victims := make([]device.Device, 0, len(m.devices))
	for _, d := range m.devices {
		victims = append(victims, d)
	}
	m.devices = make(map[string]device.Device)
	m.groups = make(map[string]map[string]struct{})
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	var wg sync.WaitGroup
	for _, d := range victims {
		wg.Add(1)
		go func(d device.Device) {
			defer wg.Done()
			if err := d.Stop(); err != nil {
				m.logger.Warn("shutdown: device stop failed", "device_id", d.ID(), "error", err)
			}
		}(d)
	}
	wg.Wait()
	m.logger.Info("device manager stopped", "devices", len(victims))
}

// ====== Device CRUD ======

// CreateOptions carries the optional parts of a device creation
// request.
type CreateOptions struct {
	// DeviceID sets an explicit ID. Empty means a generated
	// "<modelId>-<8 hex>" ID.
	DeviceID string

	// GroupID adds the device to a group on creation.
	GroupID string

	// Override narrows the model's connection settings for this one
	// device.
	Override *model.ConnectionConfig
}

// CreateDevice instantiates a device from a registered model and
// inserts it into the catalogue. The device starts in StatusCreated;
// nothing connects until Start.
func (m *Manager) CreateDevice(modelID string, opts CreateOptions) (device.Device, error) {
	mdl, err := m.registry.Get(modelID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if len(m.devices) >= m.maxDevices {
		n := len(m.devices)
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %d of %d in use", ErrCapacity, n, m.maxDevices)
	}
	id := opts.DeviceID
	if id == "" {
		id = newDeviceID(modelID)
	}
	if _, exists := m.devices[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDeviceExists, id)
	}

	var dev device.Device
	if mdl.Type == model.DeviceTypeProxy {
		dev = device.NewProxy(device.ProxyConfig{
			ID:      id,
			GroupID: opts.GroupID,
			Model:   mdl,
			Binder:  m.binders,
			Sink:    m.sink,
			Logger:  m.logger,
		})
	} else {
		dev = device.NewVirtual(device.VirtualConfig{
			ID:       id,
			GroupID:  opts.GroupID,
			Model:    mdl,
			Override: opts.Override,
			Defaults: m.defaults,
			Adapter:  m.adapters,
			Sink:     m.sink,
			Logger:   m.logger,
		})
	}

	m.devices[id] = dev
	if opts.GroupID != "" {
		members, ok := m.groups[opts.GroupID]
		if !ok {
			members = make(map[string]struct{})
			m.groups[opts.GroupID] = members
		}
		members[id] = struct{}{}
	}
	m.mu.Unlock()

	m.sink.WriteDeviceEvent(id, modelID, opts.GroupID, deviceSource(dev), "created", nil)
	m.logger.Info("device created",
		"device_id", id, "model_id", modelID, "group_id", opts.GroupID, "proxy", dev.IsProxy())
	return dev, nil
}

// GetDevice returns the catalogue entry for id.
func (m *Manager) GetDevice(id string) (device.Device, error) {
	m.mu.RLock()
	dev, ok := m.devices[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return dev, nil
}

// StartDevice starts the device. ctx bounds connection establishment.
func (m *Manager) StartDevice(ctx context.Context, id string) (device.Device, error) {
	dev, err := m.GetDevice(id)
	if err != nil {
		return nil, err
	}
	if err := dev.Start(ctx); err != nil {
		return nil, err
	}
	return dev, nil
}

// StopDevice stops the device. Stopping a device that is not running
// is a no-op.
func (m *Manager) StopDevice(id string) (device.Device, error) {
	dev, err := m.GetDevice(id)
	if err != nil {
		return nil, err
	}
	if err := dev.Stop(); err != nil {
		return nil, err
	}
	return dev, nil
}

// DeleteDevice removes the device from the catalogue and group index,
// stopping it first if it runs. The stop happens after the catalogue
// entry is gone so a long adapter teardown never blocks other
// mutations.
func (m *Manager) DeleteDevice(id string) error {
	m.mu.Lock()
	dev, ok := m.devices[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	delete(m.devices, id)
	m.removeFromGroupLocked(dev.GroupID(), id)
	m.mu.Unlock()

	if err := dev.Stop(); err != nil {
		m.logger.Warn("delete: device stop failed", "device_id", id, "error", err)
	}
	m.sink.WriteDeviceEvent(id, dev.ModelID(), dev.GroupID(), deviceSource(dev), "deleted", nil)
	m.logger.Info("device deleted", "device_id", id)
	return nil
}

// removeFromGroupLocked drops id from groupID's member set and removes
// the group entry when it empties. Caller holds mu.
func (m *Manager) removeFromGroupLocked(groupID, id string) {
	if groupID == "" {
		return
	}
	members, ok := m.groups[groupID]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(m.groups, groupID)
	}
}

// ====== Listing ======

// ListFilter narrows and paginates a device listing. Zero values mean
// no filter, first page, default page size.
type ListFilter struct {
	Status   string
	GroupID  string
	ModelID  string
	Page     int
	PageSize int
}

// DeviceList is one page of device snapshots.
type DeviceList struct {
	Items    []device.Snapshot `json:"items"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
	HasMore  bool              `json:"hasMore"`
}

// ListDevices returns a filtered, ID-sorted page of the catalogue.
func (m *Manager) ListDevices(f ListFilter) DeviceList {
	page := f.Page
	if page < 1 {
		page = 1
	}
	size := f.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	m.mu.RLock()
	all := make([]device.Device, 0, len(m.devices))
	for _, d := range m.devices {
		all = append(all, d)
	}
	m.mu.RUnlock()

	matched := make([]device.Snapshot, 0, len(all))
	for _, d := range all {
		s := d.Snapshot()
		if f.Status != "" && string(s.Status) != f.Status {
			continue
		}
		if f.GroupID != "" && s.GroupID != f.GroupID {
			continue
		}
		if f.ModelID != "" && s.ModelID != f.ModelID {
			continue
		}
		matched = append(matched, s)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := len(matched)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return DeviceList{
		Items:    matched[start:end],
		Total:    total,
		Page:     page,
		PageSize: size,
		HasMore:  end < total,
	}
}

// ====== Proxy Bindings ======

// BindDevice attaches an inbound binding to a proxy device. Binding a
// bound device replaces the previous binding. Returns the webhook path
// for HTTP bindings, empty otherwise.
func (m *Manager) BindDevice(ctx context.Context, id string, cfg model.BindingConfig) (string, error) {
	if err := model.ValidateBinding(&cfg); err != nil {
		return "", err
	}
	proxy, err := m.proxyDevice(id)
	if err != nil {
		return "", err
	}
	return proxy.Bind(ctx, cfg)
}

// UnbindDevice releases a proxy device's inbound binding. Unbinding an
// unbound device is a no-op.
func (m *Manager) UnbindDevice(id string) error {
	proxy, err := m.proxyDevice(id)
	if err != nil {
		return err
	}
	return proxy.Unbind()
}

// DeviceBinding reports a proxy device's binding state.
func (m *Manager) DeviceBinding(id string) (device.BindingStatus, error) {
	proxy, err := m.proxyDevice(id)
	if err != nil {
		return device.BindingStatus{}, err
	}
	return proxy.BindingStatus(), nil
}

func (m *Manager) proxyDevice(id string) (*device.ProxyDevice, error) {
	dev, err := m.GetDevice(id)
	if err != nil {
		return nil, err
	}
	proxy, ok := dev.(*device.ProxyDevice)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotProxy, id)
	}
	return proxy, nil
}

// ====== Stats ======

// Stats aggregates the engine's current shape for the stats endpoint
// and the periodic engine_stats data point.
type Stats struct {
	TotalDevices     int   `json:"totalDevices"`
	RunningDevices   int   `json:"runningDevices"`
	RunningSimulated int   `json:"runningSimulated"`
	RunningPhysical  int   `json:"runningPhysical"`
	TotalMessages    int64 `json:"totalMessages"`
	TotalBytes       int64 `json:"totalBytes"`
	ActiveGroups     int   `json:"activeGroups"`
	TotalModels      int   `json:"totalModels"`
	MaxDevices       int   `json:"maxDevices"`
}

// Stats walks the catalogue and sums device counters. Counters are
// read without stopping the devices, so totals are advisory.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	all := make([]device.Device, 0, len(m.devices))
	for _, d := range m.devices {
		all = append(all, d)
	}
	groups := 0
	for _, members := range m.groups {
		if len(members) > 0 {
			groups++
		}
	}
	m.mu.RUnlock()

	st := Stats{
		TotalDevices: len(all),
		ActiveGroups: groups,
		TotalModels:  m.registry.Count(),
		MaxDevices:   m.maxDevices,
	}
	for _, d := range all {
		if d.Status() == device.StatusRunning {
			st.RunningDevices++
			if d.IsProxy() {
				st.RunningPhysical++
			} else {
				st.RunningSimulated++
			}
		}
		met := d.Metrics()
		st.TotalMessages += met.MessagesSent + met.MessagesReceived
		st.TotalBytes += met.BytesSent + met.BytesReceived
	}
	return st
}

// statsLoop hands aggregates to the metrics writer on a fixed cadence
// until Shutdown cancels it.
func (m *Manager) statsLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.statsEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := m.Stats()
			m.sink.WriteEngineStats(
				int64(st.RunningDevices),
				int64(st.RunningSimulated),
				int64(st.RunningPhysical),
				st.TotalMessages,
				st.TotalBytes,
				int64(st.ActiveGroups),
			)
		}
	}
}

// ====== Helpers ======

// newDeviceID generates "<modelId>-<8 hex>" IDs, short enough to read
// in topic names yet unique within a run.
func newDeviceID(modelID string) string {
	return modelID + "-" + uuid.NewString()[:8]
}

func newGroupID() string {
	return "group-" + uuid.NewString()[:8]
}

func deviceSource(d device.Device) string {
	if d.IsProxy() {
		return sourcePhysical
	}
	return sourceSimulated
}
