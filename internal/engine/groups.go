package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iotix/device-engine/internal/device"
)

// Launch strategies for group starts. Names are matched
// case-insensitively on the wire.
const (
	LaunchImmediate   = "immediate"
	LaunchLinear      = "linear"
	LaunchBatch       = "batch"
	LaunchExponential = "exponential"
)

const (
	defaultIDPattern        = "device-{index}"
	defaultBatchSize        = 10
	defaultLaunchBase       = 2.0
	defaultMaxLaunchDelayMs = 30000
)

// GroupSpec describes a bulk device creation request.
type GroupSpec struct {
	ModelID string
	Count   int

	// GroupID names the group. Empty means a generated
	// "group-<8 hex>" ID.
	GroupID string

	// IDPattern shapes member IDs; "{index}" and "{groupId}" are
	// substituted per device. Empty means "device-{index}".
	IDPattern string

	// StaggerMs is the pause between member creations.
	StaggerMs int
}

// GroupResult summarises a group creation.
type GroupResult struct {
	GroupID string            `json:"groupId"`
	Count   int               `json:"count"`
	Devices []device.Snapshot `json:"devices"`
}

// LaunchConfig tunes how a group start paces its device starts.
type LaunchConfig struct {
	Strategy   string  `json:"strategy"`
	DelayMs    int     `json:"delayMs"`
	BatchSize  int     `json:"batchSize"`
	Base       float64 `json:"base"`
	MaxDelayMs int     `json:"maxDelayMs"`
}

// StartResult summarises a group start.
type StartResult struct {
	GroupID        string `json:"groupId"`
	Strategy       string `json:"strategy"`
	DevicesStarted int    `json:"devicesStarted"`
	DevicesFailed  int    `json:"devicesFailed"`
	DevicesTotal   int    `json:"devicesTotal"`
}

// StopResult summarises a group stop.
type StopResult struct {
	GroupID        string `json:"groupId"`
	DevicesStopped int    `json:"devicesStopped"`
	DevicesTotal   int    `json:"devicesTotal"`
}

// CreateGroup creates spec.Count devices from one model under a shared
// group ID, pausing spec.StaggerMs between creations. A failed
// creation aborts the remainder; devices created before the failure
// remain in the catalogue.
func (m *Manager) CreateGroup(ctx context.Context, spec GroupSpec) (GroupResult, error) {
	if spec.Count <= 0 {
		return GroupResult{}, fmt.Errorf("%w: device count must be positive, got %d", ErrInvalidRequest, spec.Count)
	}
	groupID := spec.GroupID
	if groupID == "" {
		groupID = newGroupID()
	}
	pattern := spec.IDPattern
	if pattern == "" {
		pattern = defaultIDPattern
	}

	result := GroupResult{GroupID: groupID, Devices: make([]device.Snapshot, 0, spec.Count)}
	for i := 0; i < spec.Count; i++ {
		if i > 0 && spec.StaggerMs > 0 {
			if !sleepCtx(ctx, time.Duration(spec.StaggerMs)*time.Millisecond) {
				return result, ctx.Err()
			}
		}
		id := strings.ReplaceAll(pattern, "{index}", strconv.Itoa(i))
		id = strings.ReplaceAll(id, "{groupId}", groupID)
		dev, err := m.CreateDevice(spec.ModelID, CreateOptions{DeviceID: id, GroupID: groupID})
		if err != nil {
			return result, fmt.Errorf("create group %s member %d: %w", groupID, i, err)
		}
		result.Devices = append(result.Devices, dev.Snapshot())
		result.Count++
	}
	m.logger.Info("group created", "group_id", groupID, "model_id", spec.ModelID, "count", result.Count)
	return result, nil
}

// StartGroup starts the group's non-running members using the
// effective launch configuration: an explicit cfg wins, else
// staggerMs>0 selects LINEAR with that delay, else IMMEDIATE.
// Individual start failures are logged and counted, never aborting the
// group.
func (m *Manager) StartGroup(ctx context.Context, groupID string, staggerMs int, cfg *LaunchConfig) (StartResult, error) {
	launch, err := effectiveLaunch(cfg, staggerMs)
	if err != nil {
		return StartResult{}, err
	}
	members, err := m.groupMembers(groupID)
	if err != nil {
		return StartResult{}, err
	}

	pending := make([]device.Device, 0, len(members))
	for _, d := range members {
		if d.Status() != device.StatusRunning {
			pending = append(pending, d)
		}
	}

	m.logger.Info("group start",
		"group_id", groupID, "strategy", launch.Strategy,
		"pending", len(pending), "total", len(members))

	var started int
	switch launch.Strategy {
	case LaunchLinear:
		started = m.startLinear(ctx, pending, launch)
	case LaunchBatch:
		started = m.startBatched(ctx, pending, launch)
	case LaunchExponential:
		started = m.startExponential(ctx, pending, launch)
	default:
		started = m.startConcurrent(ctx, pending)
	}

	return StartResult{
		GroupID:        groupID,
		Strategy:       launch.Strategy,
		DevicesStarted: started,
		DevicesFailed:  len(pending) - started,
		DevicesTotal:   len(members),
	}, nil
}

// StopGroup sequentially stops the group's running members.
func (m *Manager) StopGroup(groupID string) (StopResult, error) {
	members, err := m.groupMembers(groupID)
	if err != nil {
		return StopResult{}, err
	}
	stopped := 0
	for _, d := range members {
		if d.Status() != device.StatusRunning {
			continue
		}
		if err := d.Stop(); err != nil {
			m.logger.Warn("group stop: device stop failed", "device_id", d.ID(), "error", err)
			continue
		}
		stopped++
	}
	m.logger.Info("group stopped", "group_id", groupID, "stopped", stopped, "total", len(members))
	return StopResult{GroupID: groupID, DevicesStopped: stopped, DevicesTotal: len(members)}, nil
}

// DeleteGroup deletes every member of the group, stopping running
// devices first, and returns the count deleted.
func (m *Manager) DeleteGroup(groupID string) (int, error) {
	members, err := m.groupMembers(groupID)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, d := range members {
		if err := m.DeleteDevice(d.ID()); err != nil {
			// Raced with a concurrent delete; the member is gone either way.
			continue
		}
		deleted++
	}
	m.logger.Info("group deleted", "group_id", groupID, "deleted", deleted)
	return deleted, nil
}

// groupMembers snapshots the group's member devices, sorted by ID so
// paced strategies run in a stable order.
func (m *Manager) groupMembers(groupID string) ([]device.Device, error) {
	m.mu.RLock()
	members, ok := m.groups[groupID]
	if !ok {
		m.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
	}
	devs := make([]device.Device, 0, len(members))
	for id := range members {
		if d, found := m.devices[id]; found {
			devs = append(devs, d)
		}
	}
	m.mu.RUnlock()

	sort.Slice(devs, func(i, j int) bool { return devs[i].ID() < devs[j].ID() })
	return devs, nil
}

// ====== Launch Strategies ======

// effectiveLaunch resolves the launch configuration for a group start
// and fills strategy defaults.
func effectiveLaunch(cfg *LaunchConfig, staggerMs int) (LaunchConfig, error) {
	var launch LaunchConfig
	switch {
	case cfg != nil && cfg.Strategy != "":
		launch = *cfg
		launch.Strategy = strings.ToLower(strings.TrimSpace(launch.Strategy))
	case staggerMs > 0:
		launch = LaunchConfig{Strategy: LaunchLinear, DelayMs: staggerMs}
	default:
		launch = LaunchConfig{Strategy: LaunchImmediate}
	}

	switch launch.Strategy {
	case LaunchImmediate, LaunchLinear, LaunchBatch, LaunchExponential:
	default:
		return LaunchConfig{}, fmt.Errorf("%w: unknown launch strategy %q", ErrInvalidRequest, launch.Strategy)
	}

	if launch.DelayMs < 0 {
		launch.DelayMs = 0
	}
	if launch.BatchSize <= 0 {
		launch.BatchSize = defaultBatchSize
	}
	if launch.Base <= 0 {
		launch.Base = defaultLaunchBase
	}
	if launch.MaxDelayMs <= 0 {
		launch.MaxDelayMs = defaultMaxLaunchDelayMs
	}
	return launch, nil
}

// startConcurrent starts all pending devices at once and waits for
// every attempt to settle.
func (m *Manager) startConcurrent(ctx context.Context, pending []device.Device) int {
	var started atomic.Int64
	var wg sync.WaitGroup
	for _, d := range pending {
		wg.Add(1)
		go func(d device.Device) {
			defer wg.Done()
			if m.startOne(ctx, d) {
				started.Add(1)
			}
		}(d)
	}
	wg.Wait()
	return int(started.Load())
}

// startLinear starts devices one by one with a fixed pause between
// starts.
func (m *Manager) startLinear(ctx context.Context, pending []device.Device, launch LaunchConfig) int {
	started := 0
	for i, d := range pending {
		if i > 0 {
			if !sleepCtx(ctx, time.Duration(launch.DelayMs)*time.Millisecond) {
				break
			}
		}
		if m.startOne(ctx, d) {
			started++
		}
	}
	return started
}

// startBatched starts devices in concurrent slices of BatchSize with a
// pause between slices, not after the last.
func (m *Manager) startBatched(ctx context.Context, pending []device.Device, launch LaunchConfig) int {
	started := 0
	for lo := 0; lo < len(pending); lo += launch.BatchSize {
		if lo > 0 {
			if !sleepCtx(ctx, time.Duration(launch.DelayMs)*time.Millisecond) {
				break
			}
		}
		hi := lo + launch.BatchSize
		if hi > len(pending) {
			hi = len(pending)
		}
		started += m.startConcurrent(ctx, pending[lo:hi])
	}
	return started
}

// startExponential starts devices sequentially; the pause after device
// i is min(DelayMs·Baseⁱ, MaxDelayMs), with no trailing pause.
func (m *Manager) startExponential(ctx context.Context, pending []device.Device, launch LaunchConfig) int {
	started := 0
	for i, d := range pending {
		if m.startOne(ctx, d) {
			started++
		}
		if i == len(pending)-1 {
			break
		}
		ms := math.Min(float64(launch.DelayMs)*math.Pow(launch.Base, float64(i)), float64(launch.MaxDelayMs))
		if !sleepCtx(ctx, time.Duration(ms)*time.Millisecond) {
			break
		}
	}
	return started
}

// startOne starts a single device, logging failures instead of
// propagating them.
func (m *Manager) startOne(ctx context.Context, d device.Device) bool {
	if err := d.Start(ctx); err != nil {
		m.logger.Warn("group start: device start failed", "device_id", d.ID(), "error", err)
		return false
	}
	return true
}

// sleepCtx pauses for d unless ctx is cancelled first. Returns false
// on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
