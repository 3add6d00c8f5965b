package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iotix/device-engine/internal/device"
)

// Dropout strategies for failure injection. Names are matched
// case-insensitively on the wire.
const (
	DropoutImmediate   = "immediate"
	DropoutLinear      = "linear"
	DropoutExponential = "exponential"
	DropoutRandom      = "random"
)

// jitterMs bounds the per-device delay of a RANDOM dropout with no
// duration window.
const jitterMs = 100

// DropoutConfig tunes a failure injection run. Count and Percentage
// narrow the target set; Count wins when both are set, neither means
// all running simulated members.
type DropoutConfig struct {
	Strategy         string  `json:"strategy"`
	Count            int     `json:"count"`
	Percentage       float64 `json:"percentage"`
	DelayMs          int     `json:"delayMs"`
	Base             float64 `json:"base"`
	DurationMs       int     `json:"durationMs"`
	Reconnect        bool    `json:"reconnect"`
	ReconnectDelayMs int     `json:"reconnectDelayMs"`
}

// DropoutResult summarises a completed failure injection.
type DropoutResult struct {
	GroupID             string `json:"groupId"`
	DevicesAffected     int    `json:"devicesAffected"`
	DropoutStrategy     string `json:"dropoutStrategy"`
	Status              string `json:"status"`
	EstimatedDurationMs int    `json:"estimatedDurationMs"`
}

// SimulateDropouts stops a random sample of the group's running
// simulated devices according to the configured strategy. Proxy
// devices mirror real hardware and are never dropped. The strategy
// runs synchronously; with cfg.Reconnect a background task restarts
// the dropped devices after cfg.ReconnectDelayMs, measured from
// initiation.
func (m *Manager) SimulateDropouts(ctx context.Context, groupID string, cfg DropoutConfig) (DropoutResult, error) {
	strategy, err := normalizeDropout(&cfg)
	if err != nil {
		return DropoutResult{}, err
	}
	members, err := m.groupMembers(groupID)
	if err != nil {
		return DropoutResult{}, err
	}

	targets := make([]device.Device, 0, len(members))
	for _, d := range members {
		if !d.IsProxy() && d.Status() == device.StatusRunning {
			targets = append(targets, d)
		}
	}
	victims := sampleDevices(targets, dropoutSize(cfg, len(targets)))
	estimate := estimateDropoutMs(strategy, cfg, len(victims))

	m.logger.Info("dropout initiated",
		"group_id", groupID, "strategy", strategy,
		"affected", len(victims), "running", len(targets),
		"reconnect", cfg.Reconnect)

	if cfg.Reconnect && len(victims) > 0 {
		go m.reconnectAfter(victims, time.Duration(cfg.ReconnectDelayMs)*time.Millisecond)
	}

	switch strategy {
	case DropoutLinear:
		m.dropLinear(ctx, victims, cfg)
	case DropoutExponential:
		m.dropExponential(ctx, victims, cfg)
	case DropoutRandom:
		m.dropRandom(ctx, victims, cfg)
	default:
		m.dropConcurrent(victims, 0)
	}

	return DropoutResult{
		GroupID:             groupID,
		DevicesAffected:     len(victims),
		DropoutStrategy:     strategy,
		Status:              "completed",
		EstimatedDurationMs: estimate,
	}, nil
}

// normalizeDropout validates the strategy name and fills defaults.
func normalizeDropout(cfg *DropoutConfig) (string, error) {
	strategy := strings.ToLower(strings.TrimSpace(cfg.Strategy))
	if strategy == "" {
		strategy = DropoutImmediate
	}
	switch strategy {
	case DropoutImmediate, DropoutLinear, DropoutExponential, DropoutRandom:
	default:
		return "", fmt.Errorf("%w: unknown dropout strategy %q", ErrInvalidRequest, cfg.Strategy)
	}
	if cfg.DelayMs < 0 {
		cfg.DelayMs = 0
	}
	if cfg.Base <= 0 {
		cfg.Base = defaultLaunchBase
	}
	return strategy, nil
}

// dropoutSize resolves how many devices to drop out of n running.
func dropoutSize(cfg DropoutConfig, n int) int {
	switch {
	case cfg.Count > 0:
		if cfg.Count < n {
			return cfg.Count
		}
		return n
	case cfg.Percentage > 0:
		k := int(float64(n) * cfg.Percentage / 100)
		if k > n {
			return n
		}
		return k
	default:
		return n
	}
}

// sampleDevices picks k devices uniformly without replacement.
func sampleDevices(targets []device.Device, k int) []device.Device {
	if k >= len(targets) {
		k = len(targets)
	}
	shuffled := make([]device.Device, len(targets))
	copy(shuffled, targets)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:k]
}

// estimateDropoutMs predicts the injection's wall time in ms.
func estimateDropoutMs(strategy string, cfg DropoutConfig, n int) int {
	if n == 0 {
		return 0
	}
	switch strategy {
	case DropoutLinear:
		return cfg.DelayMs * (n - 1)
	case DropoutExponential:
		total := 0.0
		for i := 0; i < n-1; i++ {
			total += math.Max(1, float64(cfg.DelayMs)/math.Pow(cfg.Base, float64(i)))
		}
		return int(total)
	case DropoutRandom:
		if cfg.DurationMs > 0 {
			return cfg.DurationMs
		}
		return jitterMs
	default:
		return 0
	}
}

// dropConcurrent stops all victims at once, each delayed by up to
// jitter, and waits for every stop to settle.
func (m *Manager) dropConcurrent(victims []device.Device, jitter time.Duration) {
	var wg sync.WaitGroup
	for _, d := range victims {
		wg.Add(1)
		go func(d device.Device) {
			defer wg.Done()
			if jitter > 0 {
				time.Sleep(time.Duration(rand.Int63n(int64(jitter))))
			}
			m.stopOne(d)
		}(d)
	}
	wg.Wait()
}

// dropLinear stops victims sequentially with a fixed pause between
// stops, no trailing pause.
func (m *Manager) dropLinear(ctx context.Context, victims []device.Device, cfg DropoutConfig) {
	for i, d := range victims {
		if i > 0 {
			if !sleepCtx(ctx, time.Duration(cfg.DelayMs)*time.Millisecond) {
				return
			}
		}
		m.stopOne(d)
	}
}

// dropExponential stops victims sequentially; the pause after step i
// shrinks as max(1, DelayMs/Baseⁱ) ms, modelling a cascading failure
// that accelerates.
func (m *Manager) dropExponential(ctx context.Context, victims []device.Device, cfg DropoutConfig) {
	for i, d := range victims {
		m.stopOne(d)
		if i == len(victims)-1 {
			return
		}
		ms := math.Max(1, float64(cfg.DelayMs)/math.Pow(cfg.Base, float64(i)))
		if !sleepCtx(ctx, time.Duration(ms)*time.Millisecond) {
			return
		}
	}
}

// dropRandom spreads stops uniformly over DurationMs when set. With no
// window it degenerates to a concurrent drop with 0-100 ms jitter.
func (m *Manager) dropRandom(ctx context.Context, victims []device.Device, cfg DropoutConfig) {
	if cfg.DurationMs <= 0 {
		m.dropConcurrent(victims, jitterMs*time.Millisecond)
		return
	}
	offsets := make([]int, len(victims))
	for i := range offsets {
		offsets[i] = rand.Intn(cfg.DurationMs + 1)
	}
	sort.Ints(offsets)

	elapsed := 0
	for i, d := range victims {
		if wait := offsets[i] - elapsed; wait > 0 {
			if !sleepCtx(ctx, time.Duration(wait)*time.Millisecond) {
				return
			}
			elapsed = offsets[i]
		}
		m.stopOne(d)
	}
}

// stopOne stops a single device, logging failures instead of
// propagating them.
func (m *Manager) stopOne(d device.Device) {
	if err := d.Stop(); err != nil {
		m.logger.Warn("dropout: device stop failed", "device_id", d.ID(), "error", err)
	}
}

// reconnectAfter restarts dropped devices sequentially once the delay
// elapses. Failures are logged; a device deleted in the meantime
// simply fails its start and is skipped.
func (m *Manager) reconnectAfter(victims []device.Device, delay time.Duration) {
	if delay > 0 {
		time.Sleep(delay)
	}
	recovered := 0
	for _, d := range victims {
		if err := d.Start(context.Background()); err != nil {
			m.logger.Warn("reconnect: device start failed", "device_id", d.ID(), "error", err)
			continue
		}
		recovered++
	}
	m.logger.Info("reconnect complete", "recovered", recovered, "of", len(victims))
}
