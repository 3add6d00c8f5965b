package generator

import (
	"math"

	"github.com/iotix/device-engine/internal/model"
)

// SineGenerator oscillates between min and max along a sine wave.
// One tick is one Generate call; period is expressed in ticks so the wave
// shape is independent of the attribute's emission interval.
type SineGenerator struct {
	min, max float64
	period   float64
	phase    float64
	tick     int64
}

func newSine(cfg model.GeneratorConfig) *SineGenerator {
	g := &SineGenerator{
		min:    0.0,
		max:    100.0,
		period: 60000,
		phase:  cfg.Phase,
	}
	if cfg.Min != nil {
		g.min = *cfg.Min
	}
	if cfg.Max != nil {
		g.max = *cfg.Max
	}
	if cfg.PeriodMs > 0 {
		g.period = float64(cfg.PeriodMs)
	}
	return g
}

// Generate returns the next point on the wave and advances the tick.
func (g *SineGenerator) Generate() any {
	amplitude := (g.max - g.min) / 2
	offset := g.min + amplitude
	angle := (2 * math.Pi * float64(g.tick) / g.period) + g.phase
	g.tick++
	return offset + amplitude*math.Sin(angle)
}

// Reset rewinds the wave to its first tick.
func (g *SineGenerator) Reset() {
	g.tick = 0
}
