package generator

import "github.com/iotix/device-engine/internal/model"

// SequenceGenerator counts from start by step, optionally wrapping at the
// configured bounds. Useful for counters, cycling setpoints and ramps.
type SequenceGenerator struct {
	start    float64
	step     float64
	min, max *float64
	wrap     bool
	current  float64
}

func newSequence(cfg model.GeneratorConfig) *SequenceGenerator {
	g := &SequenceGenerator{
		step: 1.0,
		min:  cfg.Min,
		max:  cfg.Max,
		wrap: cfg.Wrap,
	}
	if cfg.Start != nil {
		g.start = *cfg.Start
	}
	if cfg.Step != nil {
		g.step = *cfg.Step
	}
	g.current = g.start
	return g
}

// Generate returns the current value, then advances by step.
//
// With wrap enabled and max set: stepping past max resets to min (or to
// start when min is unset); stepping below a set min resets to max.
// Without wrap the value runs unbounded.
func (g *SequenceGenerator) Generate() any {
	value := g.current
	g.current += g.step

	if g.wrap && g.max != nil {
		switch {
		case g.step > 0 && g.current > *g.max:
			if g.min != nil {
				g.current = *g.min
			} else {
				g.current = g.start
			}
		case g.step < 0 && g.min != nil && g.current < *g.min:
			g.current = *g.max
		}
	}

	return value
}

// Reset rewinds the sequence to its start value.
func (g *SequenceGenerator) Reset() {
	g.current = g.start
}
