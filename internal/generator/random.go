package generator

import (
	"math/rand"

	"github.com/iotix/device-engine/internal/model"
)

// RandomGenerator samples values from a configured distribution.
// Weak randomness is acceptable here; the output is simulation data,
// not key material.
type RandomGenerator struct {
	min, max     float64
	distribution model.Distribution
	mean         *float64
	stddev       *float64
	rate         *float64
	rng          *rand.Rand
}

func newRandom(cfg model.GeneratorConfig, rng *rand.Rand) *RandomGenerator {
	g := &RandomGenerator{
		min:          0.0,
		max:          100.0,
		distribution: cfg.Distribution,
		mean:         cfg.Mean,
		stddev:       cfg.StdDev,
		rate:         cfg.Rate,
		rng:          rng,
	}
	if cfg.Min != nil {
		g.min = *cfg.Min
	}
	if cfg.Max != nil {
		g.max = *cfg.Max
	}
	return g
}

// Generate returns the next sample.
//
// Distributions:
//   - uniform: uniform over [min, max]
//   - normal: N(mean, stddev), mean defaults to the midpoint, stddev to
//     (max-min)/6, result clamped to [min, max]
//   - exponential: Exp(rate), rate defaults to 1.0, result clamped
//
// An unset or unrecognised distribution samples uniformly.
func (g *RandomGenerator) Generate() any {
	switch g.distribution {
	case model.DistributionNormal:
		mean := (g.min + g.max) / 2
		if g.mean != nil {
			mean = *g.mean
		}
		stddev := (g.max - g.min) / 6
		if g.stddev != nil {
			stddev = *g.stddev
		}
		return g.clamp(g.normFloat64()*stddev + mean)

	case model.DistributionExponential:
		rate := 1.0
		if g.rate != nil && *g.rate != 0 {
			rate = *g.rate
		}
		return g.clamp(g.expFloat64() / rate)

	default:
		return g.min + g.float64()*(g.max-g.min)
	}
}

// Reset is a no-op; random generators carry no progression state.
func (g *RandomGenerator) Reset() {}

func (g *RandomGenerator) clamp(v float64) float64 {
	if v < g.min {
		return g.min
	}
	if v > g.max {
		return g.max
	}
	return v
}

func (g *RandomGenerator) float64() float64 {
	if g.rng != nil {
		return g.rng.Float64()
	}
	return rand.Float64()
}

func (g *RandomGenerator) normFloat64() float64 {
	if g.rng != nil {
		return g.rng.NormFloat64()
	}
	return rand.NormFloat64()
}

func (g *RandomGenerator) expFloat64() float64 {
	if g.rng != nil {
		return g.rng.ExpFloat64()
	}
	return rand.ExpFloat64()
}
