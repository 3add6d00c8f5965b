package generator

import (
	"math/rand"

	"github.com/iotix/device-engine/internal/model"
)

// Generator type constants matching model.GeneratorConfig.Type.
const (
	TypeRandom   = "random"
	TypeSequence = "sequence"
	TypeConstant = "constant"
	TypeReplay   = "replay"
	TypeSine     = "sine"
)

// ValueGenerator produces telemetry values for one device attribute.
//
// Generate never blocks and performs no I/O; the replay variant loads its
// data file once at construction. Implementations are not safe for
// concurrent use, each telemetry loop owns exactly one generator.
type ValueGenerator interface {
	// Generate returns the next value.
	Generate() any

	// Reset returns the generator to its initial state.
	Reset()
}

// New creates a generator from its configuration. An unknown type falls
// back to a uniform random generator rather than failing; a model with a
// typo still produces data.
func New(cfg model.GeneratorConfig) ValueGenerator {
	return NewWithRand(cfg, nil)
}

// NewWithRand is New with an injectable random source for deterministic
// tests. A nil rng uses the process-wide locked source, which is fine for
// simulation data.
func NewWithRand(cfg model.GeneratorConfig, rng *rand.Rand) ValueGenerator {
	switch cfg.Type {
	case TypeSequence:
		return newSequence(cfg)
	case TypeConstant:
		return newConstant(cfg)
	case TypeReplay:
		return newReplay(cfg)
	case TypeSine:
		return newSine(cfg)
	case TypeRandom:
		return newRandom(cfg, rng)
	default:
		return newRandom(cfg, rng)
	}
}
