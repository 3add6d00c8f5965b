package generator

import "github.com/iotix/device-engine/internal/model"

// ConstantGenerator emits the configured value verbatim on every call.
// Any scalar JSON type works: numbers, strings, booleans.
type ConstantGenerator struct {
	value any
}

func newConstant(cfg model.GeneratorConfig) *ConstantGenerator {
	return &ConstantGenerator{value: cfg.Value}
}

// Generate returns the configured value.
func (g *ConstantGenerator) Generate() any {
	return g.value
}

// Reset is a no-op.
func (g *ConstantGenerator) Reset() {}
