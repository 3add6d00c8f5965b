package generator

import (
	"encoding/json"
	"os"

	"github.com/iotix/device-engine/internal/model"
)

// ReplayGenerator walks through a recorded series loaded from a JSON array
// file. When the series is exhausted it either wraps to the beginning
// (loop, the default) or keeps returning the final value.
type ReplayGenerator struct {
	data    []any
	index   int
	loop    bool
	loadErr error
}

func newReplay(cfg model.GeneratorConfig) *ReplayGenerator {
	g := &ReplayGenerator{loop: true}
	if cfg.Loop != nil {
		g.loop = *cfg.Loop
	}

	// The file is read exactly once, here. A missing or malformed file
	// leaves the data empty and Generate returns nil; the device keeps
	// its cadence instead of failing to start.
	if cfg.DataFile != "" {
		data, err := os.ReadFile(cfg.DataFile)
		if err != nil {
			g.loadErr = err
			return g
		}
		if err := json.Unmarshal(data, &g.data); err != nil {
			g.loadErr = err
			g.data = nil
		}
	}

	return g
}

// Generate returns the next recorded value, or nil when no data loaded.
func (g *ReplayGenerator) Generate() any {
	if len(g.data) == 0 {
		return nil
	}

	value := g.data[g.index]
	g.index++

	if g.index >= len(g.data) {
		if g.loop {
			g.index = 0
		} else {
			g.index = len(g.data) - 1
		}
	}

	return value
}

// Reset rewinds to the beginning of the series.
func (g *ReplayGenerator) Reset() {
	g.index = 0
}

// LoadErr reports why the data file could not be loaded, if it couldn't.
// Callers log it; replay stays usable either way.
func (g *ReplayGenerator) LoadErr() error {
	return g.loadErr
}
