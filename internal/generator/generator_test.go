package generator

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/iotix/device-engine/internal/model"
)

func f64(v float64) *float64 { return &v }

func testRand() *rand.Rand {
	return rand.New(rand.NewSource(42))
}

// ====== Random ======

func TestRandomGenerator_UniformRange(t *testing.T) {
	g := NewWithRand(model.GeneratorConfig{
		Type: TypeRandom,
		Min:  f64(10),
		Max:  f64(30),
	}, testRand())

	for i := 0; i < 1000; i++ {
		raw := g.Generate()
		v, ok := raw.(float64)
		if !ok {
			t.Fatalf("Generate() returned %T, want float64", raw)
		}
		if v < 10 || v > 30 {
			t.Fatalf("Generate() = %v, want within [10, 30]", v)
		}
	}
}

func TestRandomGenerator_DefaultRange(t *testing.T) {
	g := NewWithRand(model.GeneratorConfig{Type: TypeRandom}, testRand())

	for i := 0; i < 1000; i++ {
		v := g.Generate().(float64)
		if v < 0 || v > 100 {
			t.Fatalf("Generate() = %v, want within default [0, 100]", v)
		}
	}
}

func TestRandomGenerator_NormalClamped(t *testing.T) {
	// Stddev far wider than the range forces frequent clamping; every
	// sample must still land inside the bounds.
	g := NewWithRand(model.GeneratorConfig{
		Type:         TypeRandom,
		Distribution: model.DistributionNormal,
		Min:          f64(0),
		Max:          f64(1),
		StdDev:       f64(50),
	}, testRand())

	for i := 0; i < 1000; i++ {
		v := g.Generate().(float64)
		if v < 0 || v > 1 {
			t.Fatalf("Generate() = %v, want clamped to [0, 1]", v)
		}
	}
}

func TestRandomGenerator_NormalDefaultMean(t *testing.T) {
	// Mean defaults to the midpoint of the range. With a small stddev the
	// sample average should sit near it.
	g := NewWithRand(model.GeneratorConfig{
		Type:         TypeRandom,
		Distribution: model.DistributionNormal,
		Min:          f64(0),
		Max:          f64(40),
		StdDev:       f64(1),
	}, testRand())

	var sum float64
	const n = 2000
	for i := 0; i < n; i++ {
		sum += g.Generate().(float64)
	}

	avg := sum / n
	if math.Abs(avg-20) > 1 {
		t.Errorf("sample mean = %v, want close to midpoint 20", avg)
	}
}

func TestRandomGenerator_ExponentialClamped(t *testing.T) {
	g := NewWithRand(model.GeneratorConfig{
		Type:         TypeRandom,
		Distribution: model.DistributionExponential,
		Min:          f64(0),
		Max:          f64(5),
		Rate:         f64(0.1),
	}, testRand())

	for i := 0; i < 1000; i++ {
		v := g.Generate().(float64)
		if v < 0 || v > 5 {
			t.Fatalf("Generate() = %v, want clamped to [0, 5]", v)
		}
	}
}

// ====== Sequence ======

func TestSequenceGenerator_Basic(t *testing.T) {
	g := New(model.GeneratorConfig{Type: TypeSequence})

	want := []float64{0, 1, 2, 3}
	for i, w := range want {
		if got := g.Generate().(float64); got != w {
			t.Errorf("Generate() #%d = %v, want %v", i, got, w)
		}
	}
}

func TestSequenceGenerator_WrapToMin(t *testing.T) {
	g := New(model.GeneratorConfig{
		Type:  TypeSequence,
		Start: f64(0),
		Step:  f64(5),
		Min:   f64(2),
		Max:   f64(10),
		Wrap:  true,
	})

	want := []float64{0, 5, 10, 2, 7}
	for i, w := range want {
		if got := g.Generate().(float64); got != w {
			t.Errorf("Generate() #%d = %v, want %v", i, got, w)
		}
	}
}

func TestSequenceGenerator_WrapToStartWhenMinUnset(t *testing.T) {
	g := New(model.GeneratorConfig{
		Type:  TypeSequence,
		Start: f64(1),
		Step:  f64(4),
		Max:   f64(9),
		Wrap:  true,
	})

	want := []float64{1, 5, 9, 1, 5}
	for i, w := range want {
		if got := g.Generate().(float64); got != w {
			t.Errorf("Generate() #%d = %v, want %v", i, got, w)
		}
	}
}

func TestSequenceGenerator_WrapNegativeStep(t *testing.T) {
	g := New(model.GeneratorConfig{
		Type:  TypeSequence,
		Start: f64(10),
		Step:  f64(-5),
		Min:   f64(0),
		Max:   f64(10),
		Wrap:  true,
	})

	want := []float64{10, 5, 0, 10, 5}
	for i, w := range want {
		if got := g.Generate().(float64); got != w {
			t.Errorf("Generate() #%d = %v, want %v", i, got, w)
		}
	}
}

func TestSequenceGenerator_UnboundedWithoutWrap(t *testing.T) {
	g := New(model.GeneratorConfig{
		Type:  TypeSequence,
		Start: f64(0),
		Step:  f64(50),
		Max:   f64(100),
	})

	want := []float64{0, 50, 100, 150, 200}
	for i, w := range want {
		if got := g.Generate().(float64); got != w {
			t.Errorf("Generate() #%d = %v, want %v", i, got, w)
		}
	}
}

func TestSequenceGenerator_Reset(t *testing.T) {
	g := New(model.GeneratorConfig{Type: TypeSequence, Start: f64(7)})

	g.Generate()
	g.Generate()
	g.Reset()

	if got := g.Generate().(float64); got != 7 {
		t.Errorf("Generate() after Reset = %v, want 7", got)
	}
}

// ====== Constant ======

func TestConstantGenerator(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{name: "float", value: 42.5},
		{name: "string", value: "active"},
		{name: "bool", value: true},
		{name: "nil", value: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(model.GeneratorConfig{Type: TypeConstant, Value: tt.value})
			for i := 0; i < 3; i++ {
				if got := g.Generate(); got != tt.value {
					t.Errorf("Generate() = %v, want %v", got, tt.value)
				}
			}
		})
	}
}

// ====== Replay ======

func writeReplayFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReplayGenerator_Loop(t *testing.T) {
	path := writeReplayFile(t, `[1, 2, 3]`)

	g := New(model.GeneratorConfig{Type: TypeReplay, DataFile: path})

	want := []float64{1, 2, 3, 1, 2}
	for i, w := range want {
		if got := g.Generate().(float64); got != w {
			t.Errorf("Generate() #%d = %v, want %v", i, got, w)
		}
	}
}

func TestReplayGenerator_ClampWithoutLoop(t *testing.T) {
	path := writeReplayFile(t, `[10, 20, 30]`)
	noLoop := false

	g := New(model.GeneratorConfig{Type: TypeReplay, DataFile: path, Loop: &noLoop})

	want := []float64{10, 20, 30, 30, 30}
	for i, w := range want {
		if got := g.Generate().(float64); got != w {
			t.Errorf("Generate() #%d = %v, want %v", i, got, w)
		}
	}
}

func TestReplayGenerator_MixedTypes(t *testing.T) {
	path := writeReplayFile(t, `["on", "off", 3.5]`)

	g := New(model.GeneratorConfig{Type: TypeReplay, DataFile: path})

	if got := g.Generate(); got != "on" {
		t.Errorf("Generate() = %v, want %q", got, "on")
	}
	if got := g.Generate(); got != "off" {
		t.Errorf("Generate() = %v, want %q", got, "off")
	}
	if got := g.Generate(); got != 3.5 {
		t.Errorf("Generate() = %v, want 3.5", got)
	}
}

func TestReplayGenerator_MissingFile(t *testing.T) {
	g := newReplay(model.GeneratorConfig{Type: TypeReplay, DataFile: "/nonexistent/data.json"})

	if got := g.Generate(); got != nil {
		t.Errorf("Generate() = %v, want nil for missing file", got)
	}

	if g.LoadErr() == nil {
		t.Error("LoadErr() = nil, want error for missing file")
	}
}

func TestReplayGenerator_MalformedFile(t *testing.T) {
	path := writeReplayFile(t, `{not json`)

	g := newReplay(model.GeneratorConfig{Type: TypeReplay, DataFile: path})

	if got := g.Generate(); got != nil {
		t.Errorf("Generate() = %v, want nil for malformed file", got)
	}

	if g.LoadErr() == nil {
		t.Error("LoadErr() = nil, want error for malformed file")
	}
}

func TestReplayGenerator_Reset(t *testing.T) {
	path := writeReplayFile(t, `[1, 2, 3]`)

	g := New(model.GeneratorConfig{Type: TypeReplay, DataFile: path})
	g.Generate()
	g.Generate()
	g.Reset()

	if got := g.Generate().(float64); got != 1 {
		t.Errorf("Generate() after Reset = %v, want 1", got)
	}
}

// ====== Sine ======

func TestSineGenerator_Wave(t *testing.T) {
	// Period of 4 ticks over [0, 10]: midpoint, peak, midpoint, trough.
	g := New(model.GeneratorConfig{
		Type:     TypeSine,
		Min:      f64(0),
		Max:      f64(10),
		PeriodMs: 4,
	})

	want := []float64{5, 10, 5, 0, 5}
	const eps = 1e-9
	for i, w := range want {
		got := g.Generate().(float64)
		if math.Abs(got-w) > eps {
			t.Errorf("Generate() #%d = %v, want %v", i, got, w)
		}
	}
}

func TestSineGenerator_Phase(t *testing.T) {
	// A phase of pi/2 starts the wave at its peak.
	g := New(model.GeneratorConfig{
		Type:     TypeSine,
		Min:      f64(0),
		Max:      f64(10),
		PeriodMs: 4,
		Phase:    math.Pi / 2,
	})

	got := g.Generate().(float64)
	if math.Abs(got-10) > 1e-9 {
		t.Errorf("Generate() = %v, want 10 at phase pi/2", got)
	}
}

func TestSineGenerator_Reset(t *testing.T) {
	g := New(model.GeneratorConfig{Type: TypeSine, Min: f64(0), Max: f64(10), PeriodMs: 4})

	first := g.Generate().(float64)
	g.Generate()
	g.Reset()

	if got := g.Generate().(float64); got != first {
		t.Errorf("Generate() after Reset = %v, want %v", got, first)
	}
}

// ====== Factory ======

func TestNew_TypeDispatch(t *testing.T) {
	if _, ok := New(model.GeneratorConfig{Type: TypeRandom}).(*RandomGenerator); !ok {
		t.Error("New(random) did not return *RandomGenerator")
	}
	if _, ok := New(model.GeneratorConfig{Type: TypeSequence}).(*SequenceGenerator); !ok {
		t.Error("New(sequence) did not return *SequenceGenerator")
	}
	if _, ok := New(model.GeneratorConfig{Type: TypeConstant}).(*ConstantGenerator); !ok {
		t.Error("New(constant) did not return *ConstantGenerator")
	}
	if _, ok := New(model.GeneratorConfig{Type: TypeReplay}).(*ReplayGenerator); !ok {
		t.Error("New(replay) did not return *ReplayGenerator")
	}
	if _, ok := New(model.GeneratorConfig{Type: TypeSine}).(*SineGenerator); !ok {
		t.Error("New(sine) did not return *SineGenerator")
	}
}

func TestNew_UnknownTypeFallsBackToRandom(t *testing.T) {
	g := New(model.GeneratorConfig{Type: "fourier", Min: f64(5), Max: f64(6)})

	if _, ok := g.(*RandomGenerator); !ok {
		t.Fatalf("New() = %T, want *RandomGenerator fallback", g)
	}

	v := g.Generate().(float64)
	if v < 5 || v > 6 {
		t.Errorf("fallback Generate() = %v, want within [5, 6]", v)
	}
}

func TestNew_EmptyTypeFallsBackToRandom(t *testing.T) {
	g := New(model.GeneratorConfig{})

	if _, ok := g.(*RandomGenerator); !ok {
		t.Fatalf("New() = %T, want *RandomGenerator fallback", g)
	}
}
