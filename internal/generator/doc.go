// Package generator produces telemetry values for virtual devices.
//
// Each telemetry attribute of a device owns one ValueGenerator, created
// from the attribute's model.GeneratorConfig when the device starts.
// Variants:
//
//   - random: uniform, normal or exponential sampling with clamping
//   - sequence: counter with step and optional wrap at bounds
//   - constant: fixed value of any scalar type
//   - replay: recorded series from a JSON array file
//   - sine: wave oscillating between min and max
//
// The factory never fails: an unrecognised type degrades to uniform
// random so a model with a typo still emits data.
//
// Generate performs no I/O and never blocks. Generators are not safe for
// concurrent use; every telemetry loop holds its own instance.
package generator
