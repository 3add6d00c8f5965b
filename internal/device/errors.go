package device

import "errors"

// Sentinel errors for device lifecycle operations. Callers wrap them
// with fmt.Errorf("%w: ...") for context and test with errors.Is.
var (
	// ErrNotBound is returned when starting a proxy device that has
	// never been bound to an external telemetry source.
	ErrNotBound = errors.New("device: not bound")
)
