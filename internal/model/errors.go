package model

import "errors"

// Domain errors for the model package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, model.ErrModelNotFound) {
//	    // handle not found case
//	}
var (
	// ErrModelNotFound is returned when a model ID does not exist.
	ErrModelNotFound = errors.New("model: not found")

	// ErrModelExists is returned when registering over an existing ID
	// through a path that forbids replacement.
	ErrModelExists = errors.New("model: already exists")

	// ErrInvalidModel is returned when model validation fails.
	ErrInvalidModel = errors.New("model: invalid")

	// ErrInvalidType is returned when a device type is not recognised.
	ErrInvalidType = errors.New("model: invalid type")

	// ErrInvalidProtocol is returned when a protocol value is not recognised.
	ErrInvalidProtocol = errors.New("model: invalid protocol")

	// ErrInvalidTelemetry is returned when a telemetry attribute is malformed.
	ErrInvalidTelemetry = errors.New("model: invalid telemetry")
)
