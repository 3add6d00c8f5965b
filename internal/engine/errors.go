package engine

import "errors"

var (
	// ErrDeviceNotFound is returned when a device ID has no catalogue entry.
	ErrDeviceNotFound = errors.New("engine: device not found")

	// ErrDeviceExists is returned when an explicit device ID collides with
	// an existing catalogue entry.
	ErrDeviceExists = errors.New("engine: device already exists")

	// ErrGroupNotFound is returned when a group ID has no members.
	ErrGroupNotFound = errors.New("engine: group not found")

	// ErrCapacity is returned when creating a device or group would exceed
	// the configured device limit.
	ErrCapacity = errors.New("engine: device capacity reached")

	// ErrNotProxy is returned when a bind or unbind targets a simulated
	// device.
	ErrNotProxy = errors.New("engine: device is not a proxy")

	// ErrInvalidRequest is returned for malformed operation parameters,
	// such as an unknown strategy name or a non-positive device count.
	ErrInvalidRequest = errors.New("engine: invalid request")
)
