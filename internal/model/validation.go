package model

import (
	"fmt"
	"strings"
)

// Validation constants.
const (
	maxIDLength   = 64
	maxNameLength = 100

	// Generous caps; a model file is operator-supplied but still
	// crosses the API, so size limits keep memory bounded.
	maxTelemetryAttributes = 100
	maxMetadataKeys        = 50
)

// Pre-computed validation sets for O(1) lookups instead of O(n) linear search.
var (
	validDeviceTypes   map[DeviceType]struct{}
	validProtocols     map[Protocol]struct{}
	validDistributions map[Distribution]struct{}
)

func init() {
	// Build validation sets once at startup
	validDeviceTypes = make(map[DeviceType]struct{}, len(AllDeviceTypes()))
	for _, t := range AllDeviceTypes() {
		validDeviceTypes[t] = struct{}{}
	}

	validProtocols = make(map[Protocol]struct{}, len(AllProtocols()))
	for _, p := range AllProtocols() {
		validProtocols[p] = struct{}{}
	}

	validDistributions = make(map[Distribution]struct{}, len(AllDistributions()))
	for _, d := range AllDistributions() {
		validDistributions[d] = struct{}{}
	}
}

// Validate performs comprehensive validation on a device model.
// Returns an error describing the first validation failure found.
// Call ApplyDefaults first; Validate does not fill gaps.
func (m *DeviceModel) Validate() error {
	if m == nil {
		return ErrInvalidModel
	}

	if err := validateID(m.ID); err != nil {
		return err
	}

	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidModel)
	}
	if len(m.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidModel, maxNameLength)
	}

	if _, ok := validDeviceTypes[m.Type]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidType, m.Type)
	}

	if _, ok := validProtocols[m.Protocol]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidProtocol, m.Protocol)
	}

	if m.Connection != nil {
		if err := validateConnection(m.Connection); err != nil {
			return err
		}
	}

	if len(m.Telemetry) > maxTelemetryAttributes {
		return fmt.Errorf("%w: telemetry exceeds max attributes (%d)", ErrInvalidTelemetry, maxTelemetryAttributes)
	}
	if err := validateTelemetry(m.Telemetry); err != nil {
		return err
	}

	if len(m.Metadata) > maxMetadataKeys {
		return fmt.Errorf("%w: metadata exceeds max keys (%d)", ErrInvalidModel, maxMetadataKeys)
	}

	return nil
}

// validateID checks the model identifier. The ID doubles as a file name
// for persisted models, so path separators are rejected outright.
func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidModel)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: id exceeds %d characters", ErrInvalidModel, maxIDLength)
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("%w: id must not contain path separators", ErrInvalidModel)
	}
	return nil
}

// validateConnection checks connection-level transport settings.
func validateConnection(c *ConnectionConfig) error {
	if c.Port != nil && (*c.Port < 1 || *c.Port > 65535) {
		return fmt.Errorf("%w: connection port must be between 1 and 65535", ErrInvalidModel)
	}
	if c.QoS != nil && (*c.QoS < 0 || *c.QoS > 2) {
		return fmt.Errorf("%w: connection qos must be 0, 1, or 2", ErrInvalidModel)
	}
	if c.KeepAlive != nil && *c.KeepAlive < 0 {
		return fmt.Errorf("%w: connection keepAlive must not be negative", ErrInvalidModel)
	}
	return nil
}

// validateTelemetry checks each attribute and enforces unique names.
func validateTelemetry(attrs []TelemetryAttribute) error {
	seen := make(map[string]struct{}, len(attrs))
	for i := range attrs {
		a := &attrs[i]
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("%w: attribute %d has no name", ErrInvalidTelemetry, i)
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("%w: duplicate attribute name %q", ErrInvalidTelemetry, a.Name)
		}
		seen[a.Name] = struct{}{}

		if a.IntervalMs <= 0 {
			return fmt.Errorf("%w: attribute %q intervalMs must be positive", ErrInvalidTelemetry, a.Name)
		}

		g := &a.Generator
		if g.Distribution != "" {
			if _, ok := validDistributions[g.Distribution]; !ok {
				return fmt.Errorf("%w: attribute %q has unknown distribution %q", ErrInvalidTelemetry, a.Name, g.Distribution)
			}
		}
		if g.Min != nil && g.Max != nil && *g.Min > *g.Max {
			return fmt.Errorf("%w: attribute %q has min > max", ErrInvalidTelemetry, a.Name)
		}
	}
	return nil
}

// ValidateBinding checks an inbound binding request for a proxy device.
func ValidateBinding(b *BindingConfig) error {
	if b == nil {
		return fmt.Errorf("%w: binding is required", ErrInvalidModel)
	}
	switch b.Protocol {
	case "mqtt":
		if b.Topic == "" {
			return fmt.Errorf("%w: mqtt binding requires a topic", ErrInvalidModel)
		}
	case "http":
		// Webhook path is derived from the device ID when absent.
	default:
		return fmt.Errorf("%w: unsupported binding protocol %q", ErrInvalidProtocol, b.Protocol)
	}
	if b.QoS < 0 || b.QoS > 2 {
		return fmt.Errorf("%w: binding qos must be 0, 1, or 2", ErrInvalidModel)
	}
	if b.Port < 0 || b.Port > 65535 {
		return fmt.Errorf("%w: binding port must be between 0 and 65535", ErrInvalidModel)
	}
	return nil
}
