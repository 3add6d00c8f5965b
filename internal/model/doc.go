// Package model defines device model templates and their registry.
//
// A device model is the blueprint a virtual device is instantiated from:
// identity, protocol, connection defaults, and the telemetry attributes the
// device will emit. Models are plain JSON documents; the registry loads
// them from a directory at startup and accepts new registrations through
// the API at runtime.
//
// # Key Types
//
//   - DeviceModel: The template (id, protocol, connection, telemetry)
//   - TelemetryAttribute: One value stream with its generator and cadence
//   - GeneratorConfig: Tagged union over all generator variants
//   - ConnectionConfig: Transport settings with unset-vs-zero semantics
//   - BindingConfig: Inbound binding for proxy devices
//   - Registry: Thread-safe catalogue, file loading and persistence
//
// # Usage
//
//	registry := model.NewRegistry("/app/device-models", false, logger)
//	n, err := registry.LoadDir()
//	if err != nil {
//	    return err
//	}
//	logger.Info("models loaded", "count", n)
//
//	m, err := registry.Get("temperature-sensor")
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Callers receive deep copies;
// a registered model is never mutated in place, re-registration replaces
// it wholesale.
package model
