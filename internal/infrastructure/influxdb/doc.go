// Package influxdb records engine metrics to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with
// engine-specific measurements for telemetry, device lifecycle
// events, engine statistics, and connection state.
//
// # Purpose
//
// This package handles time-series visibility for:
//   - Generated telemetry values (measurement "telemetry")
//   - Device lifecycle events (measurement "device_events")
//   - Aggregate engine statistics (measurement "engine_stats")
//   - Per-device connection state (measurement "connections")
//
// # Usage
//
//	writer, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    writer = influxdb.NewDisabled()
//	}
//
//	writer.WriteTelemetry("sensor-1", "temp-sensor", "", influxdb.SourceSimulated,
//	    map[string]any{"temperature": 21.5})
//
// A disabled writer accepts every call as a no-op, so callers never
// branch on whether metrics are configured.
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking; batch errors surface through the
// SetOnError callback. Connection and health check errors are
// returned directly.
//
// # Performance
//
// Writes are batched according to config (batch_size, flush_interval
// seconds). With ten thousand devices emitting every second the
// batching keeps network overhead flat.
package influxdb
