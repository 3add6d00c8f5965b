package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Source tag values distinguishing generated telemetry from telemetry
// mirrored off physical devices by proxy bindings.
const (
	SourceSimulated = "simulated"
	SourcePhysical  = "physical"
)

// WriteTelemetry records one telemetry frame.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Payload keys "deviceId" and "timestamp" are skipped because they
// are carried by tags and the point time. Numeric values become
// float64 fields, booleans and strings pass through, and anything
// else (nested objects, arrays) is dropped.
//
// Parameters:
//   - deviceID: Device identifier (tag)
//   - modelID: Model the device was created from (tag)
//   - groupID: Owning group, "" when the device is standalone (tag)
//   - source: SourceSimulated or SourcePhysical, "" omits the tag
//   - data: Telemetry payload as key-value pairs
//
// Example:
//
//	writer.WriteTelemetry("sensor-1", "temp-sensor", "fleet-a",
//	    influxdb.SourceSimulated,
//	    map[string]any{"temperature": 21.5, "unit": "celsius"})
func (w *Writer) WriteTelemetry(deviceID, modelID, groupID, source string, data map[string]any) {
	if !w.writable() {
		return
	}

	tags := map[string]string{
		"device_id": deviceID,
		"model_id":  modelID,
	}
	if groupID != "" {
		tags["group_id"] = groupID
	}
	if source != "" {
		tags["source"] = source
	}

	fields := telemetryFields(data)
	if len(fields) == 0 {
		return
	}

	point := write.NewPoint("telemetry", tags, fields, time.Now().UTC())
	w.writeAPI.WritePoint(point)
}

// WriteDeviceEvent records a lifecycle event (created, started,
// stopped, deleted, connection_lost, ...).
//
// Every event carries a value=1 field so counts aggregate naturally.
// Numeric metadata becomes float fields under its own key; string
// metadata is prefixed with "meta_" to keep event dashboards free of
// field-type conflicts.
//
// Parameters:
//   - deviceID: Device identifier (tag)
//   - modelID: Model identifier (tag)
//   - groupID: Owning group, "" when standalone (tag)
//   - source: SourceSimulated or SourcePhysical, "" omits the tag
//   - eventType: Event name (tag)
//   - metadata: Optional extra fields, may be nil
func (w *Writer) WriteDeviceEvent(deviceID, modelID, groupID, source, eventType string, metadata map[string]any) {
	if !w.writable() {
		return
	}

	tags := map[string]string{
		"device_id":  deviceID,
		"model_id":   modelID,
		"event_type": eventType,
	}
	if groupID != "" {
		tags["group_id"] = groupID
	}
	if source != "" {
		tags["source"] = source
	}

	fields := map[string]any{
		"value": 1,
	}
	for key, value := range metadata {
		if num, ok := toFloat(value); ok {
			fields[key] = num
			continue
		}
		if s, ok := value.(string); ok {
			fields["meta_"+key] = s
		}
	}

	point := write.NewPoint("device_events", tags, fields, time.Now().UTC())
	w.writeAPI.WritePoint(point)
}

// WriteEngineStats records aggregate engine statistics. Emitted on a
// fixed interval by the engine's stats loop.
//
// Parameters:
//   - running: Devices currently running
//   - runningSimulated: Running devices generating synthetic telemetry
//   - runningPhysical: Running proxy devices mirroring real hardware
//   - totalMessages: Messages sent since engine start
//   - totalBytes: Payload bytes sent since engine start
//   - activeGroups: Device groups currently defined
func (w *Writer) WriteEngineStats(running, runningSimulated, runningPhysical, totalMessages, totalBytes, activeGroups int64) {
	if !w.writable() {
		return
	}

	point := write.NewPoint(
		"engine_stats",
		map[string]string{},
		map[string]any{
			"active_devices":    running,
			"running_simulated": runningSimulated,
			"running_physical":  runningPhysical,
			"total_messages":    totalMessages,
			"total_bytes":       totalBytes,
			"active_groups":     activeGroups,
		},
		time.Now().UTC(),
	)

	w.writeAPI.WritePoint(point)
}

// WriteConnectionMetric records a device connection state change.
//
// Parameters:
//   - deviceID: Device identifier (tag)
//   - protocol: Transport name, "mqtt"/"http"/"coap" (tag)
//   - source: SourceSimulated or SourcePhysical, "" omits the tag
//   - connected: Current connection state
//   - latencyMs: Connect latency in milliseconds; values <= 0 are
//     omitted
func (w *Writer) WriteConnectionMetric(deviceID, protocol, source string, connected bool, latencyMs float64) {
	if !w.writable() {
		return
	}

	tags := map[string]string{
		"device_id": deviceID,
		"protocol":  protocol,
	}
	if source != "" {
		tags["source"] = source
	}

	fields := map[string]any{
		"connected": connected,
	}
	if latencyMs > 0 {
		fields["latency_ms"] = latencyMs
	}

	point := write.NewPoint("connections", tags, fields, time.Now().UTC())

	w.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (w *Writer) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !w.writable() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now().UTC())
	w.writeAPI.WritePoint(point)
}

// telemetryFields coerces a telemetry payload into InfluxDB fields.
func telemetryFields(data map[string]any) map[string]any {
	fields := make(map[string]any, len(data))
	for key, value := range data {
		if key == "deviceId" || key == "timestamp" {
			continue
		}
		switch v := value.(type) {
		case bool:
			fields[key] = v
		case string:
			fields[key] = v
		default:
			if num, ok := toFloat(value); ok {
				fields[key] = num
			}
		}
	}
	return fields
}

// toFloat widens any numeric value to float64 so a field never flips
// type between writes.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}
