// Package device implements the virtual device runtime for the IoTix
// Device Engine.
//
// A device is an independent runtime unit instantiated from a device
// model. Two kinds exist: virtual devices, which generate synthetic
// telemetry and publish it over a protocol adapter, and proxy devices,
// which mirror telemetry arriving from real hardware through an
// inbound binding.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                        Device Runtime                            │
//	│                                                                  │
//	│  ┌────────────────┐   ┌────────────────┐   ┌──────────────────┐ │
//	│  │ VirtualDevice  │   │  ProxyDevice   │   │ Template/Merge   │ │
//	│  │  (virtual.go)  │   │   (proxy.go)   │   │ (template.go,    │ │
//	│  │                │   │                │   │  merge.go)       │ │
//	│  │ • State machine│   │ • Bind/Unbind  │   │ • ${var} resolve │ │
//	│  │ • Telemetry    │   │ • Mirror counts│   │ • Connection     │ │
//	│  │   loops        │   │                │   │   precedence     │ │
//	│  └───────┬────────┘   └───────┬────────┘   └──────────────────┘ │
//	│          │                    │                                  │
//	└──────────│────────────────────│──────────────────────────────────┘
//	           ▼                    ▼
//	┌──────────────────┐   ┌──────────────────┐
//	│ Protocol Adapter │   │  Inbound Binder  │
//	│ (MQTT/HTTP/CoAP) │   │ (MQTT sub/webhook)│
//	└──────────────────┘   └──────────────────┘
//
// # Lifecycle
//
// Devices move through created → starting → running → stopping →
// stopped. A failed start lands in error; both stopped and error
// devices may be started again. Start and Stop serialize on a
// per-device operation mutex so concurrent lifecycle calls cannot
// interleave.
//
// # Usage
//
//	dev := device.NewVirtual(device.VirtualConfig{
//	    ID:       "temp-sensor-01-a1b2c3d4",
//	    Model:    mdl,
//	    Adapter:  factory,
//	    Defaults: defaults,
//	    Sink:     writer,
//	    Logger:   log,
//	})
//	if err := dev.Start(ctx); err != nil {
//	    return err
//	}
//	defer dev.Stop()
//
//	snap := dev.Snapshot()   // status, connection, counters
//	m := dev.Metrics()       // counters plus uptime and rates
//
// # Thread Safety
//
// All exported methods on VirtualDevice and ProxyDevice are safe for
// concurrent use. Telemetry counters are atomics; state reads take a
// read lock and never block the telemetry loops.
package device
