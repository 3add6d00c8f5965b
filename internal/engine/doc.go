// Package engine implements the device manager, the top-level
// orchestrator of the IoTix Device Engine.
//
// The manager owns the model registry, the device catalogue, and the
// group index. It creates and deletes devices, drives group lifecycle
// with configurable launch strategies, injects failures with dropout
// strategies, and aggregates engine statistics for the metrics sink.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────┐
//	│                          Manager                              │
//	│                                                               │
//	│  ┌──────────────┐  ┌───────────────┐  ┌───────────────────┐  │
//	│  │  Catalogue   │  │  Group Index  │  │  Launch/Dropout   │  │
//	│  │ (manager.go) │  │ (groups.go)   │  │ (groups.go,       │  │
//	│  │              │  │               │  │  dropout.go)      │  │
//	│  │ deviceId →   │  │ groupId →     │  │ immediate/linear/ │  │
//	│  │ Device       │  │ member set    │  │ batch/exponential │  │
//	│  └──────────────┘  └───────────────┘  └───────────────────┘  │
//	│          │                                      │            │
//	└──────────│──────────────────────────────────────│────────────┘
//	           ▼                                      ▼
//	┌──────────────────────┐              ┌──────────────────────┐
//	│   Device Runtime     │              │    Metrics Sink      │
//	│ (internal/device)    │              │  (stats every 5 s)   │
//	└──────────────────────┘              └──────────────────────┘
//
// # Concurrency
//
// Catalogue and group mutations serialise on one RWMutex. Read paths
// (get, list, stats) copy the relevant map entries under a read lock
// and work on the copy. Device lifecycle I/O (connect, stop drain)
// always runs outside the manager lock, so a slow broker never stalls
// the control plane.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use.
package engine
