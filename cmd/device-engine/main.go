// IoTix Device Engine - Virtual IoT Device Simulator
//
// This is the main entry point for the device engine service. The engine
// hosts fleets of simulated IoT devices for platform and load testing:
//   - Telemetry generation driven by declarative device models
//   - Real protocol traffic (MQTT, CoAP, HTTP webhooks)
//   - Proxy devices that bind physical hardware into the fleet
//   - Group orchestration with staggered starts and dropout simulation
//
// Everything is controlled through the REST API; see internal/api.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iotix/device-engine/internal/adapter"
	"github.com/iotix/device-engine/internal/api"
	"github.com/iotix/device-engine/internal/device"
	"github.com/iotix/device-engine/internal/engine"
	"github.com/iotix/device-engine/internal/infrastructure/config"
	"github.com/iotix/device-engine/internal/infrastructure/influxdb"
	"github.com/iotix/device-engine/internal/infrastructure/logging"
	"github.com/iotix/device-engine/internal/model"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	// This is the Go pattern for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run the application
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting IoTix Device Engine",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	cfg, err := loadConfig(log)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Connect the metrics sink. The engine runs fine without InfluxDB,
	// so a sink failure degrades to the no-op writer instead of
	// aborting startup.
	sink := connectMetricsSink(cfg, log)
	defer func() {
		log.Info("closing metrics sink")
		if closeErr := sink.Close(); closeErr != nil {
			log.Error("error closing metrics sink", "error", closeErr)
		}
	}()

	// Load device model definitions
	models := model.NewRegistry(cfg.Engine.ModelPath, cfg.Engine.PersistModels, log)
	loaded, err := models.LoadDir()
	if err != nil {
		return fmt.Errorf("loading device models: %w", err)
	}
	log.Info("model registry initialised",
		"models", loaded,
		"path", cfg.Engine.ModelPath,
	)

	// The webhook registry routes inbound HTTP traffic from physical
	// devices to their bound proxy. Shared between the engine's HTTP
	// binder and the API's webhook endpoint.
	webhooks := adapter.NewWebhookRegistry()

	// Create and start the device manager
	mgr := engine.New(engine.Config{
		Registry: models,
		Adapters: adapter.NewFactory(log),
		Binders:  adapter.NewBinderFactory(webhooks, log),
		Sink:     sink,
		Defaults: device.ConnectionDefaults{
			BrokerHost: cfg.MQTT.Broker.Host,
			BrokerPort: cfg.MQTT.Broker.Port,
			TLS:        cfg.MQTT.Broker.TLS,
			Username:   cfg.MQTT.Auth.Username,
			Password:   cfg.MQTT.Auth.Password,
		},
		MaxDevices:    cfg.Engine.MaxDevices,
		StatsInterval: cfg.GetStatsInterval(),
		Logger:        log,
	})
	mgr.Start()
	defer func() {
		log.Info("shutting down device manager")
		mgr.Shutdown()
	}()

	// Start the REST API server
	srv, err := api.New(api.Deps{
		Config:   cfg.Service,
		Logger:   log,
		Engine:   mgr,
		Models:   models,
		Webhooks: webhooks,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server (stops accepting requests)
	// 2. Device manager (stops every device)
	// 3. Metrics sink (flushes pending points)

	log.Info("device engine stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses DEVICE_ENGINE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DEVICE_ENGINE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig resolves the engine configuration.
//
// An explicitly set DEVICE_ENGINE_CONFIG must load; failures there are
// fatal. When only the default path is in play, a missing file is the
// normal containerised case and configuration falls back to defaults
// plus environment variables.
//
// Parameters:
//   - log: Logger for reporting the chosen source
//
// Returns:
//   - *config.Config: Validated configuration
//   - error: If the file is unreadable, unparsable, or invalid
func loadConfig(log *logging.Logger) (*config.Config, error) {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err == nil {
		log.Info("configuration loaded", "path", configPath)
		return cfg, nil
	}

	// config.Load wraps the underlying read error, so unwrap-aware
	// matching is required here.
	if configPath == defaultConfigPath && errors.Is(err, os.ErrNotExist) {
		log.Info("no config file found, using environment configuration")
		return config.FromEnv()
	}

	return nil, err
}

// connectMetricsSink connects the InfluxDB writer, falling back to the
// disabled writer when InfluxDB is off or unreachable.
//
// Parameters:
//   - cfg: Application configuration
//   - log: Logger instance
//
// Returns:
//   - *influxdb.Writer: Connected or no-op writer, never nil
func connectMetricsSink(cfg *config.Config, log *logging.Logger) *influxdb.Writer {
	if !cfg.InfluxDB.Enabled {
		log.Info("metrics export disabled")
		return influxdb.NewDisabled()
	}

	writer, err := influxdb.Connect(cfg.InfluxDB)
	if err != nil {
		log.Warn("metrics sink unavailable, continuing without it",
			"url", cfg.InfluxDB.URL,
			"error", err,
		)
		return influxdb.NewDisabled()
	}

	writer.SetOnError(func(err error) {
		log.Error("metrics write error", "error", err)
	})

	log.Info("metrics sink connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return writer
}
