// Package api provides the HTTP control surface of the device engine.
//
// It translates REST calls into device manager operations, maps domain
// errors onto status codes, and hosts the inbound webhook endpoint that
// feeds HTTP-bound proxy devices.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start()
//	defer server.Close()
//
// Thread Safety: all methods are safe for concurrent use.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/iotix/device-engine/internal/adapter"
	"github.com/iotix/device-engine/internal/engine"
	"github.com/iotix/device-engine/internal/infrastructure/config"
	"github.com/iotix/device-engine/internal/infrastructure/logging"
	"github.com/iotix/device-engine/internal/model"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.ServiceConfig
	Logger   *logging.Logger
	Engine   *engine.Manager
	Models   *model.Registry
	Webhooks *adapter.WebhookRegistry
	Version  string
}

// Server is the HTTP API server of the device engine.
//
// It owns the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg       config.ServiceConfig
	logger    *logging.Logger
	engine    *engine.Manager
	models    *model.Registry
	webhooks  *adapter.WebhookRegistry
	version   string
	startedAt time.Time
	server    *http.Server
}

// New creates an API server with the given dependencies.
//
// The server does not listen until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("device manager is required")
	}
	if deps.Models == nil {
		return nil, fmt.Errorf("model registry is required")
	}
	if deps.Webhooks == nil {
		deps.Webhooks = adapter.NewWebhookRegistry()
	}
	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger.With("component", "api"),
		engine:    deps.Engine,
		models:    deps.Models,
		webhooks:  deps.Webhooks,
		version:   deps.Version,
		startedAt: time.Now(),
	}, nil
}

// Start launches the HTTP listener in a background goroutine. The
// server keeps serving until Close().
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server. It waits up to 10
// seconds for in-flight requests, then closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
