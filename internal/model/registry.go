package model

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/iotix/device-engine/internal/infrastructure/logging"
)

// Registry is the in-memory catalogue of device models.
//
// Models arrive from two directions: JSON files discovered under the model
// directory at startup, and registrations through the API at runtime. The
// registry owns the canonical copy; callers always receive deep copies so
// a registered model can never be mutated from outside.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*DeviceModel

	dir     string
	persist bool
	logger  *logging.Logger
}

// NewRegistry creates an empty model registry.
//
// Parameters:
//   - dir: Directory scanned by LoadDir and used for persisted models
//   - persist: Write API-registered models back to dir as {id}.json
//   - logger: Structured logger
func NewRegistry(dir string, persist bool, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		models:  make(map[string]*DeviceModel),
		dir:     dir,
		persist: persist,
		logger:  logger.With("component", "model-registry"),
	}
}

// LoadDir scans the registry's model directory recursively for *.json
// files and registers every model that parses and validates. A bad file is
// logged and skipped; a missing directory is a warning, not an error. The
// file name is informational only; the id inside the document wins.
//
// Returns:
//   - int: Number of models registered
//   - error: Only on unexpected filesystem failures
func (r *Registry) LoadDir() (int, error) {
	info, err := os.Stat(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Warn("model directory does not exist, starting empty", "path", r.dir)
			return 0, nil
		}
		return 0, fmt.Errorf("stat model directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("model path %q is not a directory", r.dir)
	}

	loaded := 0
	err = filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			r.logger.Error("failed to read model file", "path", path, "error", readErr)
			return nil
		}

		m, parseErr := ParseModel(data)
		if parseErr != nil {
			r.logger.Error("failed to parse model file", "path", path, "error", parseErr)
			return nil
		}

		if err := r.Register(m); err != nil {
			r.logger.Error("failed to register model", "path", path, "error", err)
			return nil
		}

		r.logger.Info("loaded device model", "model_id", m.ID, "path", path)
		loaded++
		return nil
	})
	if err != nil {
		return loaded, fmt.Errorf("scanning model directory: %w", err)
	}

	return loaded, nil
}

// Register validates and stores a model, replacing any existing model
// with the same ID.
func (r *Registry) Register(m *DeviceModel) error {
	if m == nil {
		return ErrInvalidModel
	}
	m.ApplyDefaults()
	if err := m.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	r.models[m.ID] = m.DeepCopy()
	r.mu.Unlock()

	return nil
}

// RegisterNew validates and stores a model, rejecting an ID collision.
// This is the API registration path; POST of a duplicate is a conflict.
// When persistence is enabled the model is written back to the model
// directory so it survives restarts.
func (r *Registry) RegisterNew(m *DeviceModel) error {
	if m == nil {
		return ErrInvalidModel
	}
	m.ApplyDefaults()
	if err := m.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.models[m.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrModelExists, m.ID)
	}
	r.models[m.ID] = m.DeepCopy()
	r.mu.Unlock()

	if r.persist {
		if err := r.save(m); err != nil {
			// The model is live either way; persistence is best effort.
			r.logger.Error("failed to persist model", "model_id", m.ID, "error", err)
		}
	}

	return nil
}

// save writes a model to {dir}/{id}.json with human-readable indentation.
func (r *Registry) save(m *DeviceModel) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("creating model directory: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding model: %w", err)
	}

	path := filepath.Join(r.dir, m.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing model file: %w", err)
	}

	r.logger.Info("persisted device model", "model_id", m.ID, "path", path)
	return nil
}

// Get returns a deep copy of the model with the given ID.
func (r *Registry) Get(id string) (*DeviceModel, error) {
	r.mu.RLock()
	m, ok := r.models[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	return m.DeepCopy(), nil
}

// List returns deep copies of all registered models, sorted by ID for
// stable API output.
func (r *Registry) List() []*DeviceModel {
	r.mu.RLock()
	out := make([]*DeviceModel, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m.DeepCopy())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered models.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}
