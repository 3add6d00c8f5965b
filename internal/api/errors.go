package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iotix/device-engine/internal/engine"
	"github.com/iotix/device-engine/internal/model"
)

// Error is the JSON shape returned for every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stable machine-readable error codes. Clients branch on these rather
// than parsing messages.
const (
	ErrCodeInvalidArgument   = "invalid_argument"
	ErrCodeNotFound          = "not_found"
	ErrCodeAlreadyExists     = "already_exists"
	ErrCodeResourceExhausted = "resource_exhausted"
	ErrCodeConnectionFailed  = "connection_failed"
	ErrCodeInternal          = "internal"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeInvalidArgument, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError translates engine and model sentinels into their
// HTTP representation. Handlers with endpoint-specific mappings (for
// example device start, where any failure is a connection problem)
// check those sentinels before falling through to this.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrDeviceNotFound),
		errors.Is(err, engine.ErrGroupNotFound),
		errors.Is(err, model.ErrModelNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, engine.ErrDeviceExists),
		errors.Is(err, model.ErrModelExists):
		writeError(w, http.StatusConflict, ErrCodeAlreadyExists, err.Error())
	case errors.Is(err, engine.ErrCapacity):
		writeError(w, http.StatusServiceUnavailable, ErrCodeResourceExhausted, err.Error())
	case errors.Is(err, engine.ErrNotProxy),
		errors.Is(err, engine.ErrInvalidRequest),
		errors.Is(err, model.ErrInvalidModel),
		errors.Is(err, model.ErrInvalidType),
		errors.Is(err, model.ErrInvalidProtocol),
		errors.Is(err, model.ErrInvalidTelemetry):
		writeBadRequest(w, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
