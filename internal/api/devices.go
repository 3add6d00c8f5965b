package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/iotix/device-engine/internal/engine"
	"github.com/iotix/device-engine/internal/model"
)

type createDeviceRequest struct {
	ModelID            string                  `json:"modelId"`
	DeviceID           string                  `json:"deviceId,omitempty"`
	GroupID            string                  `json:"groupId,omitempty"`
	OverrideConnection *model.ConnectionConfig `json:"overrideConnection,omitempty"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := queryInt(q.Get("page"), 0)
	if err != nil {
		writeBadRequest(w, "page must be an integer")
		return
	}
	pageSize, err := queryInt(q.Get("pageSize"), 0)
	if err != nil {
		writeBadRequest(w, "pageSize must be an integer")
		return
	}

	list := s.engine.ListDevices(engine.ListFilter{
		Status:   q.Get("status"),
		GroupID:  q.Get("groupId"),
		ModelID:  q.Get("modelId"),
		Page:     page,
		PageSize: pageSize,
	})
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.ModelID == "" {
		writeBadRequest(w, "modelId is required")
		return
	}

	dev, err := s.engine.CreateDevice(req.ModelID, engine.CreateOptions{
		DeviceID: req.DeviceID,
		GroupID:  req.GroupID,
		Override: req.OverrideConnection,
	})
	if err != nil {
		// An unknown model on create is a bad request, not a missing
		// /devices resource.
		if errors.Is(err, model.ErrModelNotFound) {
			writeBadRequest(w, err.Error())
			return
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, dev.Snapshot())
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.engine.GetDevice(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev.Snapshot())
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteDevice(chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.engine.StartDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, engine.ErrDeviceNotFound) {
			writeDomainError(w, err)
			return
		}
		// Anything else at start time is a connection problem with the
		// configured broker or endpoint.
		writeError(w, http.StatusInternalServerError, ErrCodeConnectionFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dev.Snapshot())
}

func (s *Server) handleStopDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.engine.StopDevice(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev.Snapshot())
}

func (s *Server) handleDeviceMetrics(w http.ResponseWriter, r *http.Request) {
	dev, err := s.engine.GetDevice(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev.Metrics())
}

type bindRequest struct {
	Config model.BindingConfig `json:"config"`
}

type bindResponse struct {
	DeviceID   string              `json:"deviceId"`
	Status     string              `json:"status"`
	Binding    model.BindingConfig `json:"binding"`
	WebhookURL string              `json:"webhookUrl,omitempty"`
}

func (s *Server) handleBindDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req bindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	webhookPath, err := s.engine.BindDevice(r.Context(), id, req.Config)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bindResponse{
		DeviceID:   id,
		Status:     "bound",
		Binding:    req.Config,
		WebhookURL: webhookPath,
	})
}

func (s *Server) handleUnbindDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.UnbindDevice(id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"deviceId": id,
		"status":   "unbound",
	})
}

func (s *Server) handleDeviceBinding(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.DeviceBinding(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// queryInt parses an optional integer query parameter, returning def
// when the parameter is absent.
func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
