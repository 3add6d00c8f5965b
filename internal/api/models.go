package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iotix/device-engine/internal/model"
)

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models := s.models.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"models": models,
		"count":  len(models),
	})
}

func (s *Server) handleRegisterModel(w http.ResponseWriter, r *http.Request) {
	var m model.DeviceModel
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	if err := s.models.RegisterNew(&m); err != nil {
		writeDomainError(w, err)
		return
	}

	s.logger.Info("model registered", "model_id", m.ID, "type", m.Type, "protocol", m.Protocol)

	// Read back the stored copy so the response reflects applied defaults.
	stored, err := s.models.Get(m.ID)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	m, err := s.models.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
