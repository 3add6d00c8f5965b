package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iotix/device-engine/internal/engine"
	"github.com/iotix/device-engine/internal/model"
)

type createGroupRequest struct {
	ModelID   string `json:"modelId"`
	Count     int    `json:"count"`
	GroupID   string `json:"groupId,omitempty"`
	IDPattern string `json:"idPattern,omitempty"`
	StaggerMs int    `json:"staggerMs,omitempty"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.ModelID == "" {
		writeBadRequest(w, "modelId is required")
		return
	}

	result, err := s.engine.CreateGroup(r.Context(), engine.GroupSpec{
		ModelID:   req.ModelID,
		Count:     req.Count,
		GroupID:   req.GroupID,
		IDPattern: req.IDPattern,
		StaggerMs: req.StaggerMs,
	})
	if err != nil {
		// Devices created before the failure stay registered; the error
		// tells the caller where creation stopped.
		if errors.Is(err, model.ErrModelNotFound) {
			writeBadRequest(w, err.Error())
			return
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleStartGroup(w http.ResponseWriter, r *http.Request) {
	staggerMs, err := queryInt(r.URL.Query().Get("staggerMs"), 0)
	if err != nil {
		writeBadRequest(w, "staggerMs must be an integer")
		return
	}

	// The launch config body is optional; without one the stagger query
	// parameter (or an immediate launch) applies.
	var cfg *engine.LaunchConfig
	var lc engine.LaunchConfig
	switch err := json.NewDecoder(r.Body).Decode(&lc); {
	case errors.Is(err, io.EOF):
	case err != nil:
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	default:
		cfg = &lc
	}

	result, err := s.engine.StartGroup(r.Context(), chi.URLParam(r, "id"), staggerMs, cfg)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStopGroup(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.StopGroup(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if _, err := s.engine.DeleteGroup(chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDropout(w http.ResponseWriter, r *http.Request) {
	// An empty body means the default: immediate dropout of every
	// running member.
	var cfg engine.DropoutConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	result, err := s.engine.SimulateDropouts(r.Context(), chi.URLParam(r, "id"), cfg)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
