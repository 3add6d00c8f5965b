package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// webhookPathPrefix is the ingest path handed out by HTTP proxy
// bindings. It must stay in step with the /webhooks route below and
// with the path the binder returns.
const webhookPathPrefix = "/api/v1/webhooks/"

// handleWebhook ingests one telemetry payload on behalf of a bound
// proxy device. The wire size recorded on the device is the raw body
// length, not the decoded size.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading body: "+err.Error())
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	if !s.webhooks.Dispatch(id, payload, len(body)) {
		writeNotFound(w, "no webhook binding for device "+id)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "accepted",
		"deviceId": id,
	})
}
