package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/h2a-linkage/internal/store"
)

// HealthResponse reports service and database state
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Health handles GET /api/health
func (h *PipelineHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Database: "disabled"}
	if h.Store != nil {
		resp.Database = "ok"
		if err := h.Store.DB().PingContext(r.Context()); err != nil {
			resp.Status, resp.Database = "degraded", err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// RunsResponse lists recorded stage runs
type RunsResponse struct {
	Runs  []store.Run `json:"runs"`
	Total int         `json:"total"`
}

// ListRuns handles GET /api/runs
func (h *PipelineHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotFound, "Run history disabled", nil)
		return
	}
	runs, err := h.Store.Runs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error", err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, RunsResponse{Runs: runs, Total: len(runs)})
}

// GetRunTable handles GET /api/runs/{id}/tables/{name}
func (h *PipelineHandler) GetRunTable(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotFound, "Run history disabled", nil)
		return
	}
	vars := mux.Vars(r)
	t, err := h.Store.LoadTable(r.Context(), vars["id"], vars["name"])
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Table not found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error", err)
		return
	}
	writeJSON(w, http.StatusOK, StageResponse{RunID: vars["id"], Table: NewTablePayload(t)})
}
