package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/h2a-linkage/internal/census"
	"github.com/h2a-linkage/internal/etl"
	"github.com/h2a-linkage/internal/match"
	"github.com/h2a-linkage/internal/represent"
	"github.com/h2a-linkage/internal/schema"
	"github.com/h2a-linkage/internal/store"
	"github.com/h2a-linkage/internal/table"
)

// Config holds the handler limits (kept here to avoid an import cycle)
type Config struct {
	MaxBodyBytes int64 `json:"max_body_bytes"`
}

// PipelineHandler exposes the linkage stages over HTTP. Store may be nil,
// in which case runs are not recorded and the run endpoints answer 404.
type PipelineHandler struct {
	Pipeline *etl.Pipeline
	Store    *store.Store
	Config   *Config
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// TablePayload is a table on the wire: column names plus positional rows
type TablePayload struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Table converts the payload. Rows longer than the header are rejected.
func (p TablePayload) Table() (*table.Table, error) {
	seen := make(map[string]bool, len(p.Columns))
	for _, c := range p.Columns {
		if seen[c] {
			return nil, fmt.Errorf("duplicate column %q", c)
		}
		seen[c] = true
	}
	t := table.New(p.Columns...)
	for i, cells := range p.Rows {
		if len(cells) > len(p.Columns) {
			return nil, fmt.Errorf("row %d has %d cells for %d columns", i, len(cells), len(p.Columns))
		}
		r := make(table.Row, len(p.Columns))
		for j, c := range p.Columns {
			if j < len(cells) {
				r[c] = cells[j]
			} else {
				r[c] = nil
			}
		}
		t.Append(r)
	}
	return t, nil
}

// NewTablePayload renders a table. Times are written in their text form.
func NewTablePayload(t *table.Table) TablePayload {
	out := TablePayload{Columns: t.Columns, Rows: make([][]any, len(t.Rows))}
	for i, r := range t.Rows {
		cells := make([]any, len(t.Columns))
		for j, c := range t.Columns {
			cells[j] = wireCell(r[c])
		}
		out.Rows[i] = cells
	}
	return out
}

func wireCell(v any) any {
	if table.IsNull(v) {
		return nil
	}
	switch v.(type) {
	case string, float64, int, int64, bool:
		return v
	}
	return table.Format(v)
}

// StageResponse is returned by every stage endpoint
type StageResponse struct {
	RunID string       `json:"run_id,omitempty"`
	Table TablePayload `json:"table"`
}

func stageResponse(res *etl.StageResult) StageResponse {
	return StageResponse{RunID: res.RunID, Table: NewTablePayload(res.Table)}
}

func (h *PipelineHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := r.Body
	if h.Config != nil && h.Config.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes)
	}
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON request", err)
		return false
	}
	return true
}

// stageError maps engine errors to a status. Input problems the caller can
// fix are 422; anything else is a server error.
func stageError(w http.ResponseWriter, err error) {
	var (
		arity    *match.MismatchedArityError
		empty    *match.EmptyBlockError
		method   *match.UnknownMethodError
		column   *match.MissingColumnError
		conflict *schema.SchemaConflictError
		geo      *census.UnknownGeographyFormatError
		dup      *census.DuplicateGroupKeyError
		kind     *represent.UnsupportedTypeError
		parse    *table.ParseError
	)
	switch {
	case errors.As(err, &arity), errors.As(err, &empty), errors.As(err, &method),
		errors.As(err, &column), errors.As(err, &conflict), errors.As(err, &geo),
		errors.As(err, &dup), errors.As(err, &kind), errors.As(err, &parse),
		errors.Is(err, match.ErrInvalidThreshold), errors.Is(err, schema.ErrEmptyInput):
		writeError(w, http.StatusUnprocessableEntity, "Stage rejected input", err)
	default:
		writeError(w, http.StatusInternalServerError, "Stage failed", err)
	}
}

// Allow answers 405 for any method outside methods. Routes register paths
// without mux method matchers, since mux loses a method mismatch once a later
// route on the same subrouter misses on path.
func Allow(h http.HandlerFunc, methods ...string) http.HandlerFunc {
	allowed := strings.Join(methods, ", ")
	return func(w http.ResponseWriter, r *http.Request) {
		for _, m := range methods {
			if r.Method == m {
				h(w, r)
				return
			}
		}
		w.Header().Set("Allow", allowed)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
