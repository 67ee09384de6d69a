package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/h2a-linkage/internal/census"
	"github.com/h2a-linkage/internal/etl"
	"github.com/h2a-linkage/internal/match"
	"github.com/h2a-linkage/internal/schema"
	"github.com/h2a-linkage/internal/table"
)

// AliasPayload mirrors the alias section of the pipeline config
type AliasPayload struct {
	Global map[string]string            `json:"global"`
	Years  map[string]map[string]string `json:"years"`
}

func (a AliasPayload) aliases() (schema.Aliases, error) {
	out := schema.Aliases{Global: a.Global, Year: make(map[int]map[string]string, len(a.Years))}
	for y, m := range a.Years {
		year, err := strconv.Atoi(y)
		if err != nil {
			return schema.Aliases{}, fmt.Errorf("aliases: bad year %q", y)
		}
		out.Year[year] = m
	}
	return out, nil
}

// DerivationPayload concatenates source columns into a new column
type DerivationPayload struct {
	Year    int      `json:"year"`
	Target  string   `json:"target"`
	Sources []string `json:"sources"`
	Sep     string   `json:"sep"`
}

// ReconcileRequest is the body of POST /api/reconcile and /api/diff
type ReconcileRequest struct {
	Years            map[string]TablePayload `json:"years"`
	Aliases          AliasPayload            `json:"aliases"`
	Derived          []DerivationPayload     `json:"derived"`
	Policy           string                  `json:"policy"`
	ProvenanceColumn string                  `json:"provenance_column"`
}

func (req ReconcileRequest) years() (map[int]*table.Table, error) {
	out := make(map[int]*table.Table, len(req.Years))
	for y, p := range req.Years {
		year, err := strconv.Atoi(y)
		if err != nil {
			return nil, fmt.Errorf("years: bad year %q", y)
		}
		t, err := p.Table()
		if err != nil {
			return nil, fmt.Errorf("year %d: %w", year, err)
		}
		out[year] = t
	}
	return out, nil
}

// Reconcile handles POST /api/reconcile
func (h *PipelineHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if !h.decode(w, r, &req) {
		return
	}
	years, err := req.years()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid years", err)
		return
	}
	aliases, err := req.Aliases.aliases()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid aliases", err)
		return
	}
	policy, err := schema.ParsePolicy(req.Policy)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid policy", err)
		return
	}
	derived := make([]schema.Concat, len(req.Derived))
	for i, d := range req.Derived {
		derived[i] = schema.Concat{Year: d.Year, Target: d.Target, Sources: d.Sources, Sep: d.Sep}
	}

	res, err := h.Pipeline.Reconcile(r.Context(), etl.ReconcileInput{
		Years:            years,
		Aliases:          aliases,
		Derived:          derived,
		Policy:           policy,
		ProvenanceColumn: req.ProvenanceColumn,
	})
	if err != nil {
		stageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stageResponse(res))
}

// DiffResponse compares raw and alias-resolved column drift
type DiffResponse struct {
	Raw      schema.DiffReport `json:"raw"`
	Resolved schema.DiffReport `json:"resolved"`
}

// Diff handles POST /api/diff
func (h *PipelineHandler) Diff(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if !h.decode(w, r, &req) {
		return
	}
	years, err := req.years()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid years", err)
		return
	}
	aliases, err := req.Aliases.aliases()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid aliases", err)
		return
	}
	writeJSON(w, http.StatusOK, DiffResponse{
		Raw:      etl.Diff(years, nil),
		Resolved: etl.Diff(years, &aliases),
	})
}

// PercentagesRequest is the body of POST /api/percentages. Sources maps a
// data source tag to its ACS pull.
type PercentagesRequest struct {
	Sources      map[string]TablePayload `json:"sources"`
	Excluded     []string                `json:"excluded"`
	Reference    []string                `json:"reference"`
	Drop         []string                `json:"drop"`
	GeoColumn    string                  `json:"geo_column"`
	SourceColumn string                  `json:"source_column"`
}

// Percentages handles POST /api/percentages
func (h *PipelineHandler) Percentages(w http.ResponseWriter, r *http.Request) {
	var req PercentagesRequest
	if !h.decode(w, r, &req) {
		return
	}
	sources := make(map[string]*table.Table, len(req.Sources))
	for name, p := range req.Sources {
		t, err := p.Table()
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid source "+name, err)
			return
		}
		sources[name] = t
	}
	excluded := make(map[string]bool, len(req.Excluded))
	for _, e := range req.Excluded {
		excluded[e] = true
	}
	reference := make(census.ReferenceSet, 0, len(req.Reference))
	for _, k := range req.Reference {
		key, err := census.NormalizeKey(k)
		if err != nil {
			stageError(w, err)
			return
		}
		reference = append(reference, key)
	}

	res, err := h.Pipeline.Percentages(r.Context(), etl.PercentageInput{
		Sources:      sources,
		Excluded:     excluded,
		Reference:    reference,
		Drop:         req.Drop,
		GeoColumn:    req.GeoColumn,
		SourceColumn: req.SourceColumn,
	})
	if err != nil {
		stageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stageResponse(res.StageResult))
}

// MatchRequest is the body of POST /api/match
type MatchRequest struct {
	Left         TablePayload `json:"left"`
	Right        TablePayload `json:"right"`
	LeftBlock    []string     `json:"left_block"`
	RightBlock   []string     `json:"right_block"`
	LeftFields   []string     `json:"left_fields"`
	RightFields  []string     `json:"right_fields"`
	Method       string       `json:"method"`
	Threshold    float64      `json:"threshold"`
	ProjectLeft  []string     `json:"project_left"`
	ProjectRight []string     `json:"project_right"`
	Workers      int          `json:"workers"`
}

// MatchResponse carries the linked pairs and their projected table
type MatchResponse struct {
	StageResponse
	Pairs      []match.CandidateLinkPair `json:"pairs"`
	Candidates int                       `json:"candidates"`
	Blocks     int                       `json:"blocks"`
}

// Match handles POST /api/match
func (h *PipelineHandler) Match(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	left, err := req.Left.Table()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid left table", err)
		return
	}
	right, err := req.Right.Table()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid right table", err)
		return
	}

	res, err := h.Pipeline.Match(r.Context(), left, right, match.Options{
		LeftBlock:    req.LeftBlock,
		RightBlock:   req.RightBlock,
		LeftFields:   req.LeftFields,
		RightFields:  req.RightFields,
		Method:       req.Method,
		Threshold:    req.Threshold,
		ProjectLeft:  req.ProjectLeft,
		ProjectRight: req.ProjectRight,
		Workers:      req.Workers,
	})
	if err != nil {
		stageError(w, err)
		return
	}
	pairs := res.Match.Pairs
	if pairs == nil {
		pairs = []match.CandidateLinkPair{}
	}
	writeJSON(w, http.StatusOK, MatchResponse{
		StageResponse: stageResponse(res.StageResult),
		Pairs:         pairs,
		Candidates:    res.Match.Candidates,
		Blocks:        res.Match.Blocks,
	})
}

// RepresentRequest is the body of POST /api/represent
type RepresentRequest struct {
	Table       TablePayload      `json:"table"`
	GroupBy     string            `json:"group_by"`
	Types       map[string]string `json:"types"`
	DateLayouts []string          `json:"date_layouts"`
}

// Represent handles POST /api/represent
func (h *PipelineHandler) Represent(w http.ResponseWriter, r *http.Request) {
	var req RepresentRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := req.Table.Table()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid table", err)
		return
	}
	if !t.Has(req.GroupBy) {
		writeError(w, http.StatusBadRequest, "Invalid group_by", fmt.Errorf("column %q not found", req.GroupBy))
		return
	}
	kinds := make(map[string]table.Kind, len(req.Types))
	for col, name := range req.Types {
		k, err := table.ParseKind(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid types", err)
			return
		}
		kinds[col] = k
	}

	res, err := h.Pipeline.Represent(r.Context(), etl.RepresentInput{
		Table:   t,
		GroupBy: req.GroupBy,
		Kinds:   kinds,
		Layouts: req.DateLayouts,
	})
	if err != nil {
		stageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stageResponse(res))
}
