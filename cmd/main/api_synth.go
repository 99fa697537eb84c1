package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/CTAG07/Nepenthes/pkg/markov"
	"github.com/CTAG07/Nepenthes/pkg/sample"
	"github.com/CTAG07/Nepenthes/pkg/statemachine"
	"github.com/CTAG07/Nepenthes/pkg/store"
)

// maxBodyBytes bounds uploaded definitions and training text.
const maxBodyBytes = 32 << 20

// SynthAPI holds the dependencies for the definition API handlers.
type SynthAPI struct {
	store  *store.Store
	logger *slog.Logger
}

// NewSynthAPI creates a new instance of the SynthAPI.
func NewSynthAPI(s *store.Store, logger *slog.Logger) *SynthAPI {
	return &SynthAPI{store: s, logger: logger}
}

// RegisterRoutes sets up the routing for lists, corpora, graphs and bulk
// import/export.
func (a *SynthAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/lists", a.handleLists)
	mux.HandleFunc("/api/lists/", a.handleListByName)
	mux.HandleFunc("/api/corpora", a.handleCorpora)
	mux.HandleFunc("/api/corpora/", a.handleCorpusByName)
	mux.HandleFunc("/api/graphs", a.handleGraphs)
	mux.HandleFunc("/api/graphs/", a.handleGraphByName)
	mux.HandleFunc("/api/export", a.handleExport)
	mux.HandleFunc("/api/import", a.handleImport)
}

// ListDetails is returned for a single list.
type ListDetails struct {
	store.ListInfo
	Entries []ValueDefinition `json:"entries"`
}

// CorpusDetails is returned for a single corpus.
type CorpusDetails struct {
	store.CorpusInfo
	Stats markov.ModelStats `json:"stats"`
}

// GraphDetails is returned for a single graph. Problem explains why a machine
// built from the graph would fail to initialize.
type GraphDetails struct {
	store.GraphInfo
	Notation string `json:"notation"`
	Valid    bool   `json:"valid"`
	Problem  string `json:"problem,omitempty"`
}

// splitName splits "/api/kind/{name}/{action}" into name and action.
func splitName(path, prefix string) (name, action string) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	name, action, _ = strings.Cut(rest, "/")
	return name, action
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return false
	}
	return true
}

func toRows(values []ValueDefinition) []sample.Row[string] {
	rows := make([]sample.Row[string], 0, len(values))
	for _, v := range values {
		row := sample.Row[string]{Value: v.Value}
		if v.Weight != nil {
			row.Weight, row.HasWeight = *v.Weight, true
		}
		rows = append(rows, row)
	}
	return rows
}

// --- lists ---

func (a *SynthAPI) handleLists(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !requireScope(w, r, scopeSynthRead) {
			return
		}
		lists, err := a.store.Lists(r.Context())
		if err != nil {
			respondWithStoreError(w, r, a.logger, "list lists", err)
			return
		}
		if lists == nil {
			lists = []store.ListInfo{}
		}
		respondWithJSON(w, http.StatusOK, lists)

	case http.MethodPost:
		if !requireScope(w, r, scopeSynthWrite) {
			return
		}
		var def ListDefinition
		if !decodeJSON(w, r, &def) {
			return
		}
		if def.Name == "" {
			respondWithError(w, http.StatusBadRequest, "List name is required")
			return
		}
		if _, err := a.store.ListInfo(r.Context(), def.Name); err == nil {
			respondWithError(w, http.StatusConflict, fmt.Sprintf("List %q already exists", def.Name))
			return
		}
		if _, err := applyList(r.Context(), a.store, def, false); err != nil {
			respondWithStoreError(w, r, a.logger, "create list", err)
			return
		}
		info, err := a.store.ListInfo(r.Context(), def.Name)
		if err != nil {
			respondWithStoreError(w, r, a.logger, "create list", err)
			return
		}
		respondWithJSON(w, http.StatusCreated, info)

	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (a *SynthAPI) handleListByName(w http.ResponseWriter, r *http.Request) {
	name, action := splitName(r.URL.Path, "/api/lists/")
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "List name not specified")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		if !requireScope(w, r, scopeSynthRead) {
			return
		}
		info, err := a.store.ListInfo(r.Context(), name)
		if err != nil {
			respondWithStoreError(w, r, a.logger, "get list", err)
			return
		}
		rows, err := a.store.ListValues(r.Context(), name)
		if err != nil {
			respondWithStoreError(w, r, a.logger, "get list", err)
			return
		}
		details := ListDetails{ListInfo: info, Entries: make([]ValueDefinition, 0, len(rows))}
		for _, row := range rows {
			v := ValueDefinition{Value: row.Value}
			if row.HasWeight {
				weight := row.Weight
				v.Weight = &weight
			}
			details.Entries = append(details.Entries, v)
		}
		respondWithJSON(w, http.StatusOK, details)

	case action == "" && r.Method == http.MethodDelete:
		if !requireScope(w, r, scopeSynthWrite) {
			return
		}
		if err := a.store.RemoveList(r.Context(), name); err != nil {
			respondWithStoreError(w, r, a.logger, "remove list", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case action == "":
		methodNotAllowed(w, "GET, DELETE")

	case action == "values" && r.Method == http.MethodPost:
		if !requireScope(w, r, scopeSynthWrite) {
			return
		}
		var values []ValueDefinition
		if !decodeJSON(w, r, &values) {
			return
		}
		if err := a.store.AddListValues(r.Context(), name, toRows(values)); err != nil {
			respondWithStoreError(w, r, a.logger, "add values", err)
			return
		}
		info, err := a.store.ListInfo(r.Context(), name)
		if err != nil {
			respondWithStoreError(w, r, a.logger, "add values", err)
			return
		}
		respondWithJSON(w, http.StatusOK, info)

	case action == "values":
		methodNotAllowed(w, "POST")

	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

// --- corpora ---

func (a *SynthAPI) handleCorpora(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !requireScope(w, r, scopeSynthRead) {
			return
		}
		corpora, err := a.store.Corpora(r.Context())
		if err != nil {
			respondWithStoreError(w, r, a.logger, "list corpora", err)
			return
		}
		if corpora == nil {
			corpora = []store.CorpusInfo{}
		}
		respondWithJSON(w, http.StatusOK, corpora)

	case http.MethodPost:
		if !requireScope(w, r, scopeSynthWrite) {
			return
		}
		var def CorpusDefinition
		if !decodeJSON(w, r, &def) {
			return
		}
		if def.Name == "" || def.Depth <= 0 {
			respondWithError(w, http.StatusBadRequest, "Corpus name and a positive depth are required")
			return
		}
		if _, err := a.store.CorpusInfo(r.Context(), def.Name); err == nil {
			respondWithError(w, http.StatusConflict, fmt.Sprintf("Corpus %q already exists", def.Name))
			return
		}
		if _, err := applyCorpus(r.Context(), a.store, def, false); err != nil {
			respondWithStoreError(w, r, a.logger, "create corpus", err)
			return
		}
		info, err := a.store.CorpusInfo(r.Context(), def.Name)
		if err != nil {
			respondWithStoreError(w, r, a.logger, "create corpus", err)
			return
		}
		respondWithJSON(w, http.StatusCreated, info)

	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (a *SynthAPI) handleCorpusByName(w http.ResponseWriter, r *http.Request) {
	name, action := splitName(r.URL.Path, "/api/corpora/")
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Corpus name not specified")
		return
	}
	ctx := r.Context()

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			if !requireScope(w, r, scopeSynthRead) {
				return
			}
			info, err := a.store.CorpusInfo(ctx, name)
			if err != nil {
				respondWithStoreError(w, r, a.logger, "get corpus", err)
				return
			}
			m, err := a.store.LoadModel(ctx, name)
			if err != nil {
				respondWithStoreError(w, r, a.logger, "get corpus", err)
				return
			}
			respondWithJSON(w, http.StatusOK, CorpusDetails{CorpusInfo: info, Stats: m.Stats()})
		case http.MethodDelete:
			if !requireScope(w, r, scopeSynthWrite) {
				return
			}
			if err := a.store.RemoveCorpus(ctx, name); err != nil {
				respondWithStoreError(w, r, a.logger, "remove corpus", err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, "GET, DELETE")
		}

	case "sequences":
		switch r.Method {
		case http.MethodGet:
			if !requireScope(w, r, scopeSynthRead) {
				return
			}
			seqs, err := a.store.Sequences(ctx, name)
			if err != nil {
				respondWithStoreError(w, r, a.logger, "get sequences", err)
				return
			}
			if seqs == nil {
				seqs = [][]string{}
			}
			respondWithJSON(w, http.StatusOK, seqs)
		case http.MethodPost:
			if !requireScope(w, r, scopeSynthWrite) {
				return
			}
			var seqs [][]string
			if !decodeJSON(w, r, &seqs) {
				return
			}
			if err := a.store.AddSequences(ctx, name, seqs); err != nil {
				respondWithStoreError(w, r, a.logger, "add sequences", err)
				return
			}
			respondWithJSON(w, http.StatusOK, map[string]int{"sequences": len(seqs)})
		default:
			methodNotAllowed(w, "GET, POST")
		}

	case "train":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, "POST")
			return
		}
		if !requireScope(w, r, scopeSynthWrite) {
			return
		}
		count, err := a.store.AddText(ctx, name, markov.NewTextTokenizer(), http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			respondWithStoreError(w, r, a.logger, "train corpus", err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]int{"sentences": count})

	case "export":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, "GET")
			return
		}
		if !requireScope(w, r, scopeSynthRead) {
			return
		}
		m, err := a.store.LoadModel(ctx, name)
		if err != nil {
			respondWithStoreError(w, r, a.logger, "export corpus", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.json\"", name))
		if err = m.ExportModel(ctx, name, w); err != nil {
			a.logger.ErrorContext(ctx, "Failed to export model", slog.String("corpus_name", name), slog.Any("error", err))
		}

	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

// --- graphs ---

func (a *SynthAPI) handleGraphs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !requireScope(w, r, scopeSynthRead) {
			return
		}
		graphs, err := a.store.Graphs(r.Context())
		if err != nil {
			respondWithStoreError(w, r, a.logger, "list graphs", err)
			return
		}
		if graphs == nil {
			graphs = []store.GraphInfo{}
		}
		respondWithJSON(w, http.StatusOK, graphs)

	case http.MethodPost:
		if !requireScope(w, r, scopeSynthWrite) {
			return
		}
		var def GraphDefinition
		if !decodeJSON(w, r, &def) {
			return
		}
		if def.Name == "" {
			respondWithError(w, http.StatusBadRequest, "Graph name is required")
			return
		}
		if _, err := a.store.GraphInfo(r.Context(), def.Name); err == nil {
			respondWithError(w, http.StatusConflict, fmt.Sprintf("Graph %q already exists", def.Name))
			return
		}
		if _, err := applyGraph(r.Context(), a.store, def, false); err != nil {
			respondWithStoreError(w, r, a.logger, "create graph", err)
			return
		}
		a.respondWithGraph(w, r, def.Name, http.StatusCreated)

	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (a *SynthAPI) handleGraphByName(w http.ResponseWriter, r *http.Request) {
	name, action := splitName(r.URL.Path, "/api/graphs/")
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Graph name not specified")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		if !requireScope(w, r, scopeSynthRead) {
			return
		}
		a.respondWithGraph(w, r, name, http.StatusOK)

	case action == "" && r.Method == http.MethodDelete:
		if !requireScope(w, r, scopeSynthWrite) {
			return
		}
		if err := a.store.RemoveGraph(r.Context(), name); err != nil {
			respondWithStoreError(w, r, a.logger, "remove graph", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case action == "":
		methodNotAllowed(w, "GET, DELETE")

	case action == "transitions" && r.Method == http.MethodPost:
		if !requireScope(w, r, scopeSynthWrite) {
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Failed to read request body")
			return
		}
		ts, err := statemachine.ParseTransitions(string(body))
		if err != nil {
			respondWithStoreError(w, r, a.logger, "add transitions", err)
			return
		}
		if err = a.store.AddTransitions(r.Context(), name, ts); err != nil {
			respondWithStoreError(w, r, a.logger, "add transitions", err)
			return
		}
		a.respondWithGraph(w, r, name, http.StatusOK)

	case action == "transitions":
		methodNotAllowed(w, "POST")

	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

// respondWithGraph writes the graph's details, including whether a machine
// built from it would initialize.
func (a *SynthAPI) respondWithGraph(w http.ResponseWriter, r *http.Request, name string, code int) {
	ctx := r.Context()
	info, err := a.store.GraphInfo(ctx, name)
	if err != nil {
		respondWithStoreError(w, r, a.logger, "get graph", err)
		return
	}
	ts, err := a.store.Transitions(ctx, name)
	if err != nil {
		respondWithStoreError(w, r, a.logger, "get graph", err)
		return
	}
	details := GraphDetails{GraphInfo: info}
	if details.Notation, err = statemachine.FormatTransitions(ts); err != nil {
		details.Notation = ""
	}

	m, err := a.store.LoadMachine(ctx, name)
	if err == nil {
		err = m.Init(ctx)
		_ = m.Close()
	}
	details.Valid = err == nil
	if err != nil {
		details.Problem = err.Error()
	}
	respondWithJSON(w, code, details)
}

// --- bulk ---

func (a *SynthAPI) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	if !requireScope(w, r, scopeSynthRead) {
		return
	}
	defs, err := ExportDefinitions(r.Context(), a.store)
	if err != nil {
		respondWithStoreError(w, r, a.logger, "export definitions", err)
		return
	}

	if r.URL.Query().Get("format") != "yaml" {
		respondWithJSON(w, http.StatusOK, defs)
		return
	}
	data, err := yaml.Marshal(defs)
	if err != nil {
		respondWithStoreError(w, r, a.logger, "export definitions", err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *SynthAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	if !requireScope(w, r, scopeSynthWrite) {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	defs, err := ParseDefinitions(data)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	replace := r.URL.Query().Get("replace") == "true"
	result, err := ApplyDefinitions(r.Context(), a.store, defs, replace)
	if err != nil {
		respondWithStoreError(w, r, a.logger, "import definitions", err)
		return
	}
	a.logger.InfoContext(r.Context(), "Definitions imported",
		slog.Int("created", len(result.Created)),
		slog.Int("skipped", len(result.Skipped)),
		slog.Bool("replace", replace),
	)
	respondWithJSON(w, http.StatusOK, result)
}
