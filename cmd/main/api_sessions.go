package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// SessionAPI holds the dependencies for the generation session handlers.
type SessionAPI struct {
	sessions *SessionManager
	cm       *ConfigManager
	logger   *slog.Logger
}

// NewSessionAPI creates a new instance of the SessionAPI.
func NewSessionAPI(sessions *SessionManager, cm *ConfigManager, logger *slog.Logger) *SessionAPI {
	return &SessionAPI{sessions: sessions, cm: cm, logger: logger}
}

// RegisterRoutes sets up the routing for all /api/sessions endpoints.
func (a *SessionAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/sessions", a.handleSessions)
	mux.HandleFunc("/api/sessions/", a.handleSessionByID)
}

// GenerateResponse carries the values of one generate call. Exhausted is set
// when a finite generator ran out before count values were produced; the
// session needs a reset before it produces more.
type GenerateResponse struct {
	Values    any  `json:"values"`
	Count     int  `json:"count"`
	Exhausted bool `json:"exhausted"`
}

func (a *SessionAPI) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !requireScope(w, r, scopeSynthRead) {
			return
		}
		respondWithJSON(w, http.StatusOK, a.sessions.List())

	case http.MethodPost:
		if !requireScope(w, r, scopeSynthGenerate) {
			return
		}
		var req CreateSessionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Name == "" || req.TopK < 0 {
			respondWithError(w, http.StatusBadRequest, "A definition name and a non-negative top_k are required")
			return
		}
		session, err := a.sessions.Create(r.Context(), req)
		if err != nil {
			respondWithStoreError(w, r, a.logger, "open session", err)
			return
		}
		respondWithJSON(w, http.StatusCreated, session)

	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (a *SessionAPI) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	id, action := splitName(r.URL.Path, "/api/sessions/")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "Session ID not specified")
		return
	}

	if action == "" && r.Method == http.MethodDelete {
		if !requireScope(w, r, scopeSynthGenerate) {
			return
		}
		if err := a.sessions.Delete(r.Context(), id); err != nil {
			respondWithStoreError(w, r, a.logger, "close session", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	session, err := a.sessions.Get(id)
	if err != nil {
		respondWithStoreError(w, r, a.logger, "get session", err)
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, "GET, DELETE")
			return
		}
		if !requireScope(w, r, scopeSynthRead) {
			return
		}
		respondWithJSON(w, http.StatusOK, session)

	case "generate":
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			methodNotAllowed(w, "GET, POST")
			return
		}
		if !requireScope(w, r, scopeSynthGenerate) {
			return
		}
		count, err := parseCount(r, a.cm.Generation())
		if err != nil {
			respondWithStoreError(w, r, a.logger, "generate", err)
			return
		}
		values, n, err := session.Take(count)
		if err != nil {
			respondWithStoreError(w, r, a.logger, "generate", err)
			return
		}
		respondWithJSON(w, http.StatusOK, GenerateResponse{Values: values, Count: n, Exhausted: n < count})

	case "stream":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, "GET")
			return
		}
		if !requireScope(w, r, scopeSynthGenerate) {
			return
		}
		count, err := parseCount(r, a.cm.Generation())
		if err != nil {
			respondWithStoreError(w, r, a.logger, "stream", err)
			return
		}
		a.stream(w, r, session, count)

	case "reset":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, "POST")
			return
		}
		if !requireScope(w, r, scopeSynthGenerate) {
			return
		}
		if err := session.Reset(); err != nil {
			respondWithStoreError(w, r, a.logger, "reset session", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

// stream writes one JSON value per line, flushing after each, and stops
// early if the client goes away.
func (a *SessionAPI) stream(w http.ResponseWriter, r *http.Request, session *Session, count int) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	err := session.Stream(r.Context(), count, func(v any) error {
		if err := enc.Encode(v); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil && r.Context().Err() == nil {
		a.logger.WarnContext(r.Context(), "Stream ended with error",
			slog.String("session_id", session.ID),
			slog.Any("error", err),
		)
		_ = enc.Encode(map[string]string{"error": fmt.Sprintf("stream: %v", err)})
	}
}
