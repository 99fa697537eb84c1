package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/CTAG07/Nepenthes/pkg/generator"
	"github.com/CTAG07/Nepenthes/pkg/markov"
	"github.com/CTAG07/Nepenthes/pkg/sample"
	"github.com/CTAG07/Nepenthes/pkg/statemachine"
	"github.com/CTAG07/Nepenthes/pkg/store"
)

// Server wires the store, the session manager and the API handlers together.
type Server struct {
	cm         *ConfigManager
	db         *sql.DB
	logger     *slog.Logger
	store      *store.Store
	sessions   *SessionManager
	authAPI    *AuthAPI
	synthAPI   *SynthAPI
	sessionAPI *SessionAPI
	serverAPI  *ServerAPI
	apiMux     *http.ServeMux
}

// NewServer creates the API server on a database that already carries the
// store and auth schemas.
func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, actionChan chan string) (*Server, error) {
	st, err := store.New(db)
	if err != nil {
		return nil, fmt.Errorf("error creating store: %w", err)
	}
	st.SetLogger(logger)

	sessions := NewSessionManager(st, cm, logger)

	server := &Server{
		cm:         cm,
		db:         db,
		logger:     logger,
		store:      st,
		sessions:   sessions,
		authAPI:    NewAuthAPI(db, logger),
		synthAPI:   NewSynthAPI(st, logger),
		sessionAPI: NewSessionAPI(sessions, cm, logger),
		serverAPI:  NewServerAPI(cm, actionChan, logger),
		apiMux:     http.NewServeMux(),
	}

	apiMux := http.NewServeMux()
	server.authAPI.RegisterRoutes(apiMux)
	server.synthAPI.RegisterRoutes(apiMux)
	server.sessionAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// Everything but the health check passes through authentication first.
	server.apiMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)
	server.apiMux.Handle("/api/", server.authAPI.Authenticate(apiMux))

	return server, nil
}

// Close closes all sessions and releases the store. The database is owned by
// the caller.
func (s *Server) Close() {
	s.sessions.CloseAll()
	s.store.Close()
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			fmt.Printf("ERROR: Failed to encode JSON response: %v\n", err)
		}
	}
}

// statusFor maps library errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, errSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrExists):
		return http.StatusConflict
	case errors.Is(err, errTooManySessions):
		return http.StatusServiceUnavailable
	case errors.Is(err, generator.ErrIllegalState):
		return http.StatusConflict
	case errors.Is(err, sample.ErrEmpty),
		errors.Is(err, markov.ErrEmptyModel),
		errors.Is(err, statemachine.ErrNoStartState),
		errors.Is(err, statemachine.ErrNoTerminalState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sample.ErrInvalidWeight),
		errors.Is(err, sample.ErrDuplicateValue),
		errors.Is(err, markov.ErrInvalidDepth),
		errors.Is(err, markov.ErrDepthMismatch),
		errors.Is(err, statemachine.ErrSyntax),
		errors.Is(err, errUnknownKind),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errBadRequest marks malformed input detected by the handlers themselves.
var errBadRequest = errors.New("bad request")

// respondWithStoreError logs server-side failures and reports err to the client.
func respondWithStoreError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, action string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", slog.String("action", action), slog.Any("error", err))
	}
	respondWithError(w, code, fmt.Sprintf("%s: %v", action, err))
}

// methodNotAllowed writes a 405 with the given Allow header.
func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// parseCount reads the "count" query parameter, applying the configured
// default and maximum.
func parseCount(r *http.Request, limits GenerationConfig) (int, error) {
	raw := r.URL.Query().Get("count")
	if raw == "" {
		return limits.DefaultCount, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: count must be a positive integer", errBadRequest)
	}
	if n > limits.MaxCount {
		return 0, fmt.Errorf("%w: count exceeds the maximum of %d", errBadRequest, limits.MaxCount)
	}
	return n, nil
}
