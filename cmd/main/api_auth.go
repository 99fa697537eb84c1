package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// Scopes understood by the API. A key holding scopeMaster passes every check.
const (
	scopeMaster        = "*"
	scopeSynthRead     = "synth:read"
	scopeSynthWrite    = "synth:write"
	scopeSynthGenerate = "synth:generate"
	scopeServerConfig  = "server:config"
	scopeServerControl = "server:control"
	scopeAuthManage    = "auth:manage"
)

var knownScopes = map[string]bool{
	scopeMaster:        true,
	scopeSynthRead:     true,
	scopeSynthWrite:    true,
	scopeSynthGenerate: true,
	scopeServerConfig:  true,
	scopeServerControl: true,
	scopeAuthManage:    true,
}

const (
	// authHeader carries the raw API key.
	authHeader = "nep-auth"
	keyPrefix  = "nep_"
)

// Only the SHA-256 of a key is stored; scopes are space separated.
const authSchema = `
CREATE TABLE IF NOT EXISTS api_keys (
    id            INTEGER   PRIMARY KEY,
    key_hash      TEXT      NOT NULL UNIQUE,
    scopes        TEXT      NOT NULL,
    description   TEXT      NOT NULL
);
`

var errUnauthenticated = errors.New("missing or unknown API key")

// grant is the scope set a request was authenticated with.
type grant map[string]struct{}

type grantKey struct{}

func newGrant(scopes ...string) grant {
	g := make(grant, len(scopes))
	for _, s := range scopes {
		g[s] = struct{}{}
	}
	return g
}

func (g grant) allows(scope string) bool {
	if _, ok := g[scopeMaster]; ok {
		return true
	}
	_, ok := g[scope]
	return ok
}

func (g grant) sorted() []string {
	scopes := make([]string, 0, len(g))
	for s := range g {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)
	return scopes
}

func grantFrom(ctx context.Context) grant {
	g, _ := ctx.Value(grantKey{}).(grant)
	return g
}

// AuthAPI issues API keys and checks them on every /api request.
type AuthAPI struct {
	db     *sql.DB
	logger *slog.Logger
}

func setupAuthSchema(db *sql.DB) error {
	_, err := db.Exec(authSchema)
	return err
}

func NewAuthAPI(db *sql.DB, logger *slog.Logger) *AuthAPI {
	return &AuthAPI{db: db, logger: logger}
}

// RegisterRoutes sets up the routing for all /api/auth endpoints.
func (a *AuthAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/me", a.handleMe)
	mux.HandleFunc("/api/auth/keys", a.handleKeys)
	mux.HandleFunc("/api/auth/keys/", a.handleKey)
}

// APIKeyInfo describes a stored key. The key itself is never listed.
type APIKeyInfo struct {
	ID          int      `json:"id"`
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// CreateKeyRequest is the body of POST /api/auth/keys.
type CreateKeyRequest struct {
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// CreateKeyResponse carries the raw key. It is shown once and cannot be
// recovered later.
type CreateKeyResponse struct {
	ID     int      `json:"id"`
	RawKey string   `json:"raw_key"`
	Scopes []string `json:"scopes"`
}

// Authenticate attaches the caller's grant to the request context. Until the
// first key is issued every caller holds the master scope.
func (a *AuthAPI) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g, err := a.resolve(r.Context(), r.Header.Get(authHeader))
		switch {
		case errors.Is(err, errUnauthenticated):
			respondWithError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		case err != nil:
			a.logger.ErrorContext(r.Context(), "Key lookup failed", slog.Any("error", err))
			respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		default:
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), grantKey{}, g)))
		}
	})
}

func (a *AuthAPI) resolve(ctx context.Context, rawKey string) (grant, error) {
	n, err := countKeys(ctx, a.db)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return newGrant(scopeMaster), nil
	}
	if rawKey == "" {
		return nil, errUnauthenticated
	}

	var stored string
	err = a.db.QueryRowContext(ctx, `SELECT scopes FROM api_keys WHERE key_hash = ?`, hashKey(rawKey)).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	return newGrant(strings.Fields(stored)...), nil
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func countKeys(ctx context.Context, q rowQueryer) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_keys`).Scan(&n)
	return n, err
}

// requireScope writes a 403 and returns false unless the request's grant
// allows scope.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	if grantFrom(r.Context()).allows(scope) {
		return true
	}
	respondWithError(w, http.StatusForbidden, fmt.Sprintf("Forbidden: requires '%s' scope", scope))
	return false
}

func (a *AuthAPI) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"scopes": grantFrom(r.Context()).sorted()})
}

func (a *AuthAPI) handleKeys(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeAuthManage) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.listKeys(w, r)
	case http.MethodPost:
		a.createKey(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (a *AuthAPI) handleKey(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeAuthManage) {
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, "DELETE")
		return
	}
	id, err := strconv.Atoi(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/auth/keys/"), "/"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Key ID must be an integer")
		return
	}
	a.revokeKey(w, r, id)
}

func (a *AuthAPI) listKeys(w http.ResponseWriter, r *http.Request) {
	rows, err := a.db.QueryContext(r.Context(), `SELECT id, scopes, description FROM api_keys ORDER BY id`)
	if err != nil {
		a.logger.ErrorContext(r.Context(), "Listing keys failed", slog.Any("error", err))
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	keys := []APIKeyInfo{}
	for rows.Next() {
		var info APIKeyInfo
		var scopes string
		if err = rows.Scan(&info.ID, &scopes, &info.Description); err != nil {
			a.logger.ErrorContext(r.Context(), "Listing keys failed", slog.Any("error", err))
			respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		info.Scopes = strings.Fields(scopes)
		keys = append(keys, info)
	}
	respondWithJSON(w, http.StatusOK, keys)
}

func (a *AuthAPI) createKey(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	for _, s := range req.Scopes {
		if !knownScopes[s] {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scope %q", s))
			return
		}
	}

	rawKey, err := newAPIKey()
	if err != nil {
		a.logger.ErrorContext(r.Context(), "Key generation failed", slog.Any("error", err))
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	id, scopes, err := a.insertKey(r.Context(), rawKey, req)
	if err != nil {
		a.logger.ErrorContext(r.Context(), "Storing key failed", slog.Any("error", err))
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	a.logger.InfoContext(r.Context(), "API key issued", slog.Int("key_id", id), slog.Any("scopes", scopes))
	respondWithJSON(w, http.StatusCreated, CreateKeyResponse{ID: id, RawKey: rawKey, Scopes: scopes})
}

// insertKey stores the hash of rawKey. The first key ever stored is a master
// key whatever req asks for, so issuing it cannot lock the API.
func (a *AuthAPI) insertKey(ctx context.Context, rawKey string, req CreateKeyRequest) (int, []string, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	n, err := countKeys(ctx, tx)
	if err != nil {
		return 0, nil, err
	}
	scopes := req.Scopes
	if n == 0 {
		scopes = []string{scopeMaster}
	}

	var id int
	err = tx.QueryRowContext(ctx, `INSERT INTO api_keys (key_hash, scopes, description) VALUES (?, ?, ?) RETURNING id`,
		hashKey(rawKey), strings.Join(scopes, " "), req.Description).Scan(&id)
	if err != nil {
		return 0, nil, err
	}
	if err = tx.Commit(); err != nil {
		return 0, nil, err
	}
	return id, scopes, nil
}

func (a *AuthAPI) revokeKey(w http.ResponseWriter, r *http.Request, id int) {
	if id == 1 {
		respondWithError(w, http.StatusBadRequest, "Key 1 is the bootstrap master key and cannot be revoked")
		return
	}
	res, err := a.db.ExecContext(r.Context(), `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		a.logger.ErrorContext(r.Context(), "Revoking key failed", slog.Int("key_id", id), slog.Any("error", err))
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		respondWithError(w, http.StatusNotFound, fmt.Sprintf("Key %d not found", id))
		return
	}
	a.logger.InfoContext(r.Context(), "API key revoked", slog.Int("key_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func newAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return keyPrefix + hex.EncodeToString(buf), nil
}

func hashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}
