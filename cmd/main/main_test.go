package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CTAG07/Nepenthes/pkg/store"
)

// setupTestServer creates a Server on a fresh database and config file in a
// temp dir. It uses t.Cleanup to ensure resources are released.
func setupTestServer(t *testing.T) (*Server, chan string) {
	t.Helper()
	dir := t.TempDir()

	cm, err := NewConfigManager(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err, "NewConfigManager")

	db, err := initDB(filepath.Join(dir, "test.db"))
	require.NoError(t, err, "failed to open database")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, store.SetupSchema(db), "failed to set up store schema")
	require.NoError(t, setupAuthSchema(db), "failed to set up auth schema")

	actionChan := make(chan string, 1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server, err := NewServer(cm, logger, db, actionChan)
	require.NoError(t, err, "NewServer")
	t.Cleanup(server.Close)

	return server, actionChan
}

// doRequest sends a request through the server's API mux. A non-string,
// non-nil body is encoded as JSON.
func doRequest(t *testing.T, s *Server, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err, "failed to encode request body")
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.apiMux.ServeHTTP(rec, req)
	return rec
}

// decodeBody decodes a JSON response into v.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "response %q", rec.Body.String())
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, rec.Code, "response body: %s", rec.Body.String())
}

func TestHealthCheckIsOpen(t *testing.T) {
	s, _ := setupTestServer(t)

	// Creating a key closes the rest of the API, but not the health check.
	rec := doRequest(t, s, http.MethodPost, "/api/auth/keys", CreateKeyRequest{Description: "admin"})
	expectStatus(t, rec, http.StatusCreated)

	expectStatus(t, doRequest(t, s, http.MethodGet, "/api/health", nil), http.StatusOK)
	expectStatus(t, doRequest(t, s, http.MethodGet, "/api/lists", nil), http.StatusUnauthorized)
}

func TestServerActions(t *testing.T) {
	s, actionChan := setupTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/server/version", nil)
	expectStatus(t, rec, http.StatusOK)
	var info VersionInfo
	decodeBody(t, rec, &info)
	assert.Equal(t, Version, info.Version)

	expectStatus(t, doRequest(t, s, http.MethodGet, "/api/server/restart", nil), http.StatusMethodNotAllowed)
	expectStatus(t, doRequest(t, s, http.MethodPost, "/api/server/restart", nil), http.StatusAccepted)
	assert.Equal(t, actionRestart, <-actionChan)
}

func TestServerConfigEndpoint(t *testing.T) {
	s, _ := setupTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/server/config", nil)
	expectStatus(t, rec, http.StatusOK)
	var cfg Config
	decodeBody(t, rec, &cfg)
	require.NotNil(t, cfg.Generation)
	require.Equal(t, DefaultGenerationConfig().MaxCount, cfg.Generation.MaxCount)

	cfg.Generation.MaxCount = 5
	expectStatus(t, doRequest(t, s, http.MethodPut, "/api/server/config", cfg), http.StatusOK)
	assert.Equal(t, 5, s.cm.Generation().MaxCount, "max_count after update")

	cfg.Generation.DefaultCount = 10
	expectStatus(t, doRequest(t, s, http.MethodPut, "/api/server/config", cfg), http.StatusBadRequest)
}
