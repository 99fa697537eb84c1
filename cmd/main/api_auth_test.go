package main

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthKeys(t *testing.T) {
	s, _ := setupTestServer(t)

	// The API is open until the first key exists, and that key is always a
	// master key regardless of the scopes requested.
	rec := doRequest(t, s, http.MethodPost, "/api/auth/keys", CreateKeyRequest{Scopes: []string{scopeSynthRead}, Description: "admin"})
	expectStatus(t, rec, http.StatusCreated)
	var master CreateKeyResponse
	decodeBody(t, rec, &master)
	assert.Regexp(t, `^nep_[0-9a-f]+$`, master.RawKey)
	require.Equal(t, []string{scopeMaster}, master.Scopes, "the first key is a master key")

	expectStatus(t, doRequest(t, s, http.MethodGet, "/api/lists", nil), http.StatusUnauthorized)
	expectStatus(t, doRequest(t, s, http.MethodGet, "/api/lists", nil, authHeader, "nep_bogus"), http.StatusUnauthorized)
	expectStatus(t, doRequest(t, s, http.MethodGet, "/api/lists", nil, authHeader, master.RawKey), http.StatusOK)

	expectStatus(t, doRequest(t, s, http.MethodPost, "/api/auth/keys",
		CreateKeyRequest{Scopes: []string{"synth:everything"}}, authHeader, master.RawKey), http.StatusBadRequest)

	rec = doRequest(t, s, http.MethodPost, "/api/auth/keys",
		CreateKeyRequest{Scopes: []string{scopeSynthRead, scopeSynthGenerate}, Description: "reader"},
		authHeader, master.RawKey)
	expectStatus(t, rec, http.StatusCreated)
	var reader CreateKeyResponse
	decodeBody(t, rec, &reader)

	rec = doRequest(t, s, http.MethodGet, "/api/auth/me", nil, authHeader, reader.RawKey)
	expectStatus(t, rec, http.StatusOK)
	var me map[string][]string
	decodeBody(t, rec, &me)
	assert.Equal(t, []string{scopeSynthGenerate, scopeSynthRead}, me["scopes"])

	testCases := []struct {
		method, path string
		body         any
		code         int
	}{
		{http.MethodGet, "/api/lists", nil, http.StatusOK},
		{http.MethodPost, "/api/lists", ListDefinition{Name: "x"}, http.StatusForbidden},
		{http.MethodPost, "/api/import", testDefinitions, http.StatusForbidden},
		{http.MethodGet, "/api/server/config", nil, http.StatusForbidden},
		{http.MethodPost, "/api/server/shutdown", nil, http.StatusForbidden},
		{http.MethodGet, "/api/auth/keys", nil, http.StatusForbidden},
	}
	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			expectStatus(t, doRequest(t, s, tc.method, tc.path, tc.body, authHeader, reader.RawKey), tc.code)
		})
	}

	rec = doRequest(t, s, http.MethodGet, "/api/auth/keys", nil, authHeader, master.RawKey)
	expectStatus(t, rec, http.StatusOK)
	var keys []APIKeyInfo
	decodeBody(t, rec, &keys)
	require.Len(t, keys, 2)
	assert.Equal(t, "reader", keys[1].Description)

	expectStatus(t, doRequest(t, s, http.MethodDelete, "/api/auth/keys/1", nil, authHeader, master.RawKey), http.StatusBadRequest)
	expectStatus(t, doRequest(t, s, http.MethodDelete, fmt.Sprintf("/api/auth/keys/%d", reader.ID), nil, authHeader, master.RawKey), http.StatusNoContent)
	expectStatus(t, doRequest(t, s, http.MethodDelete, fmt.Sprintf("/api/auth/keys/%d", reader.ID), nil, authHeader, master.RawKey), http.StatusNotFound)
	expectStatus(t, doRequest(t, s, http.MethodGet, "/api/lists", nil, authHeader, reader.RawKey), http.StatusUnauthorized)
}
