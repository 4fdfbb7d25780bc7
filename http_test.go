package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	config := testConfig()
	config.HTTPAddr = "127.0.0.1:0"
	s := NewServer(config, testLogger())
	t.Cleanup(func() { _ = s.sessions.Close() })
	return s, s.Routes()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) SessionResponse {
	t.Helper()
	var resp SessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func createTestSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeSession(t, rec)
	_, err := uuid.Parse(resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "0", resp.DisplayValue)
	assert.False(t, resp.IsError)
	return resp.ID
}

func TestServerSessionLifecycle(t *testing.T) {
	_, h := newTestServer(t)
	id := createTestSession(t, h)

	rec := do(t, h, http.MethodPost, "/api/sessions/"+id+"/keys", KeysRequest{Keys: []string{"5", "+", "3"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5 + 3", decodeSession(t, rec).DisplayValue)

	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/keys", KeysRequest{Keys: []string{"="}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "8", decodeSession(t, rec).DisplayValue)

	rec = do(t, h, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeSession(t, rec)
	assert.Equal(t, id, resp.ID)
	assert.Equal(t, "8", resp.DisplayValue)

	rec = do(t, h, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerDeletedSessionStaysDeleted(t *testing.T) {
	s, h := newTestServer(t)
	id := createTestSession(t, h)

	rec := do(t, h, http.MethodDelete, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/keys", KeysRequest{Keys: []string{"5"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, s.sessions.IsEmpty())
}

func TestServerReportsErrorState(t *testing.T) {
	_, h := newTestServer(t)
	id := createTestSession(t, h)

	rec := do(t, h, http.MethodPost, "/api/sessions/"+id+"/keys", KeysRequest{Keys: []string{"5", "/", "0", "="}})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeSession(t, rec)
	assert.Equal(t, "Error", resp.DisplayValue)
	assert.True(t, resp.IsError)

	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/keys", KeysRequest{Keys: []string{"AC"}})
	resp = decodeSession(t, rec)
	assert.Equal(t, "0", resp.DisplayValue)
	assert.False(t, resp.IsError)
}

func TestServerRejectsBadRequests(t *testing.T) {
	_, h := newTestServer(t)
	id := createTestSession(t, h)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"malformed id", "/api/sessions/not-a-uuid/keys", KeysRequest{Keys: []string{"1"}}, http.StatusBadRequest},
		{"unknown session", "/api/sessions/" + uuid.NewString() + "/keys", KeysRequest{Keys: []string{"1"}}, http.StatusNotFound},
		{"no keys", "/api/sessions/" + id + "/keys", KeysRequest{}, http.StatusBadRequest},
		{"empty key", "/api/sessions/" + id + "/keys", KeysRequest{Keys: []string{""}}, http.StatusBadRequest},
		{"unsupported key", "/api/sessions/" + id + "/keys", KeysRequest{Keys: []string{"1", "sqrt"}}, http.StatusBadRequest},
		{"unknown field", "/api/sessions/" + id + "/keys", map[string]any{"keys": []string{"1"}, "extra": true}, http.StatusBadRequest},
		{"too many keys", "/api/sessions/" + id + "/keys", KeysRequest{Keys: repeatKey("1", 257)}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.NotEmpty(t, resp.Error)
		})
	}

	rec := do(t, h, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, "0", decodeSession(t, rec).DisplayValue, "rejected requests leave the session untouched")
}

func TestServerAcceptsLongestBatch(t *testing.T) {
	_, h := newTestServer(t)
	id := createTestSession(t, h)

	rec := do(t, h, http.MethodPost, "/api/sessions/"+id+"/keys", KeysRequest{Keys: repeatKey("AC", 256)})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", decodeSession(t, rec).DisplayValue)
}

func repeatKey(key string, n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = key
	}
	return keys
}

func TestServerRefusesSessionsAfterClose(t *testing.T) {
	s, h := newTestServer(t)
	require.NoError(t, s.sessions.Close())

	rec := do(t, h, http.MethodPost, "/api/sessions", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerHealth(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
