package httpserver_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/changyunjeff/campus-mp/internal/config"
	"github.com/changyunjeff/campus-mp/internal/domain"
	"github.com/changyunjeff/campus-mp/internal/httpserver"
	"github.com/changyunjeff/campus-mp/internal/security"
	"github.com/changyunjeff/campus-mp/internal/ws"
)

func newServer(t *testing.T, env string) (*httptest.Server, *ws.Relay) {
	t.Helper()
	cfg := &config.RelayConfig{Env: env, JWTSecret: "s", TokenTTLMinutes: 60}
	relay := ws.NewRelay(ws.NewHub(0, nil), ws.NewPolicy(nil), nil, nil)
	tokens := security.NewTokenService(cfg.JWTSecret, time.Hour)
	srv := httptest.NewServer(httpserver.NewRouter(cfg, relay, tokens, httpserver.NewDirectory(), nil))
	t.Cleanup(srv.Close)
	return srv, relay
}

func do(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func issue(t *testing.T, base, identity string) string {
	t.Helper()
	resp := do(t, http.MethodPost, base+"/api/auth/token", "", map[string]string{"identity": identity})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		AccessToken string         `json:"access_token"`
		User        domain.Profile `json:"user"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, identity, out.User.ID)
	return out.AccessToken
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t, "development")
	resp := do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProfiles(t *testing.T) {
	srv, _ := newServer(t, "development")
	tokA := issue(t, srv.URL, "A")
	issue(t, srv.URL, "B")

	resp := do(t, http.MethodGet, srv.URL+"/api/users/B/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/users/B/profile", tokA, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p domain.Profile
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	assert.Equal(t, "B", p.ID)
	assert.Equal(t, "用户B", p.Nickname)

	resp = do(t, http.MethodPut, srv.URL+"/api/users/me/profile", tokA, map[string]string{"nickname": "Alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/auth/me", tokA, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	assert.Equal(t, "Alice", p.Nickname)

	resp = do(t, http.MethodGet, srv.URL+"/api/users/ghost/profile", tokA, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBlocks(t *testing.T) {
	srv, relay := newServer(t, "development")
	tokB := issue(t, srv.URL, "B")

	resp := do(t, http.MethodPost, srv.URL+"/api/users/me/blocks", tokB, map[string]any{"user_id": "A"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, relay.Policy().Blocked("B", "A"))

	resp = do(t, http.MethodPost, srv.URL+"/api/users/me/blocks", tokB, map[string]any{"user_id": "A", "unblock": true})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.False(t, relay.Policy().Blocked("B", "A"))

	resp = do(t, http.MethodPost, srv.URL+"/api/users/me/blocks", tokB, map[string]any{"user_id": "B"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTokenRouteDevelopmentOnly(t *testing.T) {
	srv, _ := newServer(t, "production")
	resp := do(t, http.MethodPost, srv.URL+"/api/auth/token", "", map[string]string{"identity": "A"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
