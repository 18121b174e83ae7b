// internal/handlers/game_server_test.go
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openarcade/hall/internal/server"
	"github.com/openarcade/hall/internal/store"
)

const (
	alice = "alice@example.com"
	bob   = "bob@example.com"
)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	srv := server.New(store.NewMemory(), server.NewRegistry(logger), nil, logger)
	mux := http.NewServeMux()
	NewGameServer(srv, logger).RegisterRoutes(mux)
	return mux
}

type envelope struct {
	RequestType string      `json:"request_type"`
	Error       bool        `json:"e"`
	Response    interface{} `json:"response"`
	GameID      string      `json:"gid"`
	InstanceID  string      `json:"iid"`
	Leader      string      `json:"leader"`
	Players     []string    `json:"players"`
}

func post(t *testing.T, mux *http.ServeMux, path string, form url.Values) envelope {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, path, env.RequestType)
	return env
}

func TestNewInstanceEndpoint(t *testing.T) {
	mux := newTestMux(t)
	env := post(t, mux, "/newinstance", url.Values{
		"gid":        {"g"},
		"iid":        {"lobby"},
		"pid":        {alice},
		"makepublic": {"true"},
	})
	assert.False(t, env.Error)
	assert.Equal(t, "g", env.GameID)
	assert.Equal(t, "lobby", env.InstanceID)
	assert.Equal(t, alice, env.Leader)
	assert.Equal(t, []string{alice}, env.Players)
}

func TestJoinAndMessageFlow(t *testing.T) {
	mux := newTestMux(t)
	post(t, mux, "/newinstance", url.Values{
		"gid": {"g"}, "iid": {"lobby"}, "pid": {alice}, "makepublic": {"true"},
	})
	env := post(t, mux, "/joininstance", url.Values{
		"gid": {"g"}, "iid": {"lobby"}, "pid": {bob},
	})
	require.False(t, env.Error)
	assert.ElementsMatch(t, []string{alice, bob}, env.Players)

	env = post(t, mux, "/newmessage", url.Values{
		"gid": {"g"}, "iid": {"lobby"}, "pid": {alice},
		"type": {"chat"}, "mrec": {""}, "contents": {`["hello"]`},
	})
	require.False(t, env.Error)

	env = post(t, mux, "/messages", url.Values{
		"gid": {"g"}, "iid": {"lobby"}, "pid": {bob}, "type": {"chat"},
	})
	require.False(t, env.Error)
	payload := env.Response.(map[string]interface{})
	assert.Equal(t, float64(1), payload["count"])
}

func TestDomainErrorsAreNotHTTPErrors(t *testing.T) {
	mux := newTestMux(t)
	env := post(t, mux, "/joininstance", url.Values{
		"gid": {"g"}, "iid": {"nope"}, "pid": {"not-a-player-id"},
	})
	assert.True(t, env.Error)
	assert.NotEmpty(t, env.Response)
}

func TestServerCommandEndpoint(t *testing.T) {
	mux := newTestMux(t)
	post(t, mux, "/newinstance", url.Values{
		"gid": {"g"}, "iid": {"lobby"}, "pid": {alice},
	})
	env := post(t, mux, "/servercommand", url.Values{
		"gid": {"g"}, "iid": {"lobby"}, "pid": {alice},
		"command": {"sys_set_public"}, "args": {"[true]"},
	})
	require.False(t, env.Error)
	payload := env.Response.(map[string]interface{})
	assert.Equal(t, "sys_set_public", payload["type"])
	assert.Equal(t, []interface{}{true}, payload["contents"])
}

func TestEndpointsRequirePOST(t *testing.T) {
	mux := newTestMux(t)
	req := httptest.NewRequest(http.MethodGet, "/newinstance", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
