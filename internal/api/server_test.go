package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"cardfarm/internal/bot"
	"cardfarm/internal/config"
)

const ownerID = 76561198000000099

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, mutate func(*config.Global)) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	global := config.Default()
	global.BotsDir = t.TempDir()
	global.OwnerID = ownerID
	global.CMServers = []string{"127.0.0.1:1"}
	global.CommunityHost = "http://127.0.0.1:1"
	global.IPCBindAddress = "127.0.0.1:0"
	if mutate != nil {
		mutate(&global)
	}

	cfg := "enabled: true\nlogin: alpha-login\npassword: hunter2\nstart_on_launch: false\n"
	path := filepath.Join(global.BotsDir, "alpha.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	sup, err := bot.NewSupervisor(global, testLogger())
	require.NoError(t, err)
	require.NoError(t, sup.LoadBots())

	return New(sup, global, testLogger())
}

func doJSON(t *testing.T, h http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestDaemonStatus(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	w := doJSON(t, h, http.MethodGet, "/api/daemon", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var info daemonInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, bot.Version, info.Version)
	assert.Equal(t, runtime.GOOS+"-"+runtime.GOARCH, info.Variant)
	assert.False(t, info.ProcessStart.IsZero())
	assert.NotZero(t, info.MemoryKB)
	require.Len(t, info.Bots, 1)
	assert.Equal(t, "alpha", info.Bots[0].Name)
	assert.Equal(t, "Stopped", info.Bots[0].State)
}

func TestAuthGuardsAPIRoutes(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	s := newTestServer(t, func(g *config.Global) { g.IPCPasswordHash = string(hash) })
	h := s.Handler()

	w := doJSON(t, h, http.MethodGet, "/api/daemon", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/daemon", "", map[string]string{"Authorization": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/daemon", "", map[string]string{"Authorization": "secret"})
	assert.Equal(t, http.StatusOK, w.Code)

	// Metrics stay reachable for scrapers regardless of the password.
	w = doJSON(t, h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cardfarm_")
}

func TestEmptyHashAllowsAccess(t *testing.T) {
	s := newTestServer(t, nil)
	w := doJSON(t, s.Handler(), http.MethodGet, "/api/daemon", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBotStatusAndLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	w := doJSON(t, h, http.MethodGet, "/api/bot/alpha", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var st bot.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "alpha", st.Name)
	assert.Equal(t, "Stopped", st.State)
	assert.False(t, st.ManualMode)

	w = doJSON(t, h, http.MethodGet, "/api/bot/ghost", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/bot/alpha/pause", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, s.sup.Bot("alpha").Status().ManualMode)

	w = doJSON(t, h, http.MethodPost, "/api/bot/alpha/resume", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, s.sup.Bot("alpha").Status().ManualMode)

	w = doJSON(t, h, http.MethodPost, "/api/bot/ghost/start", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBotInput(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	w := doJSON(t, h, http.MethodPost, "/api/bot/alpha/input", `{"type":"email","code":"ABC12"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/bot/alpha/input", `{"type":"2fa","code":"R5TYU"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/bot/alpha/input", `{"type":"carrier-pigeon","code":"X"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/bot/alpha/input", `{"type":"email"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommandEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	w := doJSON(t, h, http.MethodPost, "/api/command", `{"command":"version"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Result string `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Version "+bot.Version, resp.Result)

	// The bang prefix is optional over the API.
	w = doJSON(t, h, http.MethodPost, "/api/command", `{"command":"!version","bot":"alpha"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Version "+bot.Version, resp.Result)

	w = doJSON(t, h, http.MethodPost, "/api/command", `{"command":"version","bot":"ghost"}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/command", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDaemonExitShutsSupervisorDown(t *testing.T) {
	s := newTestServer(t, nil)
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/daemon/exit", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case <-s.sup.Done():
	default:
		t.Fatal("supervisor not shut down")
	}
	assert.False(t, s.sup.RestartRequested())
}

func TestDaemonRestartMarksRestart(t *testing.T) {
	s := newTestServer(t, nil)
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/daemon/restart", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case <-s.sup.Done():
	default:
		t.Fatal("supervisor not shut down")
	}
	assert.True(t, s.sup.RestartRequested())
}

func TestCommandStatusAllThroughAPI(t *testing.T) {
	s := newTestServer(t, nil)
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/command", `{"command":"statusall"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Result string `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Result, fmt.Sprintf("Currently 0/%d bots are farming.", 1))
}
