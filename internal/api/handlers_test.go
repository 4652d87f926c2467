package api

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrlink/relay/internal/health"
	"github.com/qrlink/relay/internal/metrics"
	"github.com/qrlink/relay/internal/presence"
	"github.com/qrlink/relay/internal/relay"
	"github.com/qrlink/relay/internal/store"
)

// testApp wires a full server against a temp-file store.
func testApp(t *testing.T, auth AuthConfig) *fiber.App {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "api-test.db"), zerolog.New(os.Stderr))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := metrics.New()
	logger := zerolog.Nop()

	relaySvc := relay.NewService(st, relay.Config{
		DefaultTTL: 5 * time.Minute,
		MinTTL:     time.Second,
		MaxTTL:     time.Hour,
	}, m, logger)
	registry := presence.NewRegistry(st, 10*time.Second, logger)
	checker := health.NewChecker(logger)

	rtCfg := &RuntimeConfig{
		Environment:    "test",
		LogLevel:       "debug",
		ListenAddr:     ":0",
		SendTTLDefault: 5 * time.Minute,
		AuthMode:       auth.Mode,
	}

	h := NewHandlers(relaySvc, registry, checker, auth, rtCfg, logger)
	srv := NewServer(ServerConfig{
		ListenAddr: ":0",
		Auth:       auth,
	}, h, m, logger)

	return srv.App()
}

func noAuthApp(t *testing.T) *fiber.App {
	return testApp(t, AuthConfig{Mode: "none"})
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func activate(t *testing.T, app *fiber.App, session string) {
	t.Helper()
	resp, _ := doJSON(t, app, "POST", "/api/v1/status", `{"session":"`+session+`","active":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSend_MissingFields(t *testing.T) {
	app := noAuthApp(t)

	resp, body := doJSON(t, app, "POST", "/api/v1/send", `{"id":"X"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["ok"])

	resp, _ = doJSON(t, app, "POST", "/api/v1/send", `{"session":"s"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSend_GateClosedSignal(t *testing.T) {
	app := noAuthApp(t)

	// A gate-closed rejection must be distinguishable from success.
	resp, body := doJSON(t, app, "POST", "/api/v1/send", `{"session":"s","id":"X"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, false, body["sessionActive"])

	resp, body = doJSON(t, app, "GET", "/api/v1/next?session=s", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "id", "rejected send must not enqueue")
}

func TestSendNext_FullCycle(t *testing.T) {
	app := noAuthApp(t)
	activate(t, app, "s")

	// Send, duplicate send, consume, drain.
	resp, body := doJSON(t, app, "POST", "/api/v1/send", `{"session":"s","id":"X"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(1), body["version"])
	assert.NotContains(t, body, "duplicate")
	assert.Greater(t, body["time"], float64(0))

	resp, body = doJSON(t, app, "POST", "/api/v1/send", `{"session":"s","id":"X"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["version"])
	assert.Equal(t, true, body["duplicate"])

	resp, body = doJSON(t, app, "GET", "/api/v1/next?session=s", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "X", body["id"])

	resp, body = doJSON(t, app, "GET", "/api/v1/next?session=s", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.NotContains(t, body, "id")
}

func TestNext_MissingSession(t *testing.T) {
	app := noAuthApp(t)
	resp, _ := doJSON(t, app, "GET", "/api/v1/next", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatus_ReadWrite(t *testing.T) {
	app := noAuthApp(t)

	resp, body := doJSON(t, app, "GET", "/api/v1/status?session=s", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["active"], "unseen session reads inactive")

	activate(t, app, "s")

	resp, body = doJSON(t, app, "GET", "/api/v1/status?session=s", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["active"])
	assert.Greater(t, body["lastUpdate"], float64(0))

	// Toggle back down: any state may follow any state.
	resp, _ = doJSON(t, app, "POST", "/api/v1/status", `{"session":"s","active":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, app, "GET", "/api/v1/status?session=s", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["active"])
}

func TestStatus_MissingActiveField(t *testing.T) {
	app := noAuthApp(t)
	resp, _ := doJSON(t, app, "POST", "/api/v1/status", `{"session":"s"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestViewers_RegisterListUnregister(t *testing.T) {
	app := noAuthApp(t)

	// Same device heartbeating under a new operator moves its slot.
	resp, _ := doJSON(t, app, "POST", "/api/v1/viewers", `{"deviceId":"d1","operatorName":"Mario","operatorId":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, app, "POST", "/api/v1/viewers", `{"deviceId":"d1","operatorName":"Mario","operatorId":3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, app, "GET", "/api/v1/viewers?operatorId=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["viewers"])

	resp, body = doJSON(t, app, "GET", "/api/v1/viewers?operatorId=3", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	viewers := body["viewers"].([]any)
	require.Len(t, viewers, 1)
	assert.Equal(t, "Mario", viewers[0].(map[string]any)["operatorName"])

	resp, _ = doJSON(t, app, "DELETE", "/api/v1/viewers?deviceId=d1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, app, "GET", "/api/v1/viewers?operatorId=3", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["viewers"])
}

func TestViewers_Validation(t *testing.T) {
	app := noAuthApp(t)

	resp, _ := doJSON(t, app, "GET", "/api/v1/viewers", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, "GET", "/api/v1/viewers?operatorId=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, "POST", "/api/v1/viewers", `{"deviceId":"d1","operatorName":"Mario"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, "DELETE", "/api/v1/viewers", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogin_FixedFormat(t *testing.T) {
	app := testApp(t, AuthConfig{Mode: "token", Secret: "test-secret", TokenTTL: time.Hour})

	resp, body := doJSON(t, app, "POST", "/api/v1/login", `{"operator":"operator-2","password":"anything"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.NotEmpty(t, body["token"])
	assert.Equal(t, "operator-2", body["session"])
	assert.Equal(t, float64(2), body["operatorId"])

	resp, _ = doJSON(t, app, "POST", "/api/v1/login", `{"operator":"admin","password":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, app, "POST", "/api/v1/login", `{"operator":"operator-2"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestViewers_TokenGuard(t *testing.T) {
	app := testApp(t, AuthConfig{Mode: "token", Secret: "test-secret", TokenTTL: time.Hour})

	// Heartbeats stay open; the admin listing requires a token.
	resp, _ := doJSON(t, app, "POST", "/api/v1/viewers", `{"deviceId":"d1","operatorName":"Mario","operatorId":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, app, "GET", "/api/v1/viewers?operatorId=2", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, login := doJSON(t, app, "POST", "/api/v1/login", `{"operator":"operator-2","password":"x"}`)
	token := login["token"].(string)

	req, _ := http.NewRequest("GET", "/api/v1/viewers?operatorId=2", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp2, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	req, _ = http.NewRequest("GET", "/api/v1/viewers?operatorId=2", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	resp2, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestConfig_Endpoint(t *testing.T) {
	app := noAuthApp(t)

	resp, body := doJSON(t, app, "GET", "/api/v1/config", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "test", body["environment"])
	assert.Equal(t, "5m0s", body["sendTtlDefault"])
}

func TestProbes(t *testing.T) {
	app := noAuthApp(t)

	resp, body := doJSON(t, app, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, body = doJSON(t, app, "GET", "/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	app := noAuthApp(t)

	req, _ := http.NewRequest("GET", "/metrics", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimit_Rejects(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "rl-test.db"), zerolog.New(os.Stderr))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := metrics.New()
	logger := zerolog.Nop()
	relaySvc := relay.NewService(st, relay.Config{DefaultTTL: time.Minute, MinTTL: time.Second, MaxTTL: time.Hour}, m, logger)
	registry := presence.NewRegistry(st, 10*time.Second, logger)
	h := NewHandlers(relaySvc, registry, health.NewChecker(logger), AuthConfig{Mode: "none"}, &RuntimeConfig{}, logger)

	srv := NewServer(ServerConfig{
		ListenAddr: ":0",
		RateLimit:  RateLimitConfig{RPS: 1, Burst: 2},
		Auth:       AuthConfig{Mode: "none"},
	}, h, m, logger)
	app := srv.App()

	var limited bool
	for i := 0; i < 5; i++ {
		resp, _ := doJSON(t, app, "GET", "/api/v1/status?session=s", "")
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
		}
	}
	assert.True(t, limited, "burst of 5 against rps=1/burst=2 must hit the limiter")

	// Probes bypass the limiter.
	resp, _ := doJSON(t, app, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
