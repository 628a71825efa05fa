package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kiranshivaraju/errdigest/internal/api"
	mw "github.com/kiranshivaraju/errdigest/internal/api/middleware"
	"github.com/kiranshivaraju/errdigest/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- stub cache ---

type stubCache struct{}

func (c *stubCache) Ping(_ context.Context) error { return nil }
func (c *stubCache) AddIfAbsent(_ context.Context, _ string, _ time.Duration) (bool, error) {
	return true, nil
}
func (c *stubCache) Delete(_ context.Context, _ string) error { return nil }
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

// --- router tests ---

const adminToken = "router-test-admin-token"

func okHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}
}

func newTestRouter(t *testing.T, tokenHash string) http.Handler {
	t.Helper()
	return api.NewRouter(api.Dependencies{
		Auth:           mw.NewAuth(tokenHash),
		RateLimit:      mw.NewRateLimit(&stubCache{}, 60),
		AllowedOrigins: []string{"https://app.example.com"},
		HealthHandler:  okHandler(`{"status":"ok"}`),
		MetricsHandler: okHandler("# metrics"),
		IntakeHandler:  okHandler("intake"),
		ReportHandler:  okHandler("report"),
	})
}

func hash(t *testing.T) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestRouter_PublicEndpoints(t *testing.T) {
	router := newTestRouter(t, hash(t))

	for _, ep := range []struct{ method, path, body string }{
		{"GET", "/api/v1/health", `{"status":"ok"}`},
		{"GET", "/metrics", "# metrics"},
		{"POST", "/", "intake"},
		{"POST", "/api/v1/errors", "intake"},
	} {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, ep.body, w.Body.String())
		})
	}
}

func TestRouter_IntakeIsRateLimited(t *testing.T) {
	router := newTestRouter(t, hash(t))

	req := httptest.NewRequest("POST", "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
}

func TestRouter_IntakeCORSPreflight(t *testing.T) {
	router := newTestRouter(t, hash(t))

	req := httptest.NewRequest("OPTIONS", "/api/v1/errors", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("OPTIONS", "/api/v1/errors", nil)
	req.Header.Set("Origin", "https://evil.example.org")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_AdminEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter(t, hash(t))

	endpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/report?client_id=app1"},
		{"POST", "/api/v1/inbound-mail"},
		{"GET", "/api/v1/subscriptions/app1"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

func TestRouter_AdminWithToken(t *testing.T) {
	router := newTestRouter(t, hash(t))

	req := httptest.NewRequest("GET", "/api/v1/report?client_id=app1", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "report", w.Body.String())

	// wired with no handler
	req = httptest.NewRequest("POST", "/api/v1/inbound-mail", strings.NewReader(""))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRouter_AdminDisabledWithoutHash(t *testing.T) {
	router := newTestRouter(t, "")

	req := httptest.NewRequest("GET", "/api/v1/report?client_id=app1", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(t, "")

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

var _ cache.Cache = (*stubCache)(nil)
