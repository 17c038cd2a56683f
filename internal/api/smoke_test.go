// Package api_test runs HTTP-level smoke tests using net/http/httptest.
// These tests do NOT require a PostgreSQL database. They cover routing,
// request validation, the JWT and role gates, the error envelope and CORS.
package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tayaan/arena/internal/api"
	"github.com/tayaan/arena/internal/config"
	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/service"
)

// ── Test helpers ──────────────────────────────────────────────────────────────

const (
	accessSecret  = "test-access-secret-abcdefghijklmnop"
	refreshSecret = "test-refresh-secret-abcdefghijklmnop"
)

func testCfg() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Env:  "development",
			Port: "8080",
		},
		JWT: config.JWTConfig{
			AccessSecret:  accessSecret,
			RefreshSecret: refreshSecret,
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    30 * 24 * time.Hour,
		},
		Betting: config.BettingConfig{MinStake: 10, PlasadaRate: 0.04, DrawMultiplier: 8},
	}
}

// buildTestRouter creates a Gin engine with a real AuthService (no DB needed
// for token parsing) and nil for everything that requires a DB.
func buildTestRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	return api.SetupRouter(api.RouterDeps{
		AuthSvc: service.NewAuthService(nil, cfg),
		Cfg:     cfg,
	})
}

func token(t *testing.T, role domain.UserRole, typ, secret string) string {
	t.Helper()
	now := time.Now()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, service.AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
		Role:      role,
		TokenType: typ,
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func bearer(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&m), "body: %s", rr.Body.String())
	return m
}

// ── /health ───────────────────────────────────────────────────────────────────

func TestHealthEndpoint(t *testing.T) {
	h := buildTestRouter(t, testCfg())
	rr := do(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

// ── Auth endpoints, validation layer ──────────────────────────────────────────

func TestRegister_MissingFields(t *testing.T) {
	h := buildTestRouter(t, testCfg())
	rr := do(t, h, http.MethodPost, "/api/auth/register", `{}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	body := decodeBody(t, rr)
	for _, field := range []string{"success", "error", "code"} {
		assert.Contains(t, body, field)
	}
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "ERR_VALIDATION", body["code"])
}

func TestRegister_ShortPassword(t *testing.T) {
	h := buildTestRouter(t, testCfg())
	rr := do(t, h, http.MethodPost, "/api/auth/register", `{"username":"juan","password":"short"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLogin_MissingFields(t *testing.T) {
	h := buildTestRouter(t, testCfg())
	rr := do(t, h, http.MethodPost, "/api/auth/login", `{"username":"juan"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// ── JWT middleware ────────────────────────────────────────────────────────────

func TestProtectedRoutes_NoToken_Return401(t *testing.T) {
	h := buildTestRouter(t, testCfg())
	cases := []struct{ method, path string }{
		{http.MethodGet, "/api/me"},
		{http.MethodGet, "/api/bets/my"},
		{http.MethodPost, "/api/bets"},
		{http.MethodPost, "/api/karera/bets"},
		{http.MethodGet, "/api/wallet/balance"},
		{http.MethodGet, "/api/wallet/transactions"},
		{http.MethodPost, "/api/admin/balance"},
		{http.MethodPost, "/api/admin/create-user"},
	}
	for _, tc := range cases {
		rr := do(t, h, tc.method, tc.path, `{}`, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "%s %s", tc.method, tc.path)
	}
}

func TestInvalidToken_Returns401(t *testing.T) {
	h := buildTestRouter(t, testCfg())

	rr := do(t, h, http.MethodGet, "/api/me", "", bearer("not.a.valid.jwt"))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	wrongSecret := token(t, domain.RoleUser, "access", "some-other-secret")
	rr = do(t, h, http.MethodGet, "/api/me", "", bearer(wrongSecret))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRefreshToken_RejectedAsAccess(t *testing.T) {
	h := buildTestRouter(t, testCfg())
	refresh := token(t, domain.RoleUser, "refresh", accessSecret)

	rr := do(t, h, http.MethodGet, "/api/wallet/balance", "", bearer(refresh))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "ERR_TOKEN_INVALID", decodeBody(t, rr)["code"])
}

// ── Role gate ─────────────────────────────────────────────────────────────────

func TestAdminRoutes_ForbiddenForBettor(t *testing.T) {
	h := buildTestRouter(t, testCfg())
	tok := token(t, domain.RoleUser, "access", accessSecret)

	rr := do(t, h, http.MethodPost, "/api/admin/balance", `{}`, bearer(tok))
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "ERR_FORBIDDEN", decodeBody(t, rr)["code"])
}

func TestAdminBalance_ValidatesBody(t *testing.T) {
	h := buildTestRouter(t, testCfg())
	tok := token(t, domain.RoleAgent, "access", accessSecret)

	rr := do(t, h, http.MethodPost, "/api/admin/balance", `{"action":"steal"}`, bearer(tok))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	body := `{"action":"add","user_id":"` + uuid.NewString() + `","amount":"0"}`
	rr = do(t, h, http.MethodPost, "/api/admin/balance", body, bearer(tok))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "ERR_INVALID_AMOUNT", decodeBody(t, rr)["code"])
}

// ── Bet validation ────────────────────────────────────────────────────────────

func TestPlaceBet_RejectsMalformedInput(t *testing.T) {
	h := buildTestRouter(t, testCfg())
	tok := bearer(token(t, domain.RoleUser, "access", accessSecret))

	rr := do(t, h, http.MethodPost, "/api/bets", `{"match_id":"nope","selection":"meron","amount":"100"}`, tok)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "ERR_INVALID_MATCH_ID", decodeBody(t, rr)["code"])

	body := `{"match_id":"` + uuid.NewString() + `","selection":"meron","amount":"-5"}`
	rr = do(t, h, http.MethodPost, "/api/bets", body, tok)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "ERR_INVALID_AMOUNT", decodeBody(t, rr)["code"])

	rr = do(t, h, http.MethodPost, "/api/karera/bets", `{"bet_type":"win","amount":"100","legs":[]}`, tok)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// ── Public endpoints ──────────────────────────────────────────────────────────

func TestPublicRoutes_BadID(t *testing.T) {
	h := buildTestRouter(t, testCfg())
	for _, path := range []string{"/api/matches/xyz", "/api/matches/xyz/pool", "/api/karera/races/xyz"} {
		rr := do(t, h, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusBadRequest, rr.Code, path)
		assert.Equal(t, "ERR_INVALID_ID", decodeBody(t, rr)["code"])
	}
}

func TestAuthRateLimit(t *testing.T) {
	h := buildTestRouter(t, testCfg())
	var limited bool
	for i := 0; i < 30; i++ {
		rr := do(t, h, http.MethodPost, "/api/auth/login", `{}`, nil)
		if rr.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited, "auth endpoints should throttle a burst from one IP")
}

// ── CORS headers ──────────────────────────────────────────────────────────────

func TestCORSOptionsRequest(t *testing.T) {
	h := buildTestRouter(t, testCfg())
	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSAllowOrigin_Prod(t *testing.T) {
	cfg := testCfg()
	cfg.Server.Env = "production"
	cfg.Server.AllowedOrigins = []string{"https://arena.example"}
	h := buildTestRouter(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://arena.example")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "https://arena.example", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}
