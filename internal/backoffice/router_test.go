package backoffice

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

	"github.com/tayaan/arena/internal/config"
	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/service"
)

const secret = "bo-access-secret-abcdefghijklmnop"

func testRouter(t *testing.T, allowedIPs string) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{Env: "development", BackofficeAllowedIPs: allowedIPs},
		JWT:    config.JWTConfig{AccessSecret: secret, RefreshSecret: "r", AccessTTL: time.Minute},
	}
	return SetupBackofficeRouter(BackofficeDeps{
		AuthSvc: service.NewAuthService(nil, cfg),
		Cfg:     cfg,
	})
}

func tokenFor(t *testing.T, role domain.UserRole) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, service.AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		Role:      role,
		TokenType: "access",
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func call(h http.Handler, method, path, tok, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func code(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m))
	s, _ := m["code"].(string)
	return s
}

func TestBackoffice_RequiresToken(t *testing.T) {
	h := testRouter(t, "")
	rr := call(h, http.MethodGet, "/admin/matches", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestBackoffice_BettorForbidden(t *testing.T) {
	h := testRouter(t, "")
	rr := call(h, http.MethodGet, "/admin/users", tokenFor(t, domain.RoleUser), "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestBackoffice_AgentCannotControlEvents(t *testing.T) {
	h := testRouter(t, "")
	agent := tokenFor(t, domain.RoleAgent)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/admin/matches"},
		{http.MethodPost, "/admin/matches/" + uuid.NewString() + "/winner"},
		{http.MethodPost, "/admin/karera/races/" + uuid.NewString() + "/scratch"},
		{http.MethodPut, "/admin/settings/plasada_rate"},
		{http.MethodGet, "/admin/dashboard"},
		{http.MethodGet, "/admin/bots"},
	} {
		rr := call(h, tc.method, tc.path, agent, `{}`)
		assert.Equal(t, http.StatusForbidden, rr.Code, "%s %s", tc.method, tc.path)
	}
}

func TestBackoffice_AdminValidation(t *testing.T) {
	h := testRouter(t, "")
	admin := tokenFor(t, domain.RoleAdmin)

	rr := call(h, http.MethodPost, "/admin/matches/not-a-uuid/winner", admin, `{"winner":"meron"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "ERR_INVALID_ID", code(t, rr))

	rr = call(h, http.MethodPost, "/admin/matches/"+uuid.NewString()+"/winner", admin, `{"winner":"nobody"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "ERR_VALIDATION", code(t, rr))

	rr = call(h, http.MethodPost, "/admin/matches/"+uuid.NewString()+"/status", admin, `{"status":"finished"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "ERR_VALIDATION", code(t, rr))

	rr = call(h, http.MethodPost, "/admin/matches/"+uuid.NewString()+"/inject", admin, `{"selection":"wala","amount":"-1"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "ERR_INVALID_AMOUNT", code(t, rr))

	rr = call(h, http.MethodPost, "/admin/karera/races", admin, `{"name":"R1","horses":[{"number":1,"name":"Bagyo"}]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(h, http.MethodPost, "/admin/karera/races/"+uuid.NewString()+"/winner", admin, `{"finish":[1,2],"odds":{"parlay":"3"}}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "ERR_VALIDATION", code(t, rr))

	rr = call(h, http.MethodGet, "/admin/finance/report?window=yesterday", admin, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBackoffice_UnknownUserAction(t *testing.T) {
	h := testRouter(t, "")
	rr := call(h, http.MethodPost, "/admin/users/"+uuid.NewString()+"/delete", tokenFor(t, domain.RoleAdmin), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestIPWhitelist(t *testing.T) {
	// httptest requests come from 192.0.2.1.
	h := testRouter(t, "10.0.0.1, 10.0.0.2")
	rr := call(h, http.MethodGet, "/admin/users", tokenFor(t, domain.RoleAdmin), "")
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "ERR_IP_DENIED", code(t, rr))

	h = testRouter(t, "192.0.2.1")
	rr = call(h, http.MethodGet, "/admin/users", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
