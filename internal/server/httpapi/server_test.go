package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/logging"
	"github.com/dmitrijs2005/eventhub/internal/server/auth"
	"github.com/dmitrijs2005/eventhub/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/eventhub/internal/server/repositories/users"
	"github.com/dmitrijs2005/eventhub/internal/server/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// countingRepos records every access to the user store.
type countingRepos struct {
	*repomanager.InMemoryRepositoryManager
	calls atomic.Int32
}

func (c *countingRepos) Users() users.Repository {
	c.calls.Add(1)
	return c.InMemoryRepositoryManager.Users()
}

func (c *countingRepos) InTx(ctx context.Context, fn func(context.Context, users.Repository) error) error {
	c.calls.Add(1)
	return c.InMemoryRepositoryManager.InTx(ctx, fn)
}

type fakeGoogle struct {
	profile services.OAuthProfile
	err     error
}

func (f *fakeGoogle) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (f *fakeGoogle) Profile(_ context.Context, code string) (services.OAuthProfile, error) {
	if f.err != nil {
		return services.OAuthProfile{}, f.err
	}
	return f.profile, nil
}

type env struct {
	handler  http.Handler
	server   *Server
	repos    *countingRepos
	tokens   *auth.TokenService
	registry *prometheus.Registry
}

func newEnv(t *testing.T, mutate func(*Options)) *env {
	t.Helper()

	tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: []byte("http-test-secret")})
	require.NoError(t, err)
	return newEnvWithTokens(t, tokens, mutate)
}

func newEnvWithTokens(t *testing.T, tokens *auth.TokenService, mutate func(*Options)) *env {
	t.Helper()

	repos := &countingRepos{InMemoryRepositoryManager: repomanager.NewInMemoryRepositoryManager()}
	svc, err := services.NewUserService(repos, tokens, nil, logging.Nop{}, services.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	opts := Options{
		Address:           "127.0.0.1:0",
		CORSOrigins:       []string{"http://localhost:5173"},
		RateLimitRequests: 1000,
		RateLimitWindow:   time.Minute,
		Registry:          reg,
	}
	if mutate != nil {
		mutate(&opts)
	}

	srv, err := NewServer(opts, svc, tokens, logging.Nop{})
	require.NoError(t, err)

	return &env{handler: srv.Routes(), server: srv, repos: repos, tokens: tokens, registry: reg}
}

func (e *env) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *env) register(t *testing.T, username, email, password string) sessionResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username, "email": email, "password": password,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[sessionResponse](t, rec)
}

func (e *env) login(t *testing.T, email, password string) sessionResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[sessionResponse](t, rec)
}

func TestRoot_And_Health(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "API is running...", rec.Body.String())

	rec = e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRegister(t *testing.T) {
	e := newEnv(t, nil)

	s := e.register(t, "gili", "gil@salton.com", "password123")
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "gili", s.Username)
	assert.Equal(t, "gil@salton.com", s.Email)
	assert.NotEmpty(t, s.Token)
	assert.NotEmpty(t, s.RefreshToken)

	rec := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "other", "email": "gil@salton.com", "password": "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User already exists", decode[map[string]string](t, rec)["message"])

	rec = e.do(t, http.MethodPost, "/api/auth/register", "", `{"username":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "a@b.c"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	e := newEnv(t, nil)
	e.register(t, "gili", "gil@salton.com", "password123")

	s := e.login(t, "gil@salton.com", "password123")
	assert.Equal(t, "gili", s.Username)

	rec := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "gil@salton.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid email or password", decode[map[string]string](t, rec)["message"])

	rec = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "who@salton.com", "password": "password123"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtected_NoHeader_NoStoreAccess(t *testing.T) {
	e := newEnv(t, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/auth/profile"},
		{http.MethodPost, "/api/auth/logout"},
		{http.MethodPut, "/api/users/update"},
	} {
		rec := e.do(t, tc.method, tc.path, "", map[string]string{"username": "x"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
		assert.Equal(t, "Unauthorized, no token", decode[map[string]string](t, rec)["message"])
	}
	assert.Zero(t, e.repos.calls.Load())
	assert.Equal(t, 3.0, testutil.ToFloat64(e.server.metrics.authFailures.WithLabelValues("missing")))
}

func TestProtected_NonBearerScheme(t *testing.T) {
	e := newEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
	req.Header.Set("Authorization", "Basic Z2lsOnNlY3JldA==")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized, no token", decode[map[string]string](t, rec)["message"])
}

func TestProtected_WrongSignature(t *testing.T) {
	e := newEnv(t, nil)
	s := e.register(t, "gili", "gil@salton.com", "password123")

	other, err := auth.NewTokenService(auth.TokenConfig{Secret: []byte("some-other-secret")})
	require.NoError(t, err)
	forged, err := other.IssueAccessToken(s.ID)
	require.NoError(t, err)

	before := e.repos.calls.Load()
	rec := e.do(t, http.MethodGet, "/api/auth/profile", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized, invalid token", decode[map[string]string](t, rec)["message"])
	assert.Equal(t, before, e.repos.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(e.server.metrics.authFailures.WithLabelValues("signature")))

	rec = e.do(t, http.MethodGet, "/api/auth/profile", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.server.metrics.authFailures.WithLabelValues("malformed")))
}

func TestProfile(t *testing.T) {
	e := newEnv(t, nil)
	s := e.register(t, "gili", "gil@salton.com", "password123")

	rec := e.do(t, http.MethodGet, "/api/auth/profile", s.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, s.ID, body["_id"])
	assert.Equal(t, "gili", body["username"])
	assert.NotContains(t, rec.Body.String(), "password")
	assert.NotContains(t, rec.Body.String(), s.RefreshToken)

	ghost, err := e.tokens.IssueAccessToken("00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	rec = e.do(t, http.MethodGet, "/api/auth/profile", ghost, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefresh_MissingField(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Refresh token is required", decode[map[string]string](t, rec)["message"])
}

func TestRefresh_ExpiredRefreshTokenRejected(t *testing.T) {
	clock := time.Now()
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret: []byte("http-test-secret"),
		Now:    func() time.Time { return clock },
	})
	require.NoError(t, err)
	e := newEnvWithTokens(t, tokens, nil)

	s := e.register(t, "gili", "gil@salton.com", "password123")

	clock = clock.Add(auth.DefaultRefreshTTL + time.Minute)

	rec := e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": s.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid refresh token", decode[map[string]string](t, rec)["message"])
	assert.Equal(t, 1.0, testutil.ToFloat64(e.server.metrics.authFailures.WithLabelValues("refresh_expired")))
}

func TestRefresh_OnlyLatestSessionSurvives(t *testing.T) {
	e := newEnv(t, nil)
	e.register(t, "gili", "gil@salton.com", "password123")

	first := e.login(t, "gil@salton.com", "password123")
	second := e.login(t, "gil@salton.com", "password123")

	rec := e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.server.metrics.authFailures.WithLabelValues("refresh_superseded")))

	rec = e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": second.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	access := decode[map[string]string](t, rec)["token"]
	require.NotEmpty(t, access)

	rec = e.do(t, http.MethodGet, "/api/auth/profile", access, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// the superseded session's access token lives until it expires
	rec = e.do(t, http.MethodGet, "/api/auth/profile", first.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefresh_InvalidToken(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": "not.a.jwt"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_ClearsRefresh(t *testing.T) {
	e := newEnv(t, nil)
	s := e.register(t, "gili", "gil@salton.com", "password123")

	rec := e.do(t, http.MethodPost, "/api/auth/logout", s.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": s.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateProfile(t *testing.T) {
	e := newEnv(t, nil)
	s := e.register(t, "gili", "gil@salton.com", "password123")
	e.register(t, "taken", "taken@salton.com", "password123")

	rec := e.do(t, http.MethodPut, "/api/users/update", s.Token, map[string]string{"username": "gil"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[struct {
		Message string   `json:"message"`
		User    userView `json:"user"`
	}](t, rec)
	assert.Equal(t, "Profile updated successfully", body.Message)
	assert.Equal(t, "gil", body.User.Username)
	assert.Equal(t, "gil@salton.com", body.User.Email)

	rec = e.do(t, http.MethodPut, "/api/users/update", s.Token, map[string]string{"email": "taken@salton.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPut, "/api/users/update", s.Token, map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGoogle_NotConfigured(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodGet, "/api/auth/google", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = e.do(t, http.MethodGet, "/api/auth/google/callback?code=x&state=y", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGoogle_Flow(t *testing.T) {
	g := &fakeGoogle{profile: services.OAuthProfile{Email: "gil@salton.com", Name: "Gil", Picture: "https://p/g.jpg"}}
	e := newEnv(t, func(o *Options) { o.Google = g })

	rec := e.do(t, http.MethodGet, "/api/auth/google", "", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(loc, "https://accounts.example.com/auth?state="))
	state := strings.TrimPrefix(loc, "https://accounts.example.com/auth?state=")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)

	// state mismatch
	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?code=c&state=forged", nil)
	req.AddCookie(cookies[0])
	bad := httptest.NewRecorder()
	e.handler.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?code=c&state="+state, nil)
	req.AddCookie(cookies[0])
	ok := httptest.NewRecorder()
	e.handler.ServeHTTP(ok, req)
	require.Equal(t, http.StatusOK, ok.Code, ok.Body.String())

	body := decode[struct {
		Message      string   `json:"message"`
		User         userView `json:"user"`
		Token        string   `json:"token"`
		RefreshToken string   `json:"refreshToken"`
	}](t, ok)
	assert.Equal(t, "Login successful", body.Message)
	assert.Equal(t, "gil@salton.com", body.User.Email)
	assert.Equal(t, "https://p/g.jpg", body.User.ProfileImage)
	assert.NotEmpty(t, body.Token)

	rec = e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": body.RefreshToken})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGoogle_ExchangeFailure(t *testing.T) {
	g := &fakeGoogle{err: errors.New("invalid_grant")}
	e := newEnv(t, func(o *Options) { o.Google = g })

	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?code=c&state=s1", nil)
	req.AddCookie(&http.Cookie{Name: "eventhub_oauth_state", Value: "s1"})
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit(t *testing.T) {
	e := newEnv(t, func(o *Options) { o.RateLimitRequests = 2 })

	for i := 0; i < 2; i++ {
		rec := e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec := e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "Too many requests from this IP, please try again later.", decode[map[string]string](t, rec)["message"])

	// outside /api there is no limit
	rec = e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS_Preflight(t *testing.T) {
	e := newEnv(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t, nil)
	e.do(t, http.MethodGet, "/api/auth/profile", "", nil)

	rec := e.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `eventhub_auth_failures_total{reason="missing"} 1`)
}

func TestGzip(t *testing.T) {
	e := newEnv(t, nil)
	e.registry.MustRegister(collectors.NewGoCollector())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	e := newEnv(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.server.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after context cancel")
	}
}

func TestRun_BadAddress(t *testing.T) {
	e := newEnv(t, func(o *Options) { o.Address = "127.0.0.1:99999" })
	assert.Error(t, e.server.Run(context.Background()))
}
