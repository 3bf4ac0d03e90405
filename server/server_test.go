package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/oauthmodel"
	"github.com/jrsteele09/go-auth-session/server"
	"github.com/jrsteele09/go-auth-session/users"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "jane.doe@example.com"
	testPassword = "Password123"
)

type clock struct {
	lock sync.Mutex
	now  time.Time
}

func (c *clock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}

type testFixture struct {
	server *server.Server
	http   *httptest.Server
	clock  *clock
}

func setupTestFixture(t *testing.T, options ...server.Option) *testFixture {
	t.Helper()

	clk := &clock{now: time.Now()}
	opts := []server.Option{
		server.WithLogger(zerolog.Nop()),
		server.WithEnv("TEST"),
		server.WithNowFunc(clk.Now),
		server.WithRequestsPerMinute(0),
	}
	srv := server.New(append(opts, options...)...)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return &testFixture{server: srv, http: ts, clock: clk}
}

func (f *testFixture) do(t *testing.T, method, path, bearer string, body any, out any) int {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.http.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *testFixture) register(t *testing.T) {
	t.Helper()
	status := f.do(t, http.MethodPost, server.RouteRegister, "", oauthmodel.CredentialsRequest{Email: testEmail, Password: testPassword}, nil)
	require.Equal(t, http.StatusOK, status)
}

func (f *testFixture) login(t *testing.T) oauthmodel.TokenResponse {
	t.Helper()
	var tokens oauthmodel.TokenResponse
	status := f.do(t, http.MethodPost, server.RouteLogin, "", oauthmodel.CredentialsRequest{Email: testEmail, Password: testPassword}, &tokens)
	require.Equal(t, http.StatusOK, status)
	return tokens
}

func TestRegister(t *testing.T) {
	f := setupTestFixture(t)

	var summary users.Summary
	status := f.do(t, http.MethodPost, server.RouteRegister, "", oauthmodel.CredentialsRequest{Email: testEmail, Password: testPassword}, &summary)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, testEmail, summary.Email)
	require.NotEmpty(t, summary.ID)

	tests := []struct {
		name   string
		email  string
		pass   string
		detail string
	}{
		{"duplicate", testEmail, testPassword, "Email already registered"},
		{"bad email", "not-an-email", testPassword, "Invalid email format"},
		{"weak password", "other@example.com", "short", "password must be at least 8 characters long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errResp oauthmodel.ErrorResponse
			status := f.do(t, http.MethodPost, server.RouteRegister, "", oauthmodel.CredentialsRequest{Email: tt.email, Password: tt.pass}, &errResp)
			require.Equal(t, http.StatusBadRequest, status)
			require.Equal(t, tt.detail, errResp.Message(""))
		})
	}
}

func TestLoginIssuesTokens(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)

	tokens := f.login(t)
	require.True(t, tokens.Valid())
	require.NotEmpty(t, tokens.RefreshToken)
	require.Equal(t, 3600, tokens.ExpiresIn)

	var profile users.Profile
	status := f.do(t, http.MethodGet, server.RouteMe, tokens.AccessToken, nil, &profile)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, testEmail, profile.Email)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)

	var errResp oauthmodel.ErrorResponse
	status := f.do(t, http.MethodPost, server.RouteLogin, "", oauthmodel.CredentialsRequest{Email: testEmail, Password: "Wrong1234"}, &errResp)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Invalid email or password", errResp.Message(""))
}

func TestLoginRateLimit(t *testing.T) {
	f := setupTestFixture(t, server.WithLoginAttemptLimit(2, 5*time.Minute))
	f.register(t)

	bad := oauthmodel.CredentialsRequest{Email: testEmail, Password: "Wrong1234"}
	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, server.RouteLogin, "", bad, nil))
	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, server.RouteLogin, "", bad, nil))

	var errResp oauthmodel.ErrorResponse
	status := f.do(t, http.MethodPost, server.RouteLogin, "", oauthmodel.CredentialsRequest{Email: testEmail, Password: testPassword}, &errResp)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Contains(t, errResp.Message(""), "Too many login attempts")

	f.clock.Advance(5 * time.Minute)
	f.login(t)
}

func TestRefreshEchoesRefreshToken(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	tokens := f.login(t)

	f.clock.Advance(time.Second)
	var refreshed oauthmodel.TokenResponse
	status := f.do(t, http.MethodPost, server.RouteRefresh, "", oauthmodel.RefreshRequest{RefreshToken: tokens.RefreshToken}, &refreshed)
	require.Equal(t, http.StatusOK, status)
	require.NotEqual(t, tokens.AccessToken, refreshed.AccessToken)
	require.Equal(t, tokens.RefreshToken, refreshed.RefreshToken)
}

func TestRefreshRotation(t *testing.T) {
	f := setupTestFixture(t, server.WithRefreshRotation(true))
	f.register(t)
	tokens := f.login(t)

	var refreshed oauthmodel.TokenResponse
	status := f.do(t, http.MethodPost, server.RouteRefresh, "", oauthmodel.RefreshRequest{RefreshToken: tokens.RefreshToken}, &refreshed)
	require.Equal(t, http.StatusOK, status)
	require.NotEqual(t, tokens.RefreshToken, refreshed.RefreshToken)

	status = f.do(t, http.MethodPost, server.RouteRefresh, "", oauthmodel.RefreshRequest{RefreshToken: tokens.RefreshToken}, nil)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestRefreshTokenExpiry(t *testing.T) {
	f := setupTestFixture(t, server.WithRefreshTokenExpiry(time.Hour))
	f.register(t)
	tokens := f.login(t)

	f.clock.Advance(2 * time.Hour)
	var errResp oauthmodel.ErrorResponse
	status := f.do(t, http.MethodPost, server.RouteRefresh, "", oauthmodel.RefreshRequest{RefreshToken: tokens.RefreshToken}, &errResp)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Refresh token expired", errResp.Message(""))
}

func TestProtectedRoutes(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	tokens := f.login(t)

	t.Run("missing token", func(t *testing.T) {
		var errResp oauthmodel.ErrorResponse
		require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, server.RouteHistory, "", nil, &errResp))
		require.Equal(t, "Not authenticated", errResp.Message(""))
	})

	t.Run("refresh token as bearer", func(t *testing.T) {
		var errResp oauthmodel.ErrorResponse
		require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, server.RouteHistory, tokens.RefreshToken, nil, &errResp))
		require.Equal(t, "Cannot use refresh token for this request", errResp.Message(""))
	})

	t.Run("expired access token", func(t *testing.T) {
		f.clock.Advance(61 * time.Minute)
		defer f.clock.Advance(-61 * time.Minute)
		require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, server.RouteMe, tokens.AccessToken, nil, nil))
	})

	t.Run("analyze then history", func(t *testing.T) {
		var analysis server.Analysis
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, server.RouteAnalyze, tokens.AccessToken, server.AnalyzeRequest{Role: "backend", Level: "senior"}, &analysis))
		require.Equal(t, "backend", analysis.Role)

		var history server.History
		require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, server.RouteHistory, tokens.AccessToken, nil, &history))
		require.Equal(t, 1, history.Total)
		require.Equal(t, analysis.ID, history.Analyses[0].ID)
	})

	t.Run("revoked access token", func(t *testing.T) {
		require.NoError(t, f.server.RevokeAccessToken(tokens.AccessToken))
		require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, server.RouteMe, tokens.AccessToken, nil, nil))
	})
}

func TestLogoutDeletesRefreshToken(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	tokens := f.login(t)

	status := f.do(t, http.MethodPost, server.RouteLogout, tokens.AccessToken, oauthmodel.LogoutRequest{RefreshToken: tokens.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, status)

	status = f.do(t, http.MethodPost, server.RouteRefresh, "", oauthmodel.RefreshRequest{RefreshToken: tokens.RefreshToken}, nil)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestLogoutAcceptsQueryParameter(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	tokens := f.login(t)

	status := f.do(t, http.MethodPost, server.RouteLogout+"?refresh_token="+tokens.RefreshToken, tokens.AccessToken, nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, server.RouteLogout, "", nil, nil))
}

func TestFaultInjection(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	tokens := f.login(t)

	f.server.FailNext(server.RouteRefresh, http.StatusServiceUnavailable, 1)
	req := oauthmodel.RefreshRequest{RefreshToken: tokens.RefreshToken}
	require.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, server.RouteRefresh, "", req, nil))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, server.RouteRefresh, "", req, nil))
	require.Equal(t, 2, f.server.Calls(server.RouteRefresh))

	f.server.FailNext(server.RouteMe, http.StatusInternalServerError, -1)
	require.Equal(t, http.StatusInternalServerError, f.do(t, http.MethodGet, server.RouteMe, tokens.AccessToken, nil, nil))
	require.Equal(t, http.StatusInternalServerError, f.do(t, http.MethodGet, server.RouteMe, tokens.AccessToken, nil, nil))
	f.server.ClearFaults()
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, server.RouteMe, tokens.AccessToken, nil, nil))

	f.server.ResetCalls()
	require.Zero(t, f.server.Calls(server.RouteMe))
}
