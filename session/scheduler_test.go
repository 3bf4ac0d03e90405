package session_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/credentials"
	"github.com/jrsteele09/go-auth-session/server"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/users"
	"github.com/stretchr/testify/require"
)

func TestSchedulerArmsAfterLogin(t *testing.T) {
	f := setupTestFixture(t, fixtureOptions{})
	f.registerAndLogin(t)

	require.Equal(t, 1, f.timers.Count())
	require.Equal(t, 55*time.Minute, f.timers.Last().delay)

	fireAt, ok := f.controller.Scheduler().NextFire()
	require.True(t, ok)
	require.Equal(t, f.clock.Now().Add(55*time.Minute), fireAt)
}

func TestSchedulerFireRefreshesAndRearms(t *testing.T) {
	f := setupTestFixture(t, fixtureOptions{})
	before := f.registerAndLogin(t)

	f.clock.Advance(55 * time.Minute)
	f.timers.Last().Fire()

	require.Equal(t, 1, f.server.Calls(server.RouteRefresh))
	after, ok := f.store.Get()
	require.True(t, ok)
	require.NotEqual(t, before.AccessToken(), after.AccessToken())
	require.Equal(t, before.RefreshToken(), after.RefreshToken())

	// The refresh re-armed a fresh timer.
	require.Equal(t, 2, f.timers.Count())
	fireAt, ok := f.controller.Scheduler().NextFire()
	require.True(t, ok)
	require.Equal(t, f.clock.Now().Add(55*time.Minute), fireAt)
}

func TestSchedulerFailedRefreshClearsSession(t *testing.T) {
	f := setupTestFixture(t, fixtureOptions{})
	f.registerAndLogin(t)

	f.server.FailNext(server.RouteRefresh, http.StatusUnauthorized, 1)
	f.timers.Last().Fire()

	require.False(t, f.store.Authenticated())
	_, ok := f.controller.Scheduler().NextFire()
	require.False(t, ok)
	require.Equal(t, 1, f.timers.Count())
}

func TestSchedulerCancelledByLogout(t *testing.T) {
	f := setupTestFixture(t, fixtureOptions{})
	f.registerAndLogin(t)
	timer := f.timers.Last()

	require.NoError(t, f.controller.Logout(testContext(t)))
	require.True(t, timer.Stopped())

	// A timer that fires after being cancelled does nothing.
	timer.Fire()
	require.Zero(t, f.server.Calls(server.RouteRefresh))
}

func TestSchedulerStaleTimerIgnored(t *testing.T) {
	f := setupTestFixture(t, fixtureOptions{})
	f.registerAndLogin(t)
	stale := f.timers.Last()

	_, err := f.controller.Login(testContext(t), testEmail, testPassword)
	require.NoError(t, err)
	require.Equal(t, 2, f.timers.Count())
	require.True(t, stale.Stopped())

	stale.Fire()
	require.Zero(t, f.server.Calls(server.RouteRefresh))
}

func TestSchedulerUsesTokenExpiry(t *testing.T) {
	f := setupTestFixture(t, fixtureOptions{
		server:     []server.Option{server.WithAccessTokenExpiry(10 * time.Minute)},
		controller: []session.ControllerOption{session.WithUseTokenExpiry(true)},
	})
	f.registerAndLogin(t)

	require.Equal(t, 5*time.Minute, f.timers.Last().delay)
}

func TestSchedulerUsesReportedExpiresIn(t *testing.T) {
	f := setupTestFixture(t, fixtureOptions{
		server: []server.Option{server.WithAccessTokenExpiry(10 * time.Minute)},
	})
	f.registerAndLogin(t)

	require.Equal(t, 5*time.Minute, f.timers.Last().delay)
}

func TestScheduledAndReactiveRefreshShareOneExchange(t *testing.T) {
	f := setupTestFixture(t, fixtureOptions{})
	before := f.registerAndLogin(t)
	f.server.Delay(server.RouteRefresh, 200*time.Millisecond)

	fired := make(chan struct{})
	go func() {
		defer close(fired)
		f.timers.Last().Fire()
	}()
	require.Eventually(t, func() bool {
		return f.server.Calls(server.RouteRefresh) == 1
	}, time.Second, 5*time.Millisecond)

	token, err := f.controller.RefreshAfterUnauthorized(testContext(t), before.AccessToken())
	require.NoError(t, err)
	<-fired

	require.Equal(t, 1, f.server.Calls(server.RouteRefresh))
	after, ok := f.store.Get()
	require.True(t, ok)
	require.Equal(t, after.AccessToken(), token)
	require.NotEqual(t, before.AccessToken(), token)
	require.Equal(t, before.RefreshToken(), after.RefreshToken())
}

func TestSchedulerDelay(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	user := &users.Profile{ID: "1", Email: testEmail}

	tests := []struct {
		name      string
		opts      []session.ControllerOption
		expiry    time.Time
		wantDelay time.Duration
	}{
		{
			name:      "defaults",
			wantDelay: 55 * time.Minute,
		},
		{
			name:      "custom margin",
			opts:      []session.ControllerOption{session.WithRefreshMargin(10 * time.Minute)},
			wantDelay: 50 * time.Minute,
		},
		{
			name:      "margin swallowing lifetime hits the floor",
			opts:      []session.ControllerOption{session.WithAccessTokenLifetime(time.Minute), session.WithRefreshMargin(5 * time.Minute)},
			wantDelay: 10 * time.Second,
		},
		{
			name:      "stored expiry from expires_in",
			expiry:    now.Add(10 * time.Minute),
			wantDelay: 5 * time.Minute,
		},
		{
			name:      "opaque token falls back to stored expiry",
			opts:      []session.ControllerOption{session.WithUseTokenExpiry(true)},
			expiry:    now.Add(20 * time.Minute),
			wantDelay: 15 * time.Minute,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := credentials.NewStore()
			controller, err := session.NewController("http://localhost", store, tt.opts...)
			require.NoError(t, err)
			defer controller.Close()

			store.Set("opaque-access", "refresh", tt.expiry, user)
			sess, _ := store.Get()
			require.Equal(t, tt.wantDelay, controller.Scheduler().Delay(sess, now))
		})
	}
}
