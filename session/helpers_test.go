package session_test

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/credentials"
	"github.com/jrsteele09/go-auth-session/server"
	"github.com/jrsteele09/go-auth-session/session"
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

type fakeTimer struct {
	delay   time.Duration
	f       func()
	lock    sync.Mutex
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

func (t *fakeTimer) Stopped() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.stopped
}

// Fire runs the callback synchronously, as the runtime would after delay,
// even when the timer was stopped too late to prevent it.
func (t *fakeTimer) Fire() {
	t.f()
}

type fakeTimers struct {
	lock   sync.Mutex
	timers []*fakeTimer
}

func (ft *fakeTimers) AfterFunc(d time.Duration, f func()) session.Timer {
	ft.lock.Lock()
	defer ft.lock.Unlock()
	t := &fakeTimer{delay: d, f: f}
	ft.timers = append(ft.timers, t)
	return t
}

func (ft *fakeTimers) Count() int {
	ft.lock.Lock()
	defer ft.lock.Unlock()
	return len(ft.timers)
}

func (ft *fakeTimers) Last() *fakeTimer {
	ft.lock.Lock()
	defer ft.lock.Unlock()
	if len(ft.timers) == 0 {
		return nil
	}
	return ft.timers[len(ft.timers)-1]
}

type testFixture struct {
	server     *server.Server
	http       *httptest.Server
	clock      *clock
	timers     *fakeTimers
	store      *credentials.Store
	controller *session.Controller
}

type fixtureOptions struct {
	server     []server.Option
	controller []session.ControllerOption
}

func setupTestFixture(t *testing.T, opts fixtureOptions) *testFixture {
	t.Helper()

	clk := &clock{now: time.Now().Truncate(time.Second)}
	srv := server.New(append([]server.Option{
		server.WithLogger(zerolog.Nop()),
		server.WithEnv("TEST"),
		server.WithNowFunc(clk.Now),
		server.WithRequestsPerMinute(0),
	}, opts.server...)...)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	timers := &fakeTimers{}
	store := credentials.NewStore()
	controller, err := session.NewController(ts.URL, store, append([]session.ControllerOption{
		session.WithLogger(zerolog.Nop()),
		session.WithNowTime(clk.Now),
		session.WithAfterFunc(timers.AfterFunc),
		session.WithRequestTimeout(5 * time.Second),
	}, opts.controller...)...)
	require.NoError(t, err)
	t.Cleanup(controller.Close)

	return &testFixture{
		server:     srv,
		http:       ts,
		clock:      clk,
		timers:     timers,
		store:      store,
		controller: controller,
	}
}

func (f *testFixture) registerAndLogin(t *testing.T) credentials.Session {
	t.Helper()
	_, err := f.controller.Register(testContext(t), testEmail, testPassword)
	require.NoError(t, err)
	sess, err := f.controller.Login(testContext(t), testEmail, testPassword)
	require.NoError(t, err)
	return sess
}
