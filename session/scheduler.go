package session

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-session/credentials"
	"github.com/jrsteele09/go-auth-session/internal/metrics"
	"github.com/rs/zerolog"
)

// minRefreshDelay keeps a misconfigured margin from turning the scheduler
// into a refresh loop.
const minRefreshDelay = 10 * time.Second

// Timer is the cancel handle of an armed refresh.
type Timer interface {
	Stop() bool
}

// AfterFunc arms f to run once after d. time.AfterFunc satisfies it once
// wrapped; tests substitute a fake clock.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type schedulerParams struct {
	store     *credentials.Store
	refresh   func(ctx context.Context) error
	lifetime  time.Duration
	margin    time.Duration
	useExpiry bool
	now       func() time.Time
	afterFunc AfterFunc
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// Scheduler proactively refreshes the access token shortly before it
// expires. It re-arms after every login or refresh and disarms when the
// session is cleared.
type Scheduler struct {
	lock        sync.Mutex
	timer       Timer
	seq         uint64 // Bumped on every arm/cancel; a firing timer with an older seq is stale
	fireAt      time.Time
	params      schedulerParams
	unsubscribe func()
}

func newScheduler(p schedulerParams) *Scheduler {
	if p.afterFunc == nil {
		p.afterFunc = stdAfterFunc
	}
	if p.now == nil {
		p.now = time.Now
	}
	s := &Scheduler{params: p}
	s.unsubscribe = p.store.Subscribe(s.onStoreEvent)
	return s
}

func (s *Scheduler) onStoreEvent(ev credentials.Event) {
	switch ev.Type {
	case credentials.EventLogin, credentials.EventRefresh:
		s.Arm()
	case credentials.EventCleared:
		s.Cancel()
	}
}

// Delay is how long after a login or refresh at now the timer fires for the
// given session. The expiry comes from the JWT exp claim when useExpiry is
// set, then from the stored expiry (expires_in, or the configured lifetime
// when the server sent none), then from the configured lifetime.
func (s *Scheduler) Delay(sess credentials.Session, now time.Time) time.Duration {
	delay := s.params.lifetime - s.params.margin
	exp, ok := time.Time{}, false
	if s.params.useExpiry {
		exp, ok = accessTokenExpiry(sess.AccessToken())
	}
	if !ok {
		exp = sess.Expiry()
		ok = !exp.IsZero()
	}
	if ok {
		delay = exp.Sub(now) - s.params.margin
	}
	if delay < minRefreshDelay {
		delay = minRefreshDelay
	}
	return delay
}

// Arm (re)starts the timer for the current session. With no authenticated
// session it cancels instead.
func (s *Scheduler) Arm() {
	sess, ok := s.params.store.Get()
	if !ok {
		s.Cancel()
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.stopLocked()
	now := s.params.now()
	delay := s.Delay(sess, now)
	s.seq++
	seq := s.seq
	s.fireAt = now.Add(delay)
	s.timer = s.params.afterFunc(delay, func() { s.fire(seq) })
	s.params.logger.Debug().Dur("delay", delay).Time("fire_at", s.fireAt).Msg("proactive refresh armed")
}

// Cancel disarms any pending refresh. Safe to call when nothing is armed.
func (s *Scheduler) Cancel() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.timer != nil {
		s.params.logger.Debug().Msg("proactive refresh cancelled")
	}
	s.stopLocked()
	s.seq++
}

// NextFire returns when the pending refresh fires, if one is armed.
func (s *Scheduler) NextFire() (time.Time, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.timer == nil {
		return time.Time{}, false
	}
	return s.fireAt, true
}

// Close cancels the timer and stops following the store.
func (s *Scheduler) Close() {
	s.unsubscribe()
	s.Cancel()
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.fireAt = time.Time{}
}

func (s *Scheduler) fire(seq uint64) {
	s.lock.Lock()
	if seq != s.seq {
		s.lock.Unlock()
		return
	}
	s.timer = nil
	s.fireAt = time.Time{}
	s.lock.Unlock()

	sess, _ := s.params.store.Get()
	if sess.RefreshToken() == "" {
		s.params.metrics.Fired(metrics.OutcomeSkipped)
		return
	}

	if err := s.params.refresh(context.Background()); err != nil {
		s.params.metrics.Fired(metrics.OutcomeFailure)
		s.params.logger.Warn().Err(err).Msg("proactive refresh failed")
		return
	}
	s.params.metrics.Fired(metrics.OutcomeSuccess)
}

// accessTokenExpiry reads the exp claim of a JWT access token without
// verifying it. The client has no key and only needs a scheduling hint.
func accessTokenExpiry(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
