// Package session orchestrates login, registration, logout and token refresh
// against the resource server, and keeps the credentials.Store in step with
// the server's view of the session.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/go-auth-session/credentials"
	"github.com/jrsteele09/go-auth-session/internal/config"
	apperrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/internal/metrics"
	"github.com/jrsteele09/go-auth-session/oauthmodel"
	"github.com/jrsteele09/go-auth-session/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const maxErrorBody = 64 << 10

// Endpoints are the server paths, relative to the base URL.
type Endpoints struct {
	Register string
	Login    string
	Refresh  string
	Logout   string
	Me       string
}

// DefaultEndpoints are the paths of the reference server.
var DefaultEndpoints = Endpoints{
	Register: "/register",
	Login:    "/login",
	Refresh:  "/refresh",
	Logout:   "/logout",
	Me:       "/me",
}

// Controller is the only component that changes the credentials.Store as a
// result of a server exchange.
type Controller struct {
	baseURL        string
	endpoints      Endpoints
	httpClient     *http.Client // Plain client; never routed through the refresh interceptor
	store          *credentials.Store
	scheduler      *Scheduler
	refreshGroup   singleflight.Group
	state          atomic.Int32
	validate       *validator.Validate
	lifetime       time.Duration
	margin         time.Duration
	requestTimeout time.Duration
	rotate         bool
	useExpiry      bool
	afterFunc      AfterFunc
	logger         zerolog.Logger
	metrics        *metrics.Metrics
	nowFunc        func() time.Time
}

// ControllerOption defines a function type to modify the Controller instance.
type ControllerOption func(*Controller)

// WithHTTPClient sets the client used for the session endpoints.
func WithHTTPClient(client *http.Client) ControllerOption {
	return func(c *Controller) {
		c.httpClient = client
	}
}

func WithEndpoints(endpoints Endpoints) ControllerOption {
	return func(c *Controller) {
		c.endpoints = endpoints
	}
}

// WithAccessTokenLifetime sets the assumed access token lifetime used when
// the server does not report one.
func WithAccessTokenLifetime(lifetime time.Duration) ControllerOption {
	return func(c *Controller) {
		c.lifetime = lifetime
	}
}

// WithRefreshMargin sets how long before expiry the proactive refresh fires.
func WithRefreshMargin(margin time.Duration) ControllerOption {
	return func(c *Controller) {
		c.margin = margin
	}
}

// WithRequestTimeout bounds each session endpoint exchange. A refresh that
// times out is a failed refresh.
func WithRequestTimeout(timeout time.Duration) ControllerOption {
	return func(c *Controller) {
		c.requestTimeout = timeout
	}
}

// WithRotateRefreshTokens stores refresh tokens returned by /refresh.
func WithRotateRefreshTokens(rotate bool) ControllerOption {
	return func(c *Controller) {
		c.rotate = rotate
	}
}

// WithUseTokenExpiry arms the proactive refresh from the access token's
// exp claim when the token is a JWT.
func WithUseTokenExpiry(use bool) ControllerOption {
	return func(c *Controller) {
		c.useExpiry = use
	}
}

// WithSessionConfig applies the session and transport settings of cfg.
func WithSessionConfig(cfg interface {
	config.SessionConfig
	config.TransportConfig
}) ControllerOption {
	return func(c *Controller) {
		c.lifetime = cfg.GetAccessTokenLifetime()
		c.margin = cfg.GetRefreshMargin()
		c.rotate = cfg.GetRotateRefreshTokens()
		c.useExpiry = cfg.GetUseTokenExpiry()
		c.requestTimeout = cfg.GetRequestTimeout()
	}
}

func WithLogger(logger zerolog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) ControllerOption {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ControllerOption {
	return func(c *Controller) {
		c.nowFunc = nowFunc
	}
}

// WithAfterFunc replaces time.AfterFunc for the refresh scheduler (primarily for testing)
func WithAfterFunc(afterFunc AfterFunc) ControllerOption {
	return func(c *Controller) {
		c.afterFunc = afterFunc
	}
}

// NewController creates a Controller for the server at baseURL that keeps
// store up to date. It also owns the proactive refresh scheduler.
func NewController(baseURL string, store *credentials.Store, options ...ControllerOption) (*Controller, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("[NewController] baseURL is required")
	}
	if store == nil {
		return nil, errors.New("[NewController] store is required")
	}

	c := &Controller{
		baseURL:        strings.TrimRight(baseURL, "/"),
		endpoints:      DefaultEndpoints,
		store:          store,
		validate:       validator.New(),
		lifetime:       config.DefaultAccessTokenLifetime,
		margin:         config.DefaultRefreshMargin,
		requestTimeout: 30 * time.Second,
		logger:         log.Logger,
		nowFunc:        time.Now,
	}

	for _, opt := range options {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.lifetime <= 0 {
		return nil, errors.New("[NewController] access token lifetime must be positive")
	}
	if c.margin < 0 {
		return nil, errors.New("[NewController] refresh margin must not be negative")
	}

	c.logger = c.logger.With().Str("component", "session").Logger()
	c.scheduler = newScheduler(schedulerParams{
		store:     store,
		refresh:   c.scheduledRefresh,
		lifetime:  c.lifetime,
		margin:    c.margin,
		useExpiry: c.useExpiry,
		now:       c.nowFunc,
		afterFunc: c.afterFunc,
		logger:    c.logger,
		metrics:   c.metrics,
	})
	return c, nil
}

// Store returns the credential store the controller maintains.
func (c *Controller) Store() *credentials.Store {
	return c.store
}

// Scheduler returns the proactive refresh scheduler.
func (c *Controller) Scheduler() *Scheduler {
	return c.scheduler
}

// State reports the refresh state machine's current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Endpoints returns the configured endpoint paths.
func (c *Controller) Endpoints() Endpoints {
	return c.endpoints
}

// Close stops the scheduler. The store is left untouched.
func (c *Controller) Close() {
	c.scheduler.Close()
}

// Register creates an account. It does not authenticate the caller and does
// not touch the store.
func (c *Controller) Register(ctx context.Context, email, password string) (*users.Summary, error) {
	req := oauthmodel.CredentialsRequest{Email: strings.TrimSpace(email), Password: password}
	if err := c.validate.Struct(req); err != nil {
		return nil, newError(ErrValidation, "register", 0, validationDetail(err), err)
	}
	if err := users.ValidatePasswordStrength(password); err != nil {
		return nil, newError(ErrValidation, "register", 0, err.Error(), apperrors.ErrWeakPassword)
	}

	var summary users.Summary
	if err := c.call(ctx, http.MethodPost, c.endpoints.Register, "", req, &summary); err != nil {
		return nil, classify("register", "Registration failed", err, registerKind)
	}
	if summary.Email == "" {
		summary.Email = req.Email
	}
	c.logger.Info().Str("email", summary.Email).Msg("registered account")
	return &summary, nil
}

// Login authenticates with email and password, fetches the user's profile
// and replaces any current session. On any failure after validation the
// store ends anonymous.
func (c *Controller) Login(ctx context.Context, email, password string) (credentials.Session, error) {
	req := oauthmodel.CredentialsRequest{Email: strings.TrimSpace(email), Password: password}
	if err := c.validate.Struct(req); err != nil {
		return credentials.Session{}, newError(ErrValidation, "login", 0, validationDetail(err), err)
	}

	var tokens oauthmodel.TokenResponse
	if err := c.call(ctx, http.MethodPost, c.endpoints.Login, "", req, &tokens); err != nil {
		c.rollbackLogin()
		return credentials.Session{}, classify("login", "Login failed", err, loginKind)
	}
	if !tokens.Valid() || tokens.RefreshToken == "" {
		c.rollbackLogin()
		return credentials.Session{}, newError(ErrAuth, "login", 0, "Login failed", apperrors.ErrMissingToken)
	}
	token := tokens.Token(c.nowFunc(), c.lifetime)

	var profile users.Profile
	if err := c.call(ctx, http.MethodGet, c.endpoints.Me, token.AccessToken, nil, &profile); err != nil {
		c.rollbackLogin()
		return credentials.Session{}, classify("login", "Login failed", err, loginKind)
	}

	sess := c.store.Set(token.AccessToken, token.RefreshToken, token.Expiry, &profile)
	c.state.Store(int32(StateNormal))
	c.metrics.Login(metrics.OutcomeSuccess)
	c.logger.Info().Str("email", profile.Email).Str("user_id", string(profile.ID)).Msg("logged in")
	return sess, nil
}

func (c *Controller) rollbackLogin() {
	c.metrics.Login(metrics.OutcomeFailure)
	if c.store.Clear() {
		c.metrics.Cleared("login_failed")
	}
}

// Logout notifies the server (best effort) and clears the session. It always
// succeeds; with no session it makes no network call.
func (c *Controller) Logout(ctx context.Context) error {
	sess, _ := c.store.Get()
	if sess.Token == nil {
		c.scheduler.Cancel()
		return nil
	}

	if rt := sess.RefreshToken(); rt != "" {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.requestTimeout)
		err := c.call(ctx, http.MethodPost, c.endpoints.Logout, sess.AccessToken(), oauthmodel.LogoutRequest{RefreshToken: rt}, nil)
		cancel()
		if err != nil {
			c.logger.Warn().Err(err).Msg("logout notification failed; clearing local session anyway")
		}
	}

	c.scheduler.Cancel()
	if c.store.Clear() {
		c.metrics.Cleared("logout")
	}
	c.logger.Info().Msg("logged out")
	return nil
}

// Refresh exchanges the stored refresh token for a new access token. Calls
// made while a refresh is running share its result. On failure the session
// is cleared and the error matches ErrRefreshFailure.
func (c *Controller) Refresh(ctx context.Context) (string, error) {
	return c.refresh(ctx, metrics.TriggerExplicit, "")
}

// RefreshAfterUnauthorized is the reactive entry point used when a request
// sent with rejectedToken came back 401. If the stored access token has
// already moved on, it is returned without another exchange.
func (c *Controller) RefreshAfterUnauthorized(ctx context.Context, rejectedToken string) (string, error) {
	if sess, ok := c.store.Get(); ok && sess.AccessToken() != rejectedToken {
		c.metrics.Refresh(metrics.TriggerReactive, metrics.OutcomeShared)
		return sess.AccessToken(), nil
	}
	return c.refresh(ctx, metrics.TriggerReactive, rejectedToken)
}

func (c *Controller) scheduledRefresh(ctx context.Context) error {
	_, err := c.refresh(ctx, metrics.TriggerScheduled, "")
	return err
}

// refresh runs at most one exchange per session generation at a time. When
// rejected is set and the store already holds a different access token for
// the same session, that token is returned instead of exchanging again.
func (c *Controller) refresh(ctx context.Context, trigger, rejected string) (string, error) {
	sess, _ := c.store.Get()
	refreshToken := sess.RefreshToken()
	if refreshToken == "" {
		c.metrics.Refresh(trigger, metrics.OutcomeSkipped)
		return "", newError(ErrRefreshFailure, "refresh", 0, "no active session", apperrors.ErrNoRefreshToken)
	}

	// The exchange is detached from the first caller's cancellation so that
	// every waiter observes the same outcome.
	exchangeCtx := context.WithoutCancel(ctx)
	key := fmt.Sprintf("refresh-%d", sess.Generation)
	leader := false
	ch := c.refreshGroup.DoChan(key, func() (any, error) {
		leader = true
		if rejected != "" {
			if cur, ok := c.store.Get(); ok && cur.Generation == sess.Generation && cur.AccessToken() != rejected {
				c.metrics.Refresh(trigger, metrics.OutcomeShared)
				return cur.AccessToken(), nil
			}
		}
		return c.exchangeRefreshToken(exchangeCtx, sess.Generation, refreshToken, trigger)
	})

	select {
	case res := <-ch:
		if !leader {
			c.metrics.Refresh(trigger, metrics.OutcomeShared)
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Controller) exchangeRefreshToken(ctx context.Context, gen uint64, refreshToken, trigger string) (string, error) {
	c.state.Store(int32(StateRefreshInFlight))

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var tokens oauthmodel.TokenResponse
	err := c.call(ctx, http.MethodPost, c.endpoints.Refresh, "", oauthmodel.RefreshRequest{RefreshToken: refreshToken}, &tokens)
	if err == nil && !tokens.Valid() {
		err = apperrors.ErrMissingToken
	}
	if err != nil {
		c.state.Store(int32(StateFailed))
		if c.store.ClearIf(gen) {
			c.scheduler.Cancel()
			c.metrics.Cleared("refresh_failed")
		}
		// Failed only lasts until the session is gone.
		c.state.Store(int32(StateNormal))
		c.metrics.Refresh(trigger, metrics.OutcomeFailure)
		c.logger.Warn().Err(err).Str("trigger", trigger).Msg("refresh failed; session cleared")
		return "", classify("refresh", "Token refresh failed", err, func(int, string) error { return ErrRefreshFailure })
	}

	token := tokens.Token(c.nowFunc(), c.lifetime)
	rotated := ""
	if c.rotate {
		rotated = tokens.RefreshToken
	}
	c.state.Store(int32(StateNormal))
	if !c.store.CompareAndSetTokens(gen, token.AccessToken, rotated, token.Expiry) {
		c.metrics.Refresh(trigger, metrics.OutcomeFailure)
		return "", newError(ErrRefreshFailure, "refresh", 0, "session ended during refresh", nil)
	}

	c.metrics.Refresh(trigger, metrics.OutcomeSuccess)
	c.logger.Debug().Str("trigger", trigger).Time("expiry", token.Expiry).Msg("access token refreshed")
	return token.AccessToken, nil
}

// statusError is a non-2xx answer from the server.
type statusError struct {
	StatusCode int
	Body       oauthmodel.ErrorResponse
}

func (s *statusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", s.StatusCode, s.Body.Message(http.StatusText(s.StatusCode)))
}

// call performs one JSON exchange. bearer, when set, is sent as the
// Authorization header; body, when non-nil, is JSON encoded; out, when
// non-nil, receives the decoded 2xx response.
func (c *Controller) call(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newError(ErrNetwork, "", 0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &statusError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&se.Body)
		return se
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrapf(apperrors.ErrInvalidResponse, "decode %s %s: %v", method, path, err)
	}
	return nil
}

// classify maps a call failure to an *Error of the kind kindFor picks for
// the response status and detail. Status 0 means the server was not reached,
// -1 that its answer could not be used.
func classify(op, fallback string, err error, kindFor func(status int, detail string) error) *Error {
	var se *statusError
	if errors.As(err, &se) {
		detail := se.Body.Message(fallback)
		return newError(kindFor(se.StatusCode, detail), op, se.StatusCode, detail, nil)
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == ErrNetwork {
		kind := kindFor(0, "")
		if kind == ErrNetwork {
			return newError(ErrNetwork, op, 0, "", e.Err)
		}
		return newError(kind, op, 0, fallback, e)
	}
	return newError(kindFor(-1, ""), op, 0, fallback, err)
}

func loginKind(status int, _ string) error {
	switch status {
	case 0:
		// A login that could not reach the server is still a failed login;
		// the network cause stays in the chain.
		return ErrAuth
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return ErrAuth
}

func registerKind(status int, detail string) error {
	switch status {
	case 0:
		return ErrNetwork
	case http.StatusConflict:
		return ErrConflict
	case http.StatusBadRequest:
		// The reference server reports duplicates as 400 "Email already registered".
		if strings.Contains(strings.ToLower(detail), "already") {
			return ErrConflict
		}
		return ErrValidation
	case http.StatusUnprocessableEntity:
		return ErrValidation
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return ErrAuth
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, strings.ToLower(fe.Field())+" is required")
		case "email":
			msgs = append(msgs, apperrors.ErrInvalidEmail.Error())
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", strings.ToLower(fe.Field())))
		}
	}
	return strings.Join(msgs, "; ")
}
