// Package client wires the credential store, session controller, refresh
// scheduler and bearer transport into a single authenticated HTTP client.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-auth-session/credentials"
	"github.com/jrsteele09/go-auth-session/internal/config"
	apperrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/internal/metrics"
	"github.com/jrsteele09/go-auth-session/oauthmodel"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/transport"
	"github.com/jrsteele09/go-auth-session/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxErrorBody = 64 << 10

// StatusError is a non-2xx answer to a business request other than a 401.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Detail)
}

// Client is an authenticated HTTP client for one resource server.
type Client struct {
	baseURL     *url.URL
	store       *credentials.Store
	controller  *session.Controller
	metrics     *metrics.Metrics
	httpClient  *http.Client
	logger      zerolog.Logger
	unsubscribe func()
}

// New builds a Client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("[client.New] invalid base URL %q", baseURL)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := log.Logger
	if o.logger != nil {
		logger = *o.logger
	}
	if o.store == nil {
		o.store = credentials.NewStore()
	}
	if o.base == nil {
		o.base = http.DefaultTransport
	}

	m := metrics.New(o.registerer)

	controllerOpts := []session.ControllerOption{
		session.WithHTTPClient(&http.Client{Transport: o.base}),
		session.WithLogger(logger),
		session.WithMetrics(m),
	}
	controller, err := session.NewController(base.String(), o.store, append(controllerOpts, o.controllerOpts...)...)
	if err != nil {
		return nil, errors.Wrap(err, "[client.New]")
	}

	interceptorOpts := []transport.InterceptorOption{
		transport.WithLogger(logger),
		transport.WithMetrics(m),
	}
	if len(o.exemptPaths) > 0 {
		interceptorOpts = append(interceptorOpts, transport.WithExemptPaths(o.exemptPaths...))
	}

	c := &Client{
		baseURL:    base,
		store:      o.store,
		controller: controller,
		metrics:    m,
		httpClient: &http.Client{
			Transport: transport.NewInterceptor(transport.NewDispatcher(o.store, o.base), controller, interceptorOpts...),
			Timeout:   o.timeout,
		},
		logger: logger.With().Str("component", "client").Logger(),
	}
	c.unsubscribe = o.store.Subscribe(c.logEvent)
	return c, nil
}

// NewFromConfig builds a Client from cfg's base URL and session and
// transport settings. opts are applied afterwards.
func NewFromConfig(cfg config.Config, opts ...Option) (*Client, error) {
	defaults := []Option{
		WithExemptPaths(cfg.GetExemptPaths()...),
		WithTimeout(cfg.GetRequestTimeout()),
		WithControllerOptions(session.WithSessionConfig(cfg)),
	}
	return New(cfg.GetBaseURL(), append(defaults, opts...)...)
}

// Close stops the proactive refresh and detaches the client from its store.
func (c *Client) Close() {
	c.unsubscribe()
	c.controller.Close()
}

func (c *Client) Register(ctx context.Context, email, password string) (*users.Summary, error) {
	return c.controller.Register(ctx, email, password)
}

// Login authenticates and returns the logged in user's profile.
func (c *Client) Login(ctx context.Context, email, password string) (*users.Profile, error) {
	sess, err := c.controller.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return sess.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.controller.Logout(ctx)
}

// Refresh renews the access token now.
func (c *Client) Refresh(ctx context.Context) error {
	_, err := c.controller.Refresh(ctx)
	return err
}

func (c *Client) Session() (credentials.Session, bool) {
	return c.store.Get()
}

// User returns the logged in user, or nil when anonymous.
func (c *Client) User() *users.Profile {
	sess, ok := c.store.Get()
	if !ok {
		return nil
	}
	return sess.User
}

func (c *Client) IsAuthenticated() bool {
	return c.store.Authenticated()
}

func (c *Client) Controller() *session.Controller {
	return c.controller
}

// Metrics returns the session collectors. They are only exported when a
// registerer was configured.
func (c *Client) Metrics() *metrics.Metrics {
	return c.metrics
}

// HTTPClient returns the client whose requests carry the session's bearer
// token and recover from an expired one.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Do sends req through the authenticated transport. A relative request URL
// is resolved against the base URL. The response is returned as is; only
// transport failures are errors.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if !req.URL.IsAbs() {
		u := *c.baseURL
		u.Path = c.baseURL.Path + "/" + strings.TrimLeft(req.URL.Path, "/")
		u.RawQuery = req.URL.RawQuery
		req.URL = &u
		req.Host = u.Host
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &session.Error{Kind: session.ErrNetwork, Op: "request", Err: err}
	}
	return resp, nil
}

// GetJSON performs GET path and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.DoJSON(ctx, http.MethodGet, path, nil, out)
}

// PostJSON posts in as JSON to path and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.DoJSON(ctx, http.MethodPost, path, in, out)
}

// DoJSON performs a JSON request. A 401 that survived the refresh and replay
// is reported as session.ErrAuthExpired; other non-2xx answers as
// *StatusError.
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp oauthmodel.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&errResp)
		detail := errResp.Message(http.StatusText(resp.StatusCode))
		if resp.StatusCode == http.StatusUnauthorized {
			return &session.Error{Kind: session.ErrAuthExpired, Op: "request", StatusCode: resp.StatusCode, Detail: detail}
		}
		return &StatusError{StatusCode: resp.StatusCode, Detail: detail}
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

func (c *Client) logEvent(evt credentials.Event) {
	l := c.logger.Debug().Str("event", evt.Type.String())
	if evt.Session.User != nil {
		l = l.Str("user_id", string(evt.Session.User.ID))
	}
	l.Msg("session changed")
}
