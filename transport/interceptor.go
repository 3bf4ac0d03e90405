package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxDrain bounds how much of a discarded 401 body is read so the
// connection can be reused.
const maxDrain = 64 << 10

// Refresher renews the access token after a request sent with rejectedToken
// was answered 401. Concurrent calls must share one exchange.
type Refresher interface {
	RefreshAfterUnauthorized(ctx context.Context, rejectedToken string) (string, error)
}

// Interceptor is an http.RoundTripper that turns a 401 into at most one
// refresh and one replay of the original request.
type Interceptor struct {
	next      http.RoundTripper
	refresher Refresher
	exempt    []string
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

var _ http.RoundTripper = (*Interceptor)(nil)

// InterceptorOption defines a function type to modify the Interceptor instance.
type InterceptorOption func(*Interceptor)

// WithExemptPaths replaces the paths whose 401 never triggers a refresh.
func WithExemptPaths(paths ...string) InterceptorOption {
	return func(i *Interceptor) {
		i.exempt = paths
	}
}

func WithLogger(logger zerolog.Logger) InterceptorOption {
	return func(i *Interceptor) {
		i.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) InterceptorOption {
	return func(i *Interceptor) {
		i.metrics = m
	}
}

// NewInterceptor wraps next, which is normally a *Dispatcher.
func NewInterceptor(next http.RoundTripper, refresher Refresher, options ...InterceptorOption) *Interceptor {
	i := &Interceptor{
		next:      next,
		refresher: refresher,
		exempt:    []string{"/refresh", "/logout"},
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(i)
	}
	i.logger = i.logger.With().Str("component", "interceptor").Logger()
	return i
}

func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	attempt := AttemptFrom(ctx)
	retryable := attempt == 0 && !i.isExempt(req.URL.Path)

	var getBody func() (io.ReadCloser, error)
	if retryable {
		var err error
		if getBody, err = replayableBody(req); err != nil {
			return nil, err
		}
	}

	dispatchCtx, rec := withDispatchRecord(WithAttempt(ctx, attempt))
	first, err := withBody(req.Clone(dispatchCtx), getBody)
	if err != nil {
		return nil, err
	}
	resp, err := i.next.RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || !retryable {
		return resp, err
	}

	logger := i.logger.With().Str("method", req.Method).Str("path", req.URL.Path).Logger()
	if _, err := i.refresher.RefreshAfterUnauthorized(ctx, rec.token); err != nil {
		// The caller sees the original 401, not the refresh failure.
		logger.Debug().Err(err).Msg("refresh after 401 failed; returning original response")
		return resp, nil
	}

	drain(resp)
	replay, err := withBody(req.Clone(WithAttempt(ctx, attempt+1)), getBody)
	if err != nil {
		return nil, err
	}

	resp, err = i.next.RoundTrip(replay)
	if err != nil {
		i.metrics.Replay("error")
		return nil, err
	}
	i.metrics.Replay(statusClass(resp.StatusCode))
	logger.Debug().Int("status", resp.StatusCode).Msg("replayed request after refresh")
	return resp, nil
}

func (i *Interceptor) isExempt(path string) bool {
	path = strings.TrimRight(path, "/")
	for _, p := range i.exempt {
		if p != "" && strings.HasSuffix(path, strings.TrimRight(p, "/")) {
			return true
		}
	}
	return false
}

// replayableBody returns a body factory for req, buffering the body when the
// request cannot produce it again on its own. Requests without a body return nil.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		req.Body.Close()
		return req.GetBody, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrBodyNotReplayable, "buffer %s %s: %v", req.Method, req.URL.Path, err)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

// withBody gives r a fresh body from getBody, when there is one.
func withBody(r *http.Request, getBody func() (io.ReadCloser, error)) (*http.Request, error) {
	if getBody == nil {
		return r, nil
	}
	body, err := getBody()
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrBodyNotReplayable, "%s %s: %v", r.Method, r.URL.Path, err)
	}
	r.Body = body
	r.GetBody = getBody
	return r, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
	resp.Body.Close()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
