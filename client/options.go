package client

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-auth-session/credentials"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type options struct {
	base           http.RoundTripper
	store          *credentials.Store
	logger         *zerolog.Logger
	registerer     prometheus.Registerer
	exemptPaths    []string
	timeout        time.Duration
	controllerOpts []session.ControllerOption
}

// Option configures a Client.
type Option func(*options)

// WithTransport sets the round tripper requests finally go through
// (http.DefaultTransport when unset). Session endpoint calls use it too.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.base = rt
	}
}

// WithStore shares an existing credential store.
func WithStore(store *credentials.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

// WithRegisterer registers the session metrics with reg. Without it the
// collectors are kept but not exported.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithExemptPaths replaces the paths whose 401 never triggers a refresh.
func WithExemptPaths(paths ...string) Option {
	return func(o *options) {
		o.exemptPaths = paths
	}
}

// WithTimeout bounds every request made through HTTPClient. Zero means no limit.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// WithControllerOptions passes options through to the session controller.
func WithControllerOptions(opts ...session.ControllerOption) Option {
	return func(o *options) {
		o.controllerOpts = append(o.controllerOpts, opts...)
	}
}
