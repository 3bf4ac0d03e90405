// Package transport attaches the session's bearer token to outgoing requests
// and recovers from expired tokens by refreshing and replaying once.
package transport

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-session/credentials"
)

const RequestIDHeader = "X-Request-ID"

// SessionSource is read by the Dispatcher at the instant of each dispatch.
type SessionSource interface {
	Get() (credentials.Session, bool)
}

// Dispatcher is an http.RoundTripper that owns the Authorization header: it
// sets "Bearer <access token>" when the session is authenticated and removes
// the header otherwise. It never waits for a refresh.
type Dispatcher struct {
	source SessionSource
	base   http.RoundTripper
}

var _ http.RoundTripper = (*Dispatcher)(nil)

// NewDispatcher wraps base (http.DefaultTransport when nil).
func NewDispatcher(source SessionSource, base http.RoundTripper) *Dispatcher {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Dispatcher{source: source, base: base}
}

func (d *Dispatcher) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())

	sess, ok := d.source.Get()
	if ok {
		sess.Token.SetAuthHeader(r)
	} else {
		r.Header.Del("Authorization")
	}
	if rec := dispatchRecordFrom(r.Context()); rec != nil {
		rec.token = sess.AccessToken()
		if !ok {
			rec.token = ""
		}
	}
	if r.Header.Get(RequestIDHeader) == "" {
		r.Header.Set(RequestIDHeader, uuid.NewString())
	}

	return d.base.RoundTrip(r)
}
