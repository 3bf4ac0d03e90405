package transport_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/credentials"
	"github.com/jrsteele09/go-auth-session/transport"
	"github.com/jrsteele09/go-auth-session/users"
	"github.com/stretchr/testify/require"
)

var testUser = &users.Profile{ID: "1", Email: "jane.doe@example.com"}

// headerEcho records the headers of the last request it served.
type headerEcho struct {
	last http.Header
}

func (h *headerEcho) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.last = r.Header.Clone()
	w.WriteHeader(http.StatusNoContent)
}

func TestDispatcherAttachesBearerToken(t *testing.T) {
	echo := &headerEcho{}
	ts := httptest.NewServer(echo)
	defer ts.Close()

	store := credentials.NewStore()
	store.Set("access-1", "refresh-1", time.Now().Add(time.Hour), testUser)
	client := &http.Client{Transport: transport.NewDispatcher(store, nil)}

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/history", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "Bearer access-1", echo.last.Get("Authorization"))
	require.NotEmpty(t, echo.last.Get(transport.RequestIDHeader))
	require.Empty(t, req.Header.Get("Authorization"), "caller's request must not be mutated")
}

func TestDispatcherReadsStoreAtDispatch(t *testing.T) {
	echo := &headerEcho{}
	ts := httptest.NewServer(echo)
	defer ts.Close()

	store := credentials.NewStore()
	store.Set("access-1", "refresh-1", time.Time{}, testUser)
	client := &http.Client{Transport: transport.NewDispatcher(store, nil)}

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	store.SetAccessToken("access-2", time.Time{})
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "Bearer access-2", echo.last.Get("Authorization"))
}

func TestDispatcherAnonymousRemovesAuthorization(t *testing.T) {
	echo := &headerEcho{}
	ts := httptest.NewServer(echo)
	defer ts.Close()

	client := &http.Client{Transport: transport.NewDispatcher(credentials.NewStore(), nil)}

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer stale")
	req.Header.Set(transport.RequestIDHeader, "fixed-id")

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Empty(t, echo.last.Get("Authorization"))
	require.Equal(t, "fixed-id", echo.last.Get(transport.RequestIDHeader))
}
