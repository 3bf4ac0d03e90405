package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	c := config.New()

	require.Equal(t, 60*time.Minute, c.GetAccessTokenLifetime())
	require.Equal(t, 5*time.Minute, c.GetRefreshMargin())
	require.False(t, c.GetRotateRefreshTokens())
	require.False(t, c.GetUseTokenExpiry())
	require.Equal(t, 30*time.Second, c.GetRequestTimeout())
	require.Equal(t, []string{"/refresh", "/logout"}, c.GetExemptPaths())
	require.Equal(t, "http://localhost:8001", c.GetBaseURL())
	require.Equal(t, "DEV", c.GetEnv())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REFRESH_MARGIN_MINUTES", "10")
	t.Setenv("ACCESS_TOKEN_LIFETIME_MINUTES", "30")
	t.Setenv("BASE_URL", "https://api.example.com/")
	t.Setenv("EXEMPT_PATHS", "/refresh, /logout ,/auth/revoke")
	t.Setenv("ROTATE_REFRESH_TOKENS", "true")

	c := config.New()
	require.Equal(t, 10*time.Minute, c.GetRefreshMargin())
	require.Equal(t, 30*time.Minute, c.GetAccessTokenLifetime())
	require.Equal(t, "https://api.example.com", c.GetBaseURL())
	require.Equal(t, []string{"/refresh", "/logout", "/auth/revoke"}, c.GetExemptPaths())
	require.True(t, c.GetRotateRefreshTokens())
}

func TestLoadFile(t *testing.T) {
	t.Run("values from file", func(t *testing.T) {
		path := writeFile(t, `
base_url: https://resumes.example.com
refresh_margin_minutes: 0
access_token_lifetime_minutes: 15
request_timeout_seconds: 5
exempt_paths: ["/refresh", "/logout"]
`)
		c, err := config.Load(path)
		require.NoError(t, err)
		require.Equal(t, "https://resumes.example.com", c.GetBaseURL())
		require.Equal(t, time.Duration(0), c.GetRefreshMargin())
		require.Equal(t, 15*time.Minute, c.GetAccessTokenLifetime())
		require.Equal(t, 5*time.Second, c.GetRequestTimeout())
	})

	t.Run("env wins over file", func(t *testing.T) {
		t.Setenv("REFRESH_MARGIN_MINUTES", "2")
		path := writeFile(t, "refresh_margin_minutes: 7\n")
		c, err := config.Load(path)
		require.NoError(t, err)
		require.Equal(t, 2*time.Minute, c.GetRefreshMargin())
	})

	t.Run("invalid log level", func(t *testing.T) {
		_, err := config.LoadFile(writeFile(t, "log_level: loud\n"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "validate config file")
	})

	t.Run("exempt path must be absolute", func(t *testing.T) {
		_, err := config.LoadFile(writeFile(t, "exempt_paths: [refresh]\n"))
		require.Error(t, err)
	})

	t.Run("margin must be below lifetime", func(t *testing.T) {
		_, err := config.LoadFile(writeFile(t, "access_token_lifetime_minutes: 5\nrefresh_margin_minutes: 5\n"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "must be below")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
		require.ErrorIs(t, err, os.ErrNotExist)
		require.Contains(t, err.Error(), "read config file")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := config.LoadFile(writeFile(t, "base_url: [unclosed\n"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "unmarshal config file")
	})

	t.Run("load wraps file errors", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.ErrorIs(t, err, os.ErrNotExist)
		require.Contains(t, err.Error(), "[config.Load]")
	})
}
