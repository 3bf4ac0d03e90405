package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config interface {
	EnvConfig
	SessionConfig
	TransportConfig
}

type EnvConfig interface {
	GetAppName() string
	GetBaseURL() string
	GetEnv() string
	GetLogLevel() string
	GetListenAddr() string
}

type mainConfig struct {
	EnvVars
	Session
	Transport
}

// New returns a Config backed by environment variables and built-in defaults.
func New() Config {
	return mainConfig{}
}

// Load reads a .env file (if present) into the environment and overlays the
// YAML file at path (if path is not empty). Environment variables take
// precedence over file values.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "[config.Load] failed loading .env")
	}
	if path == "" {
		return New(), nil
	}
	file, err := LoadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "[config.Load]")
	}
	return mainConfig{
		EnvVars:   EnvVars{file: file},
		Session:   Session{file: file},
		Transport: Transport{file: file},
	}, nil
}
