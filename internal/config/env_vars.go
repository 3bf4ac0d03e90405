package config

import (
	"os"
	"strconv"
	"strings"
)

const (
	appNameVar    = "APP_NAME"
	baseURLVar    = "BASE_URL"
	logLevelVar   = "LOG_LEVEL"
	listenAddrVar = "LISTEN_ADDR"
)

type EnvVars struct {
	file *File
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Go Auth Session")
}

// GetBaseURL returns the base URL of the resource server (e.g., "https://api.example.com").
// All session endpoints (/login, /refresh, ...) are resolved against it.
func (e EnvVars) GetBaseURL() string {
	def := "http://localhost:8001"
	if e.file != nil && e.file.BaseURL != "" {
		def = e.file.BaseURL
	}
	return strings.TrimRight(GetEnv(baseURLVar, def), "/")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func (e EnvVars) GetLogLevel() string {
	def := "info"
	if e.file != nil && e.file.LogLevel != "" {
		def = e.file.LogLevel
	}
	return GetEnv(logLevelVar, def)
}

// GetListenAddr is the address the fake backend listens on.
func (e EnvVars) GetListenAddr() string {
	return GetEnv(listenAddrVar, ":8001")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvInt returns the integer value of envVar, or defaultValue when unset or unparsable.
func GetEnvInt(envVar string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return value
}

// GetEnvBool returns the boolean value of envVar, or defaultValue when unset or unparsable.
func GetEnvBool(envVar string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return value
}
