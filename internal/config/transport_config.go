package config

import (
	"strings"
	"time"
)

const (
	requestTimeoutVar = "REQUEST_TIMEOUT_SECONDS"
	exemptPathsVar    = "EXEMPT_PATHS"
)

type TransportConfig interface {
	GetRequestTimeout() time.Duration
	GetExemptPaths() []string
}

type Transport struct {
	file *File
}

var _ TransportConfig = Transport{}

func (t Transport) GetRequestTimeout() time.Duration {
	def := 30
	if t.file != nil && t.file.RequestTimeoutSeconds > 0 {
		def = t.file.RequestTimeoutSeconds
	}
	return time.Duration(GetEnvInt(requestTimeoutVar, def)) * time.Second
}

// GetExemptPaths lists the endpoint paths whose 401 responses never trigger a
// refresh. Refreshing through one of them would recurse.
func (t Transport) GetExemptPaths() []string {
	def := []string{"/refresh", "/logout"}
	if t.file != nil && len(t.file.ExemptPaths) > 0 {
		def = t.file.ExemptPaths
	}
	value := GetEnv(exemptPathsVar, "")
	if value == "" {
		return def
	}
	var paths []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}
