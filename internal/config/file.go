package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// File is the on-disk YAML representation of the configuration.
type File struct {
	BaseURL                    string   `yaml:"base_url" validate:"omitempty,url"`
	LogLevel                   string   `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	AccessTokenLifetimeMinutes int      `yaml:"access_token_lifetime_minutes" validate:"gte=0"`
	RefreshMarginMinutes       *int     `yaml:"refresh_margin_minutes" validate:"omitempty,gte=0"`
	RotateRefreshTokens        bool     `yaml:"rotate_refresh_tokens"`
	UseTokenExpiry             bool     `yaml:"use_token_expiry"`
	RequestTimeoutSeconds      int      `yaml:"request_timeout_seconds" validate:"gte=0"`
	ExemptPaths                []string `yaml:"exempt_paths" validate:"dive,startswith=/"`
}

func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "unmarshal config file")
	}

	if err := validator.New().Struct(file); err != nil {
		return nil, errors.Wrap(err, "validate config file")
	}

	if file.RefreshMarginMinutes != nil && file.AccessTokenLifetimeMinutes > 0 &&
		*file.RefreshMarginMinutes >= file.AccessTokenLifetimeMinutes {
		return nil, errors.Errorf("validate config file: refresh_margin_minutes (%d) must be below access_token_lifetime_minutes (%d)",
			*file.RefreshMarginMinutes, file.AccessTokenLifetimeMinutes)
	}

	return &file, nil
}
