package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigRead is returned when the configuration file cannot be read
	// or parsed.
	ErrConfigRead = errors.New("config: read failed")
	// ErrConfigValidation is returned for configurations that fail Validate.
	ErrConfigValidation = errors.New("config: validation failed")
)

// envPrefix is the environment variable prefix used by all settings.
const envPrefix = "SLIDESCOPE"

// newViper builds a Viper instance with YAML files, SLIDESCOPE_ env
// overrides and "." mapped to "_" so that "viewer.max_zoom" resolves to
// SLIDESCOPE_VIEWER_MAX_ZOOM.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return v
}

// Load reads the YAML file at configPath, merges SLIDESCOPE_* environment
// overrides, applies defaults and validates the result. An empty path
// loads from the environment alone.
func Load(configPath string) (*Config, error) {
	v := newViper()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrConfigRead, configPath, err)
		}
	}
	return unmarshalAndFinalize(v)
}

// LoadViper finalizes a configuration from an existing viper instance, for
// commands that bind flags into it. Defaults and env handling are added.
func LoadViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return unmarshalAndFinalize(v)
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %w", ErrConfigRead, err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigValidation, err)
	}
	return cfg, nil
}
