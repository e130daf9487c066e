// Package config loads client settings with viper and batch manifests
// from YAML.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/adamwoolhether/fetch/client/reqopt"
)

var ErrInvalidSettings = errors.New("invalid settings")

// Settings configure a client.
type Settings struct {
	// Defaults is the client-level option layer.
	Defaults    reqopt.Options
	Concurrency int
	UserAgent   string
	Throttle    Throttle
}

// Throttle defines the throttler's requests per second and burst
// rate. Both zero disables throttling.
type Throttle struct {
	RPS   int `mapstructure:"rps"`
	Burst int `mapstructure:"burst"`
}

type rawSettings struct {
	Defaults    map[string]any `mapstructure:"defaults"`
	Concurrency int            `mapstructure:"concurrency"`
	UserAgent   string         `mapstructure:"userAgent"`
	Throttle    Throttle       `mapstructure:"throttle"`
}

// Load reads Settings from v. The defaults key holds request options
// in the same untyped form accepted by reqopt.Decode.
func Load(v *viper.Viper) (Settings, error) {
	var raw rawSettings
	if err := v.Unmarshal(&raw); err != nil {
		return Settings{}, fmt.Errorf("unmarshaling settings: %w", err)
	}

	defaults, err := reqopt.Decode(raw.Defaults)
	if err != nil {
		return Settings{}, fmt.Errorf("defaults: %w", err)
	}

	s := Settings{
		Defaults:    defaults,
		Concurrency: raw.Concurrency,
		UserAgent:   raw.UserAgent,
		Throttle:    raw.Throttle,
	}

	if err := s.validate(); err != nil {
		return Settings{}, err
	}

	return s, nil
}

// LoadFile reads Settings from the config file at path. Any top-level
// key can be overridden from the environment with the FETCH_ prefix,
// for example FETCH_CONCURRENCY or FETCH_THROTTLE_RPS.
func LoadFile(path string) (Settings, error) {
	v := New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return Settings{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	return Load(v)
}

// New returns a viper instance bound to the FETCH_ environment prefix.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("FETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only consults keys viper already knows about.
	v.SetDefault("concurrency", 0)
	v.SetDefault("userAgent", "")
	v.SetDefault("throttle.rps", 0)
	v.SetDefault("throttle.burst", 0)

	return v
}

func (s Settings) validate() error {
	if s.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency %d must not be negative", ErrInvalidSettings, s.Concurrency)
	}

	rps, burst := s.Throttle.RPS, s.Throttle.Burst
	if rps < 0 || burst < 0 || (rps == 0) != (burst == 0) {
		return fmt.Errorf("%w: throttle rps[%d] and burst[%d] must both be positive or both zero", ErrInvalidSettings, rps, burst)
	}

	return nil
}
