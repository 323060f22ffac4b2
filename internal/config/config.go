// Package config loads projector settings from the environment.
//
// Library packages take functional options; only the command line reads
// the environment, through Load.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every variable name.
const Prefix = "PROJECTOR_"

// Config holds every environment-driven setting.
type Config struct {
	RestoreDebounce  time.Duration `env:"RESTORE_DEBOUNCE" envDefault:"500ms"`
	RestoreRetries   int           `env:"RESTORE_RETRIES" envDefault:"3"`
	AnchorTimeout    time.Duration `env:"ANCHOR_TIMEOUT" envDefault:"10s"`
	ClickerAppliance string        `env:"CLICKER_APPLIANCE" envDefault:"clicker"`

	// DB is the recording database used when no --db flag is given.
	DB       string `env:"DB"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	PreviewTimeout     time.Duration `env:"PREVIEW_TIMEOUT" envDefault:"5s"`
	PreviewConcurrency int           `env:"PREVIEW_CONCURRENCY" envDefault:"4"`

	Telemetry Telemetry
}

// Telemetry configures trace export. Export is off unless an endpoint is
// set and it is not explicitly disabled.
type Telemetry struct {
	Enabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`
	Endpoint string `env:"OTEL_ENDPOINT"`
}

// Active reports whether spans should be exported.
func (t Telemetry) Active() bool {
	return t.Enabled && t.Endpoint != ""
}

// Load reads the configuration from PROJECTOR_* variables.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration with every variable unset.
func Default() Config {
	var cfg Config
	// Defaults always parse.
	_ = env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix, Environment: map[string]string{}})
	return cfg
}

// ParseEnv fills target from PROJECTOR_* variables.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: Prefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	if c.RestoreDebounce < 0 {
		return fmt.Errorf("%sRESTORE_DEBOUNCE must not be negative", Prefix)
	}
	if c.RestoreRetries < 0 {
		return fmt.Errorf("%sRESTORE_RETRIES must not be negative", Prefix)
	}
	if c.AnchorTimeout <= 0 {
		return fmt.Errorf("%sANCHOR_TIMEOUT must be positive", Prefix)
	}
	if c.PreviewConcurrency < 1 {
		return fmt.Errorf("%sPREVIEW_CONCURRENCY must be at least 1", Prefix)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the configured log level. Validate has already accepted it.
func (c Config) Level() slog.Level {
	lvl, _ := ParseLevel(c.LogLevel)
	return lvl
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%sLOG_LEVEL: unknown level %q", Prefix, s)
	}
}
