// Package config loads orchestrator settings from defaults, a TOML file,
// ENLIFECYCLE_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/exposure-kit/enlifecycle/internal/app"
	"github.com/exposure-kit/enlifecycle/internal/domain"
)

// DefaultServiceURL is the backend used when none is configured.
const DefaultServiceURL = "https://svc.exposure-kit.org"

// Store backends.
const (
	StoreJSON   = "json"
	StoreSQLite = "sqlite"
)

// ScheduleConfig parameterizes the opportunity windows of one kind.
type ScheduleConfig struct {
	Mean         time.Duration
	Width        time.Duration
	Distribution string
	Jitter       float64
	Requests     int
	PayloadBytes int
}

// Config holds the orchestrator settings.
type Config struct {
	StateDir string
	Store    string

	ServiceURL  string
	HTTPTimeout time.Duration

	ConfigDownloadTimeout time.Duration
	RetentionPeriod       time.Duration

	Language   string
	AppName    string
	AppVersion string

	BackgroundLaunch bool
	MetricsAddr      string

	LogLevel  string
	LogFormat string

	Schedules map[domain.WindowKind]ScheduleConfig
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	schedules := make(map[domain.WindowKind]ScheduleConfig, len(domain.WindowKinds))
	for kind, s := range app.DefaultSchedules() {
		schedules[kind] = ScheduleConfig{
			Mean:         s.Mean,
			Width:        s.Width,
			Distribution: s.Distribution.String(),
			Jitter:       s.Jitter,
			Requests:     s.Requests,
			PayloadBytes: s.PayloadBytes,
		}
	}

	return Config{
		StateDir:              "", // Derived from the home directory during Validate
		Store:                 StoreJSON,
		ServiceURL:            DefaultServiceURL,
		HTTPTimeout:           15 * time.Second,
		ConfigDownloadTimeout: app.DefaultConfigDownloadTimeout,
		RetentionPeriod:       app.DefaultRetentionPeriod,
		Language:              "en",
		AppName:               "enlifecycle",
		LogLevel:              "info",
		LogFormat:             "console",
		Schedules:             schedules,
	}
}

// Validate checks the configuration and fills derived defaults.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("%w: state-dir is required: %v", domain.ErrInvalidConfig, err)
		}
		c.StateDir = filepath.Join(home, ".enlifecycle", "state")
	}

	switch c.Store {
	case "":
		c.Store = StoreJSON
	case StoreJSON, StoreSQLite:
	default:
		return fmt.Errorf("%w: unknown store %q", domain.ErrInvalidConfig, c.Store)
	}

	if c.ServiceURL == "" {
		c.ServiceURL = DefaultServiceURL
	}
	c.ServiceURL = strings.TrimRight(c.ServiceURL, "/")

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("%w: http timeout must be positive", domain.ErrInvalidConfig)
	}
	if c.ConfigDownloadTimeout <= 0 {
		return fmt.Errorf("%w: config download timeout must be positive", domain.ErrInvalidConfig)
	}
	if c.RetentionPeriod <= 0 {
		return fmt.Errorf("%w: retention period must be positive", domain.ErrInvalidConfig)
	}

	if _, err := c.AppSchedules(); err != nil {
		return err
	}
	return nil
}

// AppSchedules converts the configured schedules for the scheduler.
func (c *Config) AppSchedules() (map[domain.WindowKind]app.Schedule, error) {
	return convertSchedules(c.Schedules)
}

func convertSchedules(in map[domain.WindowKind]ScheduleConfig) (map[domain.WindowKind]app.Schedule, error) {
	out := make(map[domain.WindowKind]app.Schedule, len(in))
	for kind, sc := range in {
		if !knownKind(kind) {
			return nil, fmt.Errorf("%w: unknown schedule %q", domain.ErrInvalidConfig, kind)
		}
		dist, err := app.ParseDistribution(sc.Distribution)
		if err != nil {
			return nil, fmt.Errorf("%w: schedule %s: %v", domain.ErrInvalidConfig, kind, err)
		}
		s := app.Schedule{
			Mean:         sc.Mean,
			Width:        sc.Width,
			Distribution: dist,
			Jitter:       sc.Jitter,
			Requests:     sc.Requests,
			PayloadBytes: sc.PayloadBytes,
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("%w: schedule %s: %v", domain.ErrInvalidConfig, kind, err)
		}
		out[kind] = s
	}
	return out, nil
}

func knownKind(kind domain.WindowKind) bool {
	for _, k := range domain.WindowKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// configSetter applies values unless the matching flag was set explicitly.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}

func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = f
	return nil
}
