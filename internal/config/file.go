package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/exposure-kit/enlifecycle/internal/domain"
)

// FileConfig mirrors Config with TOML-friendly types.
type FileConfig struct {
	StateDir              string                        `toml:"state_dir"`
	Store                 string                        `toml:"store"`
	ServiceURL            string                        `toml:"service_url"`
	HTTPTimeout           string                        `toml:"http_timeout"`
	ConfigDownloadTimeout string                        `toml:"config_download_timeout"`
	RetentionPeriod       string                        `toml:"retention_period"`
	Language              string                        `toml:"language"`
	AppName               string                        `toml:"app_name"`
	AppVersion            string                        `toml:"app_version"`
	BackgroundLaunch      *bool                         `toml:"background_launch"`
	MetricsAddr           string                        `toml:"metrics_addr"`
	LogLevel              string                        `toml:"log_level"`
	LogFormat             string                        `toml:"log_format"`
	Schedules             map[string]FileScheduleConfig `toml:"schedules"`
}

// FileScheduleConfig is one [schedules.<kind>] table. Unset fields keep
// their current value.
type FileScheduleConfig struct {
	Mean         string   `toml:"mean"`
	Width        string   `toml:"width"`
	Distribution string   `toml:"distribution"`
	Jitter       *float64 `toml:"jitter"`
	Requests     *int     `toml:"requests"`
	PayloadBytes *int     `toml:"payload_bytes"`
}

// LoadFileConfig reads and parses the TOML file at path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.enlifecycle/config.toml, or "" when the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".enlifecycle", "config.toml")
	}
	return ""
}

// FileExists reports whether a file exists at p.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return !errors.Is(err, os.ErrNotExist)
}

// ApplyFileConfig applies fc to cfg, skipping values whose flag was set.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("store", fc.Store, &cfg.Store)
	s.setString("service-url", fc.ServiceURL, &cfg.ServiceURL)
	s.setString("language", fc.Language, &cfg.Language)
	s.setString("app-name", fc.AppName, &cfg.AppName)
	s.setString("app-version", fc.AppVersion, &cfg.AppVersion)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)
	s.setBool("background-launch", fc.BackgroundLaunch, &cfg.BackgroundLaunch)

	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("config-download-timeout", fc.ConfigDownloadTimeout, &cfg.ConfigDownloadTimeout); err != nil {
		return err
	}
	if err := s.setDuration("retention", fc.RetentionPeriod, &cfg.RetentionPeriod); err != nil {
		return err
	}

	return applySchedules(cfg, fc.Schedules)
}

func applySchedules(cfg *Config, in map[string]FileScheduleConfig) error {
	if len(in) == 0 {
		return nil
	}
	if cfg.Schedules == nil {
		cfg.Schedules = map[domain.WindowKind]ScheduleConfig{}
	}

	s := newConfigSetter(nil)
	for name, fs := range in {
		kind := domain.WindowKind(name)
		if !knownKind(kind) {
			return fmt.Errorf("%w: unknown schedule %q", domain.ErrInvalidConfig, name)
		}

		sc := cfg.Schedules[kind]
		if err := s.setDuration("schedules."+name+".mean", fs.Mean, &sc.Mean); err != nil {
			return err
		}
		if err := s.setDuration("schedules."+name+".width", fs.Width, &sc.Width); err != nil {
			return err
		}
		s.setString("", fs.Distribution, &sc.Distribution)
		if fs.Jitter != nil {
			sc.Jitter = *fs.Jitter
		}
		if fs.Requests != nil {
			sc.Requests = *fs.Requests
		}
		if fs.PayloadBytes != nil {
			sc.PayloadBytes = *fs.PayloadBytes
		}
		cfg.Schedules[kind] = sc
	}
	return nil
}

// LoadSchedules reads only the schedule tables of the file at path, layered
// over base. The watcher uses it to reload schedules at runtime.
func LoadSchedules(path string, base map[domain.WindowKind]ScheduleConfig) (map[domain.WindowKind]ScheduleConfig, error) {
	fc, err := LoadFileConfig(path)
	if err != nil {
		return nil, err
	}
	cfg := Config{Schedules: make(map[domain.WindowKind]ScheduleConfig, len(base))}
	for k, v := range base {
		cfg.Schedules[k] = v
	}
	if err := applySchedules(&cfg, fc.Schedules); err != nil {
		return nil, err
	}
	return cfg.Schedules, nil
}
