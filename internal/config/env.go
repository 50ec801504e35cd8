package config

import (
	"os"
	"strings"

	"github.com/exposure-kit/enlifecycle/internal/domain"
)

// EnvPrefix prefixes every environment variable read by ApplyEnvConfig.
const EnvPrefix = "ENLIFECYCLE_"

// ApplyEnvConfig applies ENLIFECYCLE_* variables to cfg, skipping values
// whose flag was set. Schedule variables are named
// ENLIFECYCLE_SCHEDULE_<KIND>_<FIELD>, e.g. ENLIFECYCLE_SCHEDULE_INGESTION_DUMMY_MEAN.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("state-dir", os.Getenv(EnvPrefix+"STATE_DIR"), &cfg.StateDir)
	s.setString("store", os.Getenv(EnvPrefix+"STORE"), &cfg.Store)
	s.setString("service-url", os.Getenv(EnvPrefix+"SERVICE_URL"), &cfg.ServiceURL)
	s.setString("language", os.Getenv(EnvPrefix+"LANGUAGE"), &cfg.Language)
	s.setString("app-name", os.Getenv(EnvPrefix+"APP_NAME"), &cfg.AppName)
	s.setString("app-version", os.Getenv(EnvPrefix+"APP_VERSION"), &cfg.AppVersion)
	s.setString("metrics-addr", os.Getenv(EnvPrefix+"METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("log-level", os.Getenv(EnvPrefix+"LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", os.Getenv(EnvPrefix+"LOG_FORMAT"), &cfg.LogFormat)
	s.setBoolFromString("background-launch", os.Getenv(EnvPrefix+"BACKGROUND_LAUNCH"), &cfg.BackgroundLaunch)

	if err := s.setDuration("timeout", os.Getenv(EnvPrefix+"HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("config-download-timeout", os.Getenv(EnvPrefix+"CONFIG_DOWNLOAD_TIMEOUT"), &cfg.ConfigDownloadTimeout); err != nil {
		return err
	}
	if err := s.setDuration("retention", os.Getenv(EnvPrefix+"RETENTION_PERIOD"), &cfg.RetentionPeriod); err != nil {
		return err
	}

	for _, kind := range domain.WindowKinds {
		prefix := EnvPrefix + "SCHEDULE_" + strings.ToUpper(strings.ReplaceAll(string(kind), "-", "_")) + "_"
		sc, ok := cfg.Schedules[kind]
		before := sc

		if err := s.setDuration("", os.Getenv(prefix+"MEAN"), &sc.Mean); err != nil {
			return err
		}
		if err := s.setDuration("", os.Getenv(prefix+"WIDTH"), &sc.Width); err != nil {
			return err
		}
		s.setString("", os.Getenv(prefix+"DISTRIBUTION"), &sc.Distribution)
		if err := s.setFloatFromString("", os.Getenv(prefix+"JITTER"), &sc.Jitter); err != nil {
			return err
		}

		if ok || sc != before {
			if cfg.Schedules == nil {
				cfg.Schedules = map[domain.WindowKind]ScheduleConfig{}
			}
			cfg.Schedules[kind] = sc
		}
	}
	return nil
}
