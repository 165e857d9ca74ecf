package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"sparkify/pkg/errors"
)

// Targets the pipeline can run against.
const (
	TargetRedshift = "redshift"
	TargetSQLite   = "sqlite"
)

// Settings are the runtime knobs that live outside dwh.cfg: flags, SPARKIFY_*
// environment variables and the optional sparkify.yaml file.
type Settings struct {
	ConfigFile       string
	Target           string
	SQLitePath       string
	StatementTimeout time.Duration
	UnmatchedPolicy  string
	Region           string
	Pushgateway      string
	LogLevel         string
	LogFormat        string
	Atomic           bool
}

// SetDefaults registers the default for every settings key on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("config", DefaultConfigFile)
	v.SetDefault("target", TargetRedshift)
	v.SetDefault("sqlite.path", "sparkify.db")
	v.SetDefault("warehouse.statement_timeout", time.Duration(0))
	v.SetDefault("warehouse.atomic", false)
	v.SetDefault("policy.unmatched", "exclude")
	v.SetDefault("s3.region", "")
	v.SetDefault("metrics.pushgateway", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadSettings reads and validates Settings from v
func LoadSettings(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		ConfigFile:       v.GetString("config"),
		Target:           v.GetString("target"),
		SQLitePath:       v.GetString("sqlite.path"),
		StatementTimeout: v.GetDuration("warehouse.statement_timeout"),
		Atomic:           v.GetBool("warehouse.atomic"),
		UnmatchedPolicy:  v.GetString("policy.unmatched"),
		Region:           v.GetString("s3.region"),
		Pushgateway:      v.GetString("metrics.pushgateway"),
		LogLevel:         v.GetString("log.level"),
		LogFormat:        v.GetString("log.format"),
	}

	switch s.Target {
	case TargetRedshift, TargetSQLite:
	default:
		return nil, errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf("Unknown target %q", s.Target)).
			WithContext("key", "target").
			WithSuggestions("Use --target redshift or --target sqlite")
	}

	switch s.UnmatchedPolicy {
	case "exclude", "keep":
	default:
		return nil, errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf("Unknown unmatched songplay policy %q", s.UnmatchedPolicy)).
			WithContext("key", "policy.unmatched").
			WithSuggestions("Use exclude to drop unmatched plays or keep to store them with NULL song and artist")
	}

	if s.StatementTimeout < 0 {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "Statement timeout must not be negative").
			WithContext("key", "warehouse.statement_timeout")
	}

	if s.Target == TargetSQLite && s.SQLitePath == "" {
		return nil, errors.ConfigError("settings", "sqlite.path")
	}

	return s, nil
}
