package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"sparkify/pkg/errors"
)

// Section names of the warehouse configuration document.
const (
	SectionCluster = "CLUSTER"
	SectionIAMRole = "IAM_ROLE"
	SectionS3      = "S3"
)

// DefaultConfigFile is read when neither --config nor SPARKIFY_CONFIG is set.
const DefaultConfigFile = "dwh.cfg"

// Config is the parsed warehouse configuration. It is loaded once at startup
// and passed to everything that needs it.
type Config struct {
	Cluster Cluster
	IAMRole IAMRole
	S3      S3
}

// Cluster holds the connection parameters of the warehouse cluster
type Cluster struct {
	Host     string
	DBName   string
	User     string
	Password string
	Port     int
}

// IAMRole identifies the role the warehouse assumes to read the bucket
type IAMRole struct {
	ARN string
}

// S3 holds the bucket locations of the raw data
type S3 struct {
	LogData     string
	LogJSONPath string
	SongData    string
}

// Load parses the section-structured configuration file at path. Every key is
// required; nothing is defaulted.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeConfigNotFound, fmt.Sprintf("Configuration file %s not found", path)).
				WithContext("path", path).
				WithSuggestions("Pass --config or set SPARKIFY_CONFIG to the dwh.cfg location")
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to stat configuration file").
			WithContext("path", path)
	}

	file, err := ini.LoadSources(ini.LoadOptions{InsensitiveKeys: true, IgnoreInlineComment: true}, path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to parse configuration file").
			WithContext("path", path)
	}

	r := &reader{file: file}
	cfg := &Config{
		Cluster: Cluster{
			Host:     r.get(SectionCluster, "HOST"),
			DBName:   r.get(SectionCluster, "DB_NAME"),
			User:     r.get(SectionCluster, "DB_USER"),
			Password: r.get(SectionCluster, "DB_PASSWORD"),
		},
		IAMRole: IAMRole{
			ARN: r.get(SectionIAMRole, "ARN"),
		},
		S3: S3{
			LogData:     r.get(SectionS3, "LOG_DATA"),
			LogJSONPath: r.get(SectionS3, "LOG_JSONPATH"),
			SongData:    r.get(SectionS3, "SONG_DATA"),
		},
	}
	port := r.get(SectionCluster, "DB_PORT")
	if r.err != nil {
		return nil, r.err
	}

	cfg.Cluster.Port, err = strconv.Atoi(port)
	if err != nil || cfg.Cluster.Port <= 0 || cfg.Cluster.Port > 65535 {
		return nil, errors.ConfigInvalidError(SectionCluster, "DB_PORT", fmt.Sprintf("%q is not a TCP port", port))
	}

	cfg.Cluster.Password, err = resolveSecret(cfg.Cluster.Password)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// DSN renders the Postgres-protocol connection string for the cluster
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=require",
		dsnValue(c.Cluster.Host),
		c.Cluster.Port,
		dsnValue(c.Cluster.DBName),
		dsnValue(c.Cluster.User),
		dsnValue(c.Cluster.Password),
	)
}

// reader collects the first lookup failure so Load can report it with the
// section and key that were missing.
type reader struct {
	file *ini.File
	err  error
}

func (r *reader) get(section, key string) string {
	if r.err != nil {
		return ""
	}
	sec, err := r.file.GetSection(section)
	if err != nil {
		r.err = errors.ConfigError(section, "")
		return ""
	}
	if !sec.HasKey(key) {
		r.err = errors.ConfigError(section, key)
		return ""
	}
	value := unquote(sec.Key(key).String())
	if value == "" {
		r.err = errors.ConfigError(section, key)
		return ""
	}
	return value
}

func unquote(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 {
		first, last := v[0], v[len(v)-1]
		if (first == '\'' || first == '"') && first == last {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// dsnValue quotes a keyword/value connection string value when it contains
// characters the parser would split on.
func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " '\\") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
