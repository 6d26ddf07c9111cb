package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/roasbeef/convostore/internal/build"
	"github.com/roasbeef/convostore/internal/db"
	"github.com/roasbeef/convostore/internal/interaction"
	"github.com/roasbeef/convostore/internal/ledger"
)

const (
	// EnvPrefix is the prefix of environment overrides. Nested keys are
	// separated by a double underscore, so CONVOSTORE_LOG__LEVEL sets
	// log.level.
	EnvPrefix = "CONVOSTORE_"

	// DefaultConfigFilename is looked up in the data directory when no
	// config file is given.
	DefaultConfigFilename = "convostore.toml"

	// DefaultMetricsAddr is where `serve` listens by default.
	DefaultMetricsAddr = "127.0.0.1:9465"
)

// Config is the convostore configuration.
type Config struct {
	// DBPath is the SQLite database file.
	DBPath string `koanf:"db_path"`

	// BusyTimeout is how long SQLite waits on a locked database.
	BusyTimeout time.Duration `koanf:"busy_timeout"`

	Log         LogConfig         `koanf:"log"`
	Placeholder PlaceholderConfig `koanf:"placeholder"`
	Metrics     MetricsConfig     `koanf:"metrics"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Dir is where the rotating log file is written. Empty disables the
	// log file.
	Dir string `koanf:"dir"`

	// Level is the btclog level name.
	Level string `koanf:"level"`

	// MaxFiles is the number of rotated files kept.
	MaxFiles int `koanf:"max_files"`

	// MaxFileSize is the size in MB at which the file rotates.
	MaxFileSize int `koanf:"max_file_size"`
}

// PlaceholderConfig configures placeholder handling.
type PlaceholderConfig struct {
	// TTL is how long a placeholder may be replaced.
	TTL time.Duration `koanf:"ttl"`

	// Step is how many milliseconds an expired placeholder moves back.
	Step uint64 `koanf:"step"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	// Addr is the listen address of the /metrics endpoint.
	Addr string `koanf:"addr"`
}

// DataDir returns the default data directory, ~/.convostore.
func DataDir() (string, error) {
	dbPath, err := db.DefaultDBPath()
	if err != nil {
		return "", err
	}

	return filepath.Dir(dbPath), nil
}

func defaults() (map[string]any, error) {
	dataDir, err := DataDir()
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"db_path":           filepath.Join(dataDir, db.DefaultDBFileName),
		"busy_timeout":      db.DefaultBusyTimeout.String(),
		"log.dir":           filepath.Join(dataDir, "logs"),
		"log.level":         "info",
		"log.max_files":     build.DefaultMaxLogFiles,
		"log.max_file_size": build.DefaultMaxLogFileSize,
		"placeholder.ttl":   ledger.DefaultPlaceholderTTL.String(),
		"placeholder.step":  interaction.DefaultPlaceholderDecrement,
		"metrics.addr":      DefaultMetricsAddr,
	}, nil
}

// Load builds the configuration from the defaults, then the TOML file at
// path, then CONVOSTORE_ environment variables, each overriding the last.
// With an empty path the default file in the data directory is read if it
// exists.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	base, err := defaults()
	if err != nil {
		return nil, err
	}
	if err := k.Load(confmap.Provider(base, "."), nil); err != nil {
		return nil, fmt.Errorf("unable to load defaults: %w", err)
	}

	if path == "" {
		dataDir, err := DataDir()
		if err != nil {
			return nil, err
		}

		candidate := filepath.Join(dataDir, DefaultConfigFilename)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}
	if path != "" {
		err := k.Load(file.Provider(path), toml.Parser())
		if err != nil {
			return nil, fmt.Errorf("unable to load config %s: %w",
				path, err)
		}
	}

	err = k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if _, ok := btclog.LevelFromString(c.Log.Level); !ok {
		errs = append(errs, fmt.Errorf("unknown log level %q",
			c.Log.Level))
	}
	if c.Log.MaxFileSize <= 0 {
		errs = append(errs, errors.New("log.max_file_size must be "+
			"positive"))
	}
	if c.Placeholder.TTL <= 0 {
		errs = append(errs, errors.New("placeholder.ttl must be "+
			"positive"))
	}
	if c.Placeholder.Step == 0 {
		errs = append(errs, errors.New("placeholder.step must be "+
			"positive"))
	}

	return errors.Join(errs...)
}

// LogRotator returns the log file settings, nil when file logging is off.
func (c *Config) LogRotator() *build.LogRotatorConfig {
	if c.Log.Dir == "" {
		return nil
	}

	return &build.LogRotatorConfig{
		LogDir:         c.Log.Dir,
		MaxLogFiles:    c.Log.MaxFiles,
		MaxLogFileSize: c.Log.MaxFileSize,
		Filename:       build.DefaultLogFilename,
	}
}
