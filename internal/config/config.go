// Package config parses zerovault's YAML configuration file, following
// the teacher's convention of a plain yaml-tagged struct decoded with
// gopkg.in/yaml.v3 (see cmd/warren's "apply" command).
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zerovault/zerovault/internal/zverrors"
	"github.com/zerovault/zerovault/internal/zvlog"
)

// Config is the top-level shape of a zerovault.yaml file.
type Config struct {
	// Path is the local database file. "" leaves it unset, and the CLI
	// commands then require --db.
	Path string `yaml:"path"`

	// Remote is a storage URL (memory://, file://, s3://) zerovault
	// syncs its changelog against.
	Remote string `yaml:"remote"`

	// Passphrase, if set, wraps Remote in storage.Encrypted.
	Passphrase string `yaml:"passphrase,omitempty"`

	// SyncInterval is how often the sync orchestrator runs
	// automatically, in time.ParseDuration syntax (e.g. "30s"). Empty
	// disables automatic sync; callers still drive it manually via
	// Sync.Sync.
	SyncInterval string `yaml:"sync_interval,omitempty"`

	// MaxBatchBytes overrides format.DefaultMaxBatchBytes when set.
	MaxBatchBytes int64 `yaml:"max_batch_bytes,omitempty"`

	Log LogConfig `yaml:"log"`
}

// LogConfig mirrors zvlog.Config with yaml tags; zvlog.Config itself
// carries an io.Writer field that cannot be expressed in YAML.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ToZvlog converts the YAML-shaped log config into zvlog.Config,
// defaulting Output to os.Stdout.
func (l LogConfig) ToZvlog() zvlog.Config {
	return zvlog.Config{Level: zvlog.Level(l.Level), JSON: l.JSON}
}

// SyncIntervalDuration parses SyncInterval, returning zero if unset.
func (c Config) SyncIntervalDuration() (time.Duration, error) {
	if c.SyncInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.SyncInterval)
	if err != nil {
		return 0, zverrors.New(zverrors.Configuration, "parse sync_interval", err)
	}
	return d, nil
}

// Default returns the configuration zerovault runs with when no file
// is given: no database path, no remote, and info-level logging.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
	}
}

// Load reads and parses a YAML configuration file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, zverrors.New(zverrors.Configuration, "read config", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, zverrors.New(zverrors.Configuration, "parse config", err)
	}
	return cfg, nil
}
