// Package config loads and persists the pinlock configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/pinlock-app/pinlock/pkg/challenge"
)

// FileName is the name of the configuration file inside the pinlock
// directory.
const FileName = "config.yaml"

// DefaultEmergencyDelay is used when the file does not set one.
const DefaultEmergencyDelay = "24h"

var (
	// ErrUnsupportedVersion indicates a config from a newer release.
	ErrUnsupportedVersion = errors.New("config: unsupported version")
	// ErrInvalidDelay indicates an unparseable emergency delay.
	ErrInvalidDelay = errors.New("config: invalid emergency delay")
)

// Identity is the local stand-in for an authenticated user: a stable random
// id generated on first run, plus an optional email label.
type Identity struct {
	UserID string `yaml:"user_id"`
	Email  string `yaml:"email,omitempty"`
}

// Config is the persisted configuration.
type Config struct {
	Version        int      `yaml:"version"`
	DataDir        string   `yaml:"data_dir"`
	Identity       Identity `yaml:"identity"`
	EmergencyDelay string   `yaml:"emergency_delay"`
	Passages       []string `yaml:"passages,omitempty"`

	delay time.Duration
}

// DefaultDir returns the default pinlock directory (~/.pinlock).
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".pinlock"), nil
}

// Load reads the configuration from dir, creating a default file on first
// run.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := defaultConfig(dir)
		if err := Save(dir, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	if cfg.Version != 1 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, cfg.Version)
	}

	applyDefaults(&cfg, dir)

	cfg.delay, err = time.ParseDuration(cfg.EmergencyDelay)
	if err != nil || cfg.delay <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDelay, cfg.EmergencyDelay)
	}

	return &cfg, nil
}

// Save writes the configuration file with owner-only permissions.
func Save(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("config: failed to create %s: %w", dir, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: failed to marshal: %w", err)
	}

	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: failed to write %s: %w", path, err)
	}
	return nil
}

func defaultConfig(dir string) *Config {
	cfg := &Config{
		Version:        1,
		DataDir:        dir,
		Identity:       Identity{UserID: uuid.NewString()},
		EmergencyDelay: DefaultEmergencyDelay,
	}
	applyDefaults(cfg, dir)
	cfg.delay, _ = time.ParseDuration(cfg.EmergencyDelay)
	return cfg
}

func applyDefaults(cfg *Config, dir string) {
	if cfg.DataDir == "" {
		cfg.DataDir = dir
	}
	if cfg.Identity.UserID == "" {
		cfg.Identity.UserID = uuid.NewString()
	}
	if cfg.EmergencyDelay == "" {
		cfg.EmergencyDelay = DefaultEmergencyDelay
	}
	if len(cfg.Passages) == 0 {
		cfg.Passages = []string{challenge.DefaultPassage}
	}
}

// Delay returns the parsed emergency delay.
func (c *Config) Delay() time.Duration {
	return c.delay
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "pinlock.db")
}

// AuditDir returns the audit log directory.
func (c *Config) AuditDir() string {
	return filepath.Join(c.DataDir, "audit")
}

// AuditKeyPath returns the audit key file location.
func (c *Config) AuditKeyPath() string {
	return filepath.Join(c.DataDir, "audit.key")
}
