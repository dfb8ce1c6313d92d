// Package config assembles the terminal configuration: defaults, then an
// optional YAML file, then MAWKIB_* environment variables, each layer
// overriding the last.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	Env    string `yaml:"env"`     // "dev" | "prod"
	DBPath string `yaml:"db_path"` // e.g. "./data/mawkib.db"

	// CardKeySecret derives the card cipher and MAC keys. Required in
	// prod; the dev default is for local bring-up only.
	CardKeySecret string `yaml:"card_key_secret"`

	// AdminPINHash is the bcrypt hash of the supervisor PIN.
	AdminPINHash string `yaml:"admin_pin_hash"`

	// Headcount reconciliation.
	SampleWindow     int `yaml:"sample_window"`     // captures per window
	SampleQuorum     int `yaml:"sample_quorum"`     // successful captures required
	HeadcountWindows int `yaml:"headcount_windows"` // windows before aborting

	DoorTimeout      time.Duration `yaml:"door_timeout"`
	DoorPollInterval time.Duration `yaml:"door_poll_interval"`

	// Audit retention.
	AttemptRetentionDays int `yaml:"attempt_retention_days"` // 0 = keep forever
	PruneIntervalHours   int `yaml:"prune_interval_hours"`
}

func defaults() Config {
	return Config{
		HTTPAddr:             ":8080",
		Env:                  "dev",
		DBPath:               "./data/mawkib.db",
		SampleWindow:         3,
		SampleQuorum:         2,
		HeadcountWindows:     3,
		DoorTimeout:          60 * time.Second,
		DoorPollInterval:     500 * time.Millisecond,
		AttemptRetentionDays: 90,
		PruneIntervalHours:   6,
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getenvDefault("MAWKIB_HTTP_ADDR", c.HTTPAddr)
	c.Env = strings.ToLower(getenvDefault("MAWKIB_ENV", c.Env))
	c.DBPath = getenvDefault("MAWKIB_DB_PATH", c.DBPath)
	c.CardKeySecret = getenvDefault("MAWKIB_CARD_KEY_SECRET", c.CardKeySecret)
	c.AdminPINHash = getenvDefault("MAWKIB_ADMIN_PIN_HASH", c.AdminPINHash)

	c.SampleWindow = getenvInt("MAWKIB_SAMPLE_WINDOW", c.SampleWindow)
	c.SampleQuorum = getenvInt("MAWKIB_SAMPLE_QUORUM", c.SampleQuorum)
	c.HeadcountWindows = getenvInt("MAWKIB_HEADCOUNT_WINDOWS", c.HeadcountWindows)

	c.DoorTimeout = getenvDuration("MAWKIB_DOOR_TIMEOUT", c.DoorTimeout)
	c.DoorPollInterval = getenvDuration("MAWKIB_DOOR_POLL_INTERVAL", c.DoorPollInterval)

	c.AttemptRetentionDays = getenvInt("MAWKIB_ATTEMPT_RETENTION_DAYS", c.AttemptRetentionDays)
	c.PruneIntervalHours = getenvInt("MAWKIB_PRUNE_INTERVAL_HOURS", c.PruneIntervalHours)
}

func (c *Config) Validate() error {
	if c.Env != "dev" && c.Env != "prod" {
		return fmt.Errorf("config: env must be dev or prod, got %q", c.Env)
	}
	if c.Env == "prod" {
		if c.CardKeySecret == "" {
			return errors.New("config: card_key_secret is required in prod")
		}
		if c.AdminPINHash == "" {
			return errors.New("config: admin_pin_hash is required in prod")
		}
	}
	if c.SampleWindow < 1 {
		return fmt.Errorf("config: sample_window must be >= 1, got %d", c.SampleWindow)
	}
	if c.SampleQuorum < 1 || c.SampleQuorum > c.SampleWindow {
		return fmt.Errorf("config: sample_quorum must be in [1, sample_window], got %d", c.SampleQuorum)
	}
	if c.HeadcountWindows < 1 {
		return fmt.Errorf("config: headcount_windows must be >= 1, got %d", c.HeadcountWindows)
	}
	if c.DoorTimeout <= 0 || c.DoorPollInterval <= 0 {
		return errors.New("config: door_timeout and door_poll_interval must be positive")
	}
	return nil
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
