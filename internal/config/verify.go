package config

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/yndnr/worldsnap/internal/generation"
	"github.com/yndnr/worldsnap/internal/storage"
	"github.com/yndnr/worldsnap/internal/world"
)

// Verify validates the configuration.
func Verify(cfg *Config) error {
	if err := verifyWorld(&cfg.World); err != nil {
		return err
	}
	if err := verifyStore(&cfg.Store); err != nil {
		return err
	}
	nested, err := world.Nested(cfg.World.Dir, cfg.Store.Dir)
	if err != nil {
		return fmt.Errorf("resolve directories: %w", err)
	}
	if nested {
		return fmt.Errorf("world.dir %s and store.dir %s must not contain each other", cfg.World.Dir, cfg.Store.Dir)
	}
	if err := cfg.IndexConfig().Validate(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if cfg.Retention.Keep < 0 {
		return errors.New("retention.keep must not be negative")
	}
	if cfg.Schedule.Interval <= 0 {
		return errors.New("schedule.interval must be positive")
	}
	return verifyLog(&cfg.Log)
}

func verifyWorld(cfg *WorldSection) error {
	if cfg.Dir == "" {
		return errors.New("world.dir is required")
	}
	for _, p := range cfg.Exclude {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("world.exclude: bad pattern %q", p)
		}
	}
	if _, err := LoadLocation(cfg.Location); err != nil {
		return fmt.Errorf("world.location: %w", err)
	}
	return nil
}

func verifyStore(cfg *StoreSection) error {
	if cfg.Dir == "" {
		return errors.New("store.dir is required")
	}
	if cfg.Workers < 1 {
		return errors.New("store.workers must be at least 1")
	}
	if cfg.CopyRateMBps < 0 {
		return errors.New("store.copy_rate_mbps must not be negative")
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not one of text, json", cfg.Format)
	}
	return nil
}

// LoadLocation maps a world.location value to a time zone.
func LoadLocation(name string) (*time.Location, error) {
	switch name {
	case "", "Local", "local":
		return time.Local, nil
	case "UTC", "utc":
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// Location returns the configured label time zone.
func (c *Config) Location() (*time.Location, error) {
	return LoadLocation(c.World.Location)
}

// IndexDir returns the index directory, defaulting to <store>/.index.
func (c *Config) IndexDir() string {
	if c.Index.Dir != "" {
		return c.Index.Dir
	}
	return generation.DefaultIndexDir(c.Store.Dir)
}

// IndexConfig converts the index section for storage.
func (c *Config) IndexConfig() storage.Config {
	return storage.Config{
		Backend:     c.Index.Backend,
		Dir:         c.IndexDir(),
		GCInterval:  c.Index.GCInterval,
		GCThreshold: c.Index.GCThreshold,
		SyncWrites:  c.Index.SyncWrites,
	}
}

// CopyRate returns the copy bandwidth limit in bytes per second, zero when
// unlimited.
func (c *Config) CopyRate() int64 {
	return int64(c.Store.CopyRateMBps) << 20
}
