package config

import "time"

// Config is the root configuration.
type Config struct {
	World     WorldSection     `koanf:"world" yaml:"world" json:"world"`
	Store     StoreSection     `koanf:"store" yaml:"store" json:"store"`
	Index     IndexSection     `koanf:"index" yaml:"index" json:"index"`
	Retention RetentionSection `koanf:"retention" yaml:"retention" json:"retention"`
	Schedule  ScheduleSection  `koanf:"schedule" yaml:"schedule" json:"schedule"`
	Log       LogSection       `koanf:"log" yaml:"log" json:"log"`
	Metrics   MetricsSection   `koanf:"metrics" yaml:"metrics" json:"metrics"`
}

// WorldSection describes the tree being backed up.
type WorldSection struct {
	// Dir is the world root.
	Dir string `koanf:"dir" yaml:"dir" json:"dir"`

	// Exclude lists path.Match patterns, matched against slash-separated
	// relative paths and their base names.
	Exclude []string `koanf:"exclude" yaml:"exclude" json:"exclude"`

	// Location is the time zone generation labels are written in.
	// "Local" and "UTC" are accepted besides IANA names. Zones with a
	// daylight saving fall-back repeat an hour of labels, and labels older
	// than the newest generation are rejected, so the default is UTC.
	Location string `koanf:"location" yaml:"location" json:"location"`
}

// StoreSection configures the generation store.
type StoreSection struct {
	// Dir is the store root holding one directory per generation.
	Dir string `koanf:"dir" yaml:"dir" json:"dir"`

	// Workers is the size of the classify/copy worker pool.
	Workers int `koanf:"workers" yaml:"workers" json:"workers"`

	// CopyRateMBps caps copy bandwidth in MiB/s. Zero means unlimited.
	CopyRateMBps int `koanf:"copy_rate_mbps" yaml:"copy_rate_mbps" json:"copy_rate_mbps"`
}

// IndexSection configures the reference index.
type IndexSection struct {
	// Backend is "badger", "sqlite" or "file".
	Backend string `koanf:"backend" yaml:"backend" json:"backend"`

	// Dir overrides the index directory. Empty means <store>/.index.
	Dir string `koanf:"dir" yaml:"dir" json:"dir"`

	GCInterval  time.Duration `koanf:"gc_interval" yaml:"gc_interval" json:"gc_interval"`
	GCThreshold float64       `koanf:"gc_threshold" yaml:"gc_threshold" json:"gc_threshold"`
	SyncWrites  bool          `koanf:"sync_writes" yaml:"sync_writes" json:"sync_writes"`
}

// RetentionSection configures pruning.
type RetentionSection struct {
	// Keep is the number of complete generations the daemon keeps after
	// each run. Zero disables pruning.
	Keep int `koanf:"keep" yaml:"keep" json:"keep"`
}

// ScheduleSection configures the daemon.
type ScheduleSection struct {
	Interval time.Duration `koanf:"interval" yaml:"interval" json:"interval"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" yaml:"level" json:"level"`
	Format string `koanf:"format" yaml:"format" json:"format"`
}

// MetricsSection configures metrics export.
type MetricsSection struct {
	// Textfile is a node_exporter textfile collector path. Empty disables
	// export.
	Textfile string `koanf:"textfile" yaml:"textfile" json:"textfile"`
}
