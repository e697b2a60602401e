package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/yndnr/worldsnap/internal/storage"
)

// Default configuration values.
const (
	DefaultWorldDir = "world"
	DefaultStoreDir = "backups"
	DefaultLocation = "UTC"
	DefaultWorkers  = 4

	DefaultGCInterval  = 10 * time.Minute
	DefaultGCThreshold = 0.5

	DefaultScheduleInterval = 15 * time.Minute

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		World: WorldSection{
			Dir:      DefaultWorldDir,
			Location: DefaultLocation,
		},
		Store: StoreSection{
			Dir:     DefaultStoreDir,
			Workers: DefaultWorkers,
		},
		Index: IndexSection{
			Backend:     storage.BackendBadger,
			GCInterval:  DefaultGCInterval,
			GCThreshold: DefaultGCThreshold,
		},
		Schedule: ScheduleSection{
			Interval: DefaultScheduleInterval,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// DefaultPath returns ~/.worldsnap/config.yaml, used when no --config flag
// is given and the file exists.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".worldsnap", "config.yaml")
}
