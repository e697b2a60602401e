package metric

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/worldsnap/internal/core/domain"
)

const namespace = "worldsnap"

// Result labels for run metrics.
const (
	ResultSuccess  = "success"
	ResultUpToDate = "up_to_date"
	ResultFailure  = "failure"
)

// Registry holds all application metrics. A nil *Registry is valid and
// records nothing.
type Registry struct {
	registry *prometheus.Registry

	BackupRuns      *prometheus.CounterVec
	BackupDuration  *prometheus.HistogramVec
	FilesCopied     prometheus.Counter
	FilesReferenced prometheus.Counter
	FallbackCopies  prometheus.Counter
	BytesCopied     prometheus.Counter
	Compactions     prometheus.Counter
	FilesRestored   prometheus.Counter
}

// NewRegistry creates a registry with every worldsnap metric registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		BackupRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_runs_total",
			Help:      "Backup runs by mode and result",
		}, []string{"mode", "result"}),
		BackupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Wall time of backup runs",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"mode"}),
		FilesCopied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_copied_total",
			Help:      "Files physically copied into the store",
		}),
		FilesReferenced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_referenced_total",
			Help:      "Unchanged files recorded as references to earlier generations",
		}),
		FallbackCopies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_copies_total",
			Help:      "Unchanged files copied because their reference could not be resolved",
		}),
		BytesCopied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_copied_total",
			Help:      "Bytes written into the store by backups",
		}),
		Compactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compactions_total",
			Help:      "Generations removed by the compactor",
		}),
		FilesRestored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_restored_total",
			Help:      "Files written into the world by restores",
		}),
	}

	r.registry.MustRegister(
		r.BackupRuns,
		r.BackupDuration,
		r.FilesCopied,
		r.FilesReferenced,
		r.FallbackCopies,
		r.BytesCopied,
		r.Compactions,
		r.FilesRestored,
	)
	return r
}

// Registerer exposes the underlying registry for additional collectors.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

// Gatherer exposes the underlying registry for reading.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// ObserveBackup records one backup run. gen may be nil for failed or
// up-to-date runs.
func (r *Registry) ObserveBackup(mode domain.BackupMode, result string, elapsed time.Duration, gen *domain.Generation) {
	if r == nil {
		return
	}
	r.BackupRuns.WithLabelValues(string(mode), result).Inc()
	if result == ResultUpToDate {
		return
	}
	r.BackupDuration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
	if gen == nil {
		return
	}
	r.FilesCopied.Add(float64(gen.Copied))
	r.FilesReferenced.Add(float64(gen.Referenced))
	r.FallbackCopies.Add(float64(gen.Fallbacks))
	r.BytesCopied.Add(float64(gen.BytesCopied))
}

// ObserveCompaction records one removed generation.
func (r *Registry) ObserveCompaction() {
	if r == nil {
		return
	}
	r.Compactions.Inc()
}

// ObserveRestore records restored files.
func (r *Registry) ObserveRestore(files int) {
	if r == nil {
		return
	}
	r.FilesRestored.Add(float64(files))
}

// WriteTextfile writes every metric to path in the text exposition format.
// The file is replaced atomically.
func (r *Registry) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
