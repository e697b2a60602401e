package metric

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/worldsnap/internal/core/domain"
)

// GenerationLister lists the generations of a store.
type GenerationLister interface {
	Generations(ctx context.Context) ([]*domain.Generation, error)
}

// Collector reports the generation inventory of a store at scrape time.
type Collector struct {
	store GenerationLister

	generations *prometheus.Desc
	newest      *prometheus.Desc
	storedBytes *prometheus.Desc
}

// NewCollector creates a collector over store.
func NewCollector(store GenerationLister) *Collector {
	return &Collector{
		store: store,
		generations: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "generations"),
			"Generations in the store by state",
			[]string{"state"}, nil),
		newest: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "newest_generation_timestamp_seconds"),
			"Seal time of the newest complete generation",
			nil, nil),
		storedBytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "generation_bytes_copied"),
			"Bytes physically copied by each generation's run",
			[]string{"generation"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.generations
	ch <- c.newest
	ch <- c.storedBytes
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	gens, err := c.store.Generations(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.generations, err)
		return
	}

	counts := map[domain.GenerationState]int{
		domain.StateComplete:    0,
		domain.StateProvisional: 0,
	}
	var newest time.Time
	for _, g := range gens {
		counts[g.State]++
		if g.IsComplete() {
			if g.SealedAt.After(newest) {
				newest = g.SealedAt
			}
			ch <- prometheus.MustNewConstMetric(c.storedBytes, prometheus.GaugeValue, float64(g.BytesCopied), string(g.ID))
		}
	}
	for state, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.generations, prometheus.GaugeValue, float64(n), string(state))
	}
	if !newest.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.newest, prometheus.GaugeValue, float64(newest.Unix()))
	}
}
