// Package metric provides Prometheus metrics for worldsnap.
//
// worldsnap runs as a one-shot CLI or a scheduler daemon without a scrape
// endpoint, so metrics are written in the text exposition format to a file
// picked up by node_exporter's textfile collector.
//
//   - prometheus.go: registry, run metrics and textfile output
//   - collector.go: generation inventory collector
package metric
