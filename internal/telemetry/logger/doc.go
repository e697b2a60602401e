// Package logger configures log/slog for worldsnap.
//
//   - logger.go: handler construction and the dynamic level
//   - context.go: run id and logger propagation through context
//   - attrs.go: rendering of coded domain errors
//
// Output is text by default and JSON when configured. The level can be
// changed at runtime, which the daemon does on configuration reload.
package logger
