// Package output renders command results for the worldsnap CLI.
//
//   - formatter.go: Formatter interface and format selection
//   - table.go: aligned tables for terminal output
//   - json.go, yaml.go: machine-readable output
//   - progress.go, spinner.go: progress on interactive terminals
//
// Result types implement Tabler to control their table layout; other
// values fall back to a FIELD/VALUE listing.
package output
