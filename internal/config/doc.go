// Package config defines the worldsnap configuration.
//
//   - spec.go: Config struct and section types
//   - default.go: default values
//   - verify.go: validation and derived settings
//
// Values are layered by internal/infra/confloader: defaults, then the YAML
// file, then WORLDSNAP_* environment variables, then command-line flags.
package config
