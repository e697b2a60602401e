// Package confloader layers configuration sources with koanf.
//
// Priority, lowest to highest:
//
//  1. Defaults, taken from the struct passed to Load
//  2. YAML configuration file
//  3. WORLDSNAP_* environment variables
//  4. Overrides from command-line flags (LoadMap)
//
// A Watcher reports edits to the configuration file so long-running
// commands can call Reload.
package confloader
