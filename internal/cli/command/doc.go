// Package command defines the worldsnap command line with urfave/cli/v2.
//
//   - root.go: application and global flags
//   - session.go: configuration, logging, locking and store setup
//   - backup.go, restore.go, remove.go: the snapshot operations
//   - inspect.go: list, show and verify
//   - maintain.go: cleanup and prune
//   - daemon.go: scheduled backups with configuration reload
//   - config.go, version.go: configuration and build information
//
// Every command that touches the store holds the store lock for its whole
// run.
package command
