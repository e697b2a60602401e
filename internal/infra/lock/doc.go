// Package lock serializes worldsnap processes on a store with an advisory
// flock on <store>/.lock.
package lock
