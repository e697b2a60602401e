// Package storage provides the reference index of a backup store.
//
// The index records, for every generation, its metadata and its reference
// table: world-relative path to the (generation, path) holding the bytes.
// Three interchangeable backends implement Index:
//
//   - badger: embedded LSM key-value store (this package)
//   - sqlite: relational tables through bun (package sqlindex)
//   - file: one checksummed manifest file per generation (package manifest)
//
// Backends store what they are given. Chain validation is the job of the
// generation store built on top.
package storage
