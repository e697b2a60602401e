// Package domain defines the core domain models for worldsnap.
//
// Domain models are pure value objects without any IO dependencies.
// This package contains:
//
//   - GenerationID: minute-resolution snapshot labels
//   - Reference: where the bytes of a world-relative path live
//   - Generation: per-generation metadata and lifecycle state
//   - Errors: coded domain errors
package domain
