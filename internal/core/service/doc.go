// Package service provides the domain services of worldsnap.
//
//   - BackupService: the incremental snapshot engine
//   - RestoreService: materializes a generation into the world
//   - CompactionService: removes generations without breaking chains
//
// Services operate on a generation.Store. Mutual exclusion between
// processes is the caller's job (see internal/infra/lock).
package service
