// Package world reads and writes the live directory tree being snapshotted.
//
// It provides the path catalog (every file under the world root, as sorted
// slash-separated relative paths), the modification-time change classifier,
// and the rate-limited file copier shared by backup, restore and compaction.
package world
