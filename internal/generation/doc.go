// Package generation manages the generations of a backup store.
//
// A store root holds one directory per generation, mirroring the world for
// the files that generation physically owns, plus a reference index in
// <root>/.index. Every path a generation tracks maps to a Reference; a
// reference to itself is a physical copy, any other reference points into
// an earlier generation. Resolve follows such chains to the physical copy.
//
// New generations start provisional and become complete when sealed. A
// provisional generation is the trace of an interrupted run.
package generation
