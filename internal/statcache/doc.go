// Package statcache persists per-layer histogram statistics between runs.
//
// The statistics pass is the expensive half of a merge with histogram
// matching: it reads every overlap pixel of every layer. Its product, the
// source/reference histogram pairs, is small and immutable for a given
// input file, so it is cached in a SQLite database keyed by the layer
// fingerprint, the reference fingerprint and the equalize mode. Re-running
// a merge over unchanged inputs skips the statistics reads entirely.
//
// Stats are stored as gob-encoded, gzip-compressed blobs. Fingerprints
// change whenever a file's path, size or mtime changes, so stale entries
// are never served; Clear drops everything for a fresh start.
package statcache
