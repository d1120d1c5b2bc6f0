// Package mosaic merges co-registered raster layers into a single
// seam-blended output.
//
// Merge is the entry point. It plans a union grid snapped to the first
// layer's lattice, optionally runs a statistics pass that builds histogram
// matching transfers against that reference layer, then composites the
// mosaic tile by tile: each layer's contribution is weighted by its
// feathered distance to the nearest cutline and per-pixel weights are
// normalized to sum to one. Later layers therefore blend into earlier ones
// across the blend distance instead of overwriting them, and a pixel only
// one layer covers is passed through untouched.
//
// # Two passes
//
// Histogram statistics are always complete before any output pixel is
// composited. Matching needs each layer's full overlap distribution; a
// single streaming pass would match early tiles against partial
// statistics. The statistics pass can be skipped entirely by a stats cache
// hit or by disabling equalization.
//
// # Memory
//
// The engine never holds a full layer or the full mosaic: workers read
// halo-padded tile windows, composite them and hand them to a single
// writer goroutine. Peak memory scales with tile size, halo and worker
// count. The statistics pass streams the same tile windows.
//
// # Failure
//
// Errors carry a Kind: configuration errors fail fast before any pixel
// work; read and write errors abort the run; cancellation aborts between
// tiles. Whenever a run does not finish, the destination dataset is
// discarded rather than finalized, so no incomplete output can pass for a
// mosaic.
package mosaic
