// Package feather computes cutline blend weights from pixel validity.
//
// The weight of a valid pixel is min(1, d/blendDistance), where d is its
// chamfer distance to the nearest invalid pixel. Invalid pixels weigh 0.
// Weights rise linearly across the blend band and saturate at 1 in the
// interior, so overlapping layers cross-fade along their cutlines instead
// of seaming.
//
// # Tile-local exactness
//
// Distances are computed per tile on a window padded by the blend distance.
// Because the transform is clamped at blendDistance, any invalid pixel
// close enough to influence a tile pixel lies inside the padding, so the
// tile-local result equals the whole-layer transform. This keeps the
// working set proportional to the tile, not the layer.
//
// The distance metric is the two-pass quasi-euclidean chamfer (cost 1 for
// orthogonal steps, sqrt2 for diagonal steps), close enough for feathering:
// the worst case error against true euclidean distance is under 8 percent,
// invisible once weights are normalized across layers.
package feather
