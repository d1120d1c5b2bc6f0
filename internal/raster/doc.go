// Package raster provides the pixel-grid data model for the mosaicking engine.
//
// This package defines georeferenced pixel lattices (Grid), rectangular pixel
// windows (Window), input layers (Layer) and output datasets (Dataset), plus
// the tile reader that turns any window request into band buffers with a
// per-pixel validity mask. All higher-level packages work in terms of these
// types; nothing above this package touches raw sample encodings.
//
// # Coordinate System
//
// Two coordinate systems appear throughout:
//   - Map coordinates: float64 easting/northing in the shared CRS. Y increases
//     northward. Extents are axis-aligned rectangles in map space.
//   - Pixel coordinates: 0-based integer column/row within a Grid. (0,0) is the
//     top-left pixel, X increases rightward, Y increases downward (southward).
//
// A Grid ties the two together: it is a north-up, unrotated lattice described
// by the map position of its outer top-left corner and a positive pixel size
// per axis. Rotated or sheared geotransforms are not supported.
//
// # Validity
//
// A pixel is invalid when it lies outside the layer's extent or when every
// band carries the layer's nodata value. Validity is computed once per tile
// by ReadTile and travels with the tile; downstream code never re-derives it.
//
// # Sample Model
//
// Layers expose samples as float64 regardless of the on-disk encoding. The
// DataType of a layer records the source encoding (8-bit, 16-bit or float32)
// so that histogram binning and output writers can honour the native range,
// but all arithmetic upstream of the writer happens in float64.
package raster
