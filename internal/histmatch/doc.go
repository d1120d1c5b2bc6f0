// Package histmatch aligns the tonal distribution of rasters by cumulative
// histogram matching.
//
// For each band of a source layer, a transfer function is built that maps
// source values so their cumulative distribution matches a reference
// layer's. Histograms are accumulated over the mutual overlap of source and
// reference wherever one exists, so the alignment is driven by pixels that
// actually image the same ground.
//
// Bin counts follow the sample encoding: 256 bins for uint8, 65536 for
// uint16 (one bin per representable value, so integer matching is a direct
// lookup table) and 4096 for float32 over the layer's declared range.
// Transfer functions are monotone non-decreasing; a degenerate histogram
// (empty, or a single occupied bin) yields the identity.
//
// Matching can run on RGB bands independently or in LCh space, where
// lightness, chroma and hue are matched separately and converted back. LCh
// preserves hue relationships when exposure differs strongly between
// flights; it requires three-band imagery.
package histmatch
