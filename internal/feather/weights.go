package feather

// Mask holds blend weights for the pixels of one tile window, stored
// row-major at the tile's size. Weights are in [0, 1]: 0 for invalid
// pixels, rising to 1 at blendDistance pixels from the nearest cutline.
type Mask struct {
	W, H    int
	Weights []float64
}

// Compute derives the weight mask for a tile from the validity of its
// halo-padded window. valid is (w+2*pad) x (h+2*pad) row-major covering the
// tile plus pad pixels on every side; the returned mask covers only the
// central w x h tile. pad must be at least ceil(blendDistance) for the
// result to match a whole-layer transform.
//
// A valid pixel adjacent to the cutline has distance 1, so its weight is
// 1/blendDistance, never 0: coverage is preserved wherever any layer has
// data.
func Compute(valid []bool, w, h, pad int, blendDistance float64) Mask {
	pw, ph := w+2*pad, h+2*pad
	dist := Distances(valid, pw, ph, blendDistance)

	weights := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			weights[y*w+x] = dist[(y+pad)*pw+(x+pad)] / blendDistance
		}
	}
	return Mask{W: w, H: h, Weights: weights}
}
