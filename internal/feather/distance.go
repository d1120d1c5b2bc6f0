package feather

import "math"

// Distances returns, for each pixel of a w x h validity mask, the chamfer
// distance to the nearest invalid pixel, clamped at clamp. Invalid pixels
// get 0. Pixels beyond the mask edge are NOT treated as invalid: a mask
// with no invalid pixels comes back all clamp.
//
// The clamp bounds how far influence can travel, which is what makes the
// halo-padded tile computation in Weights exact.
func Distances(valid []bool, w, h int, clamp float64) []float64 {
	dist := make([]float64, w*h)
	distancesInto(dist, valid, w, h, clamp)
	return dist
}

func distancesInto(dist []float64, valid []bool, w, h int, clamp float64) {
	for i := range dist {
		if valid[i] {
			dist[i] = clamp
		} else {
			dist[i] = 0
		}
	}

	// Forward pass: top-left to bottom-right, pulling from the four
	// already-visited neighbours.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			d := dist[i]
			if d == 0 {
				continue
			}
			if x > 0 && dist[i-1]+1 < d {
				d = dist[i-1] + 1
			}
			if y > 0 {
				if dist[i-w]+1 < d {
					d = dist[i-w] + 1
				}
				if x > 0 && dist[i-w-1]+math.Sqrt2 < d {
					d = dist[i-w-1] + math.Sqrt2
				}
				if x < w-1 && dist[i-w+1]+math.Sqrt2 < d {
					d = dist[i-w+1] + math.Sqrt2
				}
			}
			dist[i] = d
		}
	}

	// Backward pass: bottom-right to top-left.
	for y := h - 1; y >= 0; y-- {
		for x := w - 1; x >= 0; x-- {
			i := y*w + x
			d := dist[i]
			if d == 0 {
				continue
			}
			if x < w-1 && dist[i+1]+1 < d {
				d = dist[i+1] + 1
			}
			if y < h-1 {
				if dist[i+w]+1 < d {
					d = dist[i+w] + 1
				}
				if x < w-1 && dist[i+w+1]+math.Sqrt2 < d {
					d = dist[i+w+1] + math.Sqrt2
				}
				if x > 0 && dist[i+w-1]+math.Sqrt2 < d {
					d = dist[i+w-1] + math.Sqrt2
				}
			}
			dist[i] = d
		}
	}
}
