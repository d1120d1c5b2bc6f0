package histmatch

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/uav4geo/QRasterMerge/internal/raster"
)

// Bin counts per sample encoding. Integer types get one bin per
// representable value so the matched transfer is an exact lookup table.
const (
	BinsUint8   = 256
	BinsUint16  = 65536
	BinsFloat32 = 4096
)

// BinsFor returns the histogram resolution for a sample encoding.
func BinsFor(d raster.DataType) int {
	switch d {
	case raster.Uint8:
		return BinsUint8
	case raster.Uint16:
		return BinsUint16
	default:
		return BinsFloat32
	}
}

// Histogram counts samples over a fixed range. Discrete histograms have one
// unit-wide bin per integer value starting at Min; continuous ones split
// [Min, Max] evenly.
type Histogram struct {
	Min, Max float64
	Discrete bool
	Counts   []uint64
}

// NewDiscrete allocates a histogram with one bin per integer in [min, min+bins).
func NewDiscrete(min float64, bins int) *Histogram {
	return &Histogram{Min: min, Max: min + float64(bins-1), Discrete: true, Counts: make([]uint64, bins)}
}

// NewContinuous allocates a histogram of bins even cells over [min, max].
func NewContinuous(min, max float64, bins int) (*Histogram, error) {
	if max <= min {
		return nil, fmt.Errorf("histogram: empty range [%g, %g]", min, max)
	}
	return &Histogram{Min: min, Max: max, Counts: make([]uint64, bins)}, nil
}

// NewForLayer allocates the histogram matching a layer's encoding. Float
// layers use their declared range.
func NewForLayer(l raster.Layer) (*Histogram, error) {
	switch l.DataType() {
	case raster.Uint8:
		return NewDiscrete(0, BinsUint8), nil
	case raster.Uint16:
		return NewDiscrete(0, BinsUint16), nil
	default:
		lo, hi := l.DataType().Range()
		if fr, ok := l.(raster.FloatRanger); ok {
			lo, hi = fr.FloatRange()
		}
		return NewContinuous(lo, hi, BinsFloat32)
	}
}

// Add counts one sample, clamping values outside the range into the edge
// bins.
func (h *Histogram) Add(v float64) {
	h.Counts[h.binOf(v)]++
}

// AddN counts a sample n times.
func (h *Histogram) AddN(v float64, n uint64) {
	h.Counts[h.binOf(v)] += n
}

func (h *Histogram) binOf(v float64) int {
	var i int
	if h.Discrete {
		i = int(v - h.Min + 0.5)
	} else {
		i = int((v - h.Min) / (h.Max - h.Min) * float64(len(h.Counts)))
	}
	if i < 0 {
		return 0
	}
	if i >= len(h.Counts) {
		return len(h.Counts) - 1
	}
	return i
}

// Value returns the sample value a bin stands for: the value itself for
// discrete histograms, the cell midpoint for continuous ones.
func (h *Histogram) Value(bin int) float64 {
	if h.Discrete {
		return h.Min + float64(bin)
	}
	cell := (h.Max - h.Min) / float64(len(h.Counts))
	return h.Min + (float64(bin)+0.5)*cell
}

// Total returns the number of counted samples.
func (h *Histogram) Total() uint64 {
	var n uint64
	for _, c := range h.Counts {
		n += c
	}
	return n
}

// Occupied returns how many bins hold at least one sample.
func (h *Histogram) Occupied() int {
	n := 0
	for _, c := range h.Counts {
		if c > 0 {
			n++
		}
	}
	return n
}

// Degenerate reports whether the histogram cannot drive a match: no
// samples, or all samples in one bin.
func (h *Histogram) Degenerate() bool {
	return h.Occupied() <= 1
}

// CDF returns the cumulative distribution over bins, ending at 1. An empty
// histogram returns all zeros.
func (h *Histogram) CDF() []float64 {
	total := h.Total()
	cdf := make([]float64, len(h.Counts))
	if total == 0 {
		return cdf
	}
	var run uint64
	for i, c := range h.Counts {
		run += c
		cdf[i] = float64(run) / float64(total)
	}
	return cdf
}

// Mean returns the count-weighted mean sample value.
func (h *Histogram) Mean() float64 {
	if h.Total() == 0 {
		return 0
	}
	xs := make([]float64, len(h.Counts))
	ws := make([]float64, len(h.Counts))
	for i, c := range h.Counts {
		xs[i] = h.Value(i)
		ws[i] = float64(c)
	}
	return stat.Mean(xs, ws)
}

// StdDev returns the count-weighted standard deviation of sample values.
func (h *Histogram) StdDev() float64 {
	if h.Total() == 0 {
		return 0
	}
	xs := make([]float64, len(h.Counts))
	ws := make([]float64, len(h.Counts))
	for i, c := range h.Counts {
		xs[i] = h.Value(i)
		ws[i] = float64(c)
	}
	return stat.StdDev(xs, ws)
}

// compatible reports whether two histograms can be matched against each
// other. Discrete histograms must share their value alignment; continuous
// ones only their resolution, since the match maps values, not bins.
func compatible(a, b *Histogram) bool {
	if a.Discrete != b.Discrete || len(a.Counts) != len(b.Counts) {
		return false
	}
	if a.Discrete {
		return a.Min == b.Min
	}
	return true
}
