package raster

import (
	"context"
	"fmt"
)

// Tile holds decoded samples for one window of a layer or mosaic.
//
// Bands are row-major float64 buffers of Window.Size() samples each. Valid
// marks pixels that carry data; pixels outside the source extent or equal to
// the nodata sentinel on every band are invalid. Buffers are owned by the
// tile and may be reused across reads via Reset.
type Tile struct {
	Window Window
	Bands  [][]float64
	Valid  []bool
}

// NewTile allocates a tile for w with the given band count.
func NewTile(w Window, bands int) *Tile {
	t := &Tile{
		Window: w,
		Bands:  make([][]float64, bands),
		Valid:  make([]bool, w.Size()),
	}
	for b := range t.Bands {
		t.Bands[b] = make([]float64, w.Size())
	}
	return t
}

// Reset repositions the tile at w, growing buffers as needed. Sample values
// are left stale; callers overwrite them on the next read.
func (t *Tile) Reset(w Window) {
	n := w.Size()
	t.Window = w
	if cap(t.Valid) < n {
		t.Valid = make([]bool, n)
	}
	t.Valid = t.Valid[:n]
	for b := range t.Bands {
		if cap(t.Bands[b]) < n {
			t.Bands[b] = make([]float64, n)
		}
		t.Bands[b] = t.Bands[b][:n]
	}
}

// Index returns the buffer offset of the pixel at tile-local (x, y).
func (t *Tile) Index(x, y int) int { return y*t.Window.W + x }

// ReadWindow reads one band of l for w, which may extend beyond the layer
// grid. Out-of-grid pixels are filled with the layer's nodata value, or 0
// when it has none. dst must hold at least w.Size() samples.
func ReadWindow(ctx context.Context, l Layer, band int, w Window, dst []float64) error {
	if w.Empty() {
		return nil
	}
	if len(dst) < w.Size() {
		return fmt.Errorf("read %s: buffer holds %d of %d samples", l.Name(), len(dst), w.Size())
	}
	full := Window{W: l.Grid().Cols, H: l.Grid().Rows}
	in := w.Intersect(full)
	if in == w {
		return l.Read(ctx, band, w, dst)
	}

	fill := 0.0
	if nd, ok := l.NoData(); ok {
		fill = nd
	}
	for i := 0; i < w.Size(); i++ {
		dst[i] = fill
	}
	if in.Empty() {
		return nil
	}

	// Read the in-grid part row by row into the right slice of dst.
	row := make([]float64, in.W)
	for y := 0; y < in.H; y++ {
		src := Window{X: in.X, Y: in.Y + y, W: in.W, H: 1}
		if err := l.Read(ctx, band, src, row); err != nil {
			return err
		}
		off := (in.Y-w.Y+y)*w.W + (in.X - w.X)
		copy(dst[off:off+in.W], row)
	}
	return nil
}

// ReadTile reads every band of l for w into t and computes the validity
// mask. t is repositioned at w; pass a fresh or reused tile with l.Bands()
// band buffers (NewTile(w, l.Bands()) when in doubt).
func ReadTile(ctx context.Context, l Layer, w Window, t *Tile) error {
	if len(t.Bands) != l.Bands() {
		return fmt.Errorf("read %s: tile has %d bands, layer has %d", l.Name(), len(t.Bands), l.Bands())
	}
	t.Reset(w)
	for b := range t.Bands {
		if err := ReadWindow(ctx, l, b, w, t.Bands[b]); err != nil {
			return err
		}
	}

	full := Window{W: l.Grid().Cols, H: l.Grid().Rows}
	in := w.Intersect(full)
	nd, hasND := l.NoData()
	for i := range t.Valid {
		t.Valid[i] = false
	}
	if in.Empty() {
		return nil
	}

	var mask []bool
	if vm, ok := l.(ValidMasker); ok {
		mask = make([]bool, in.Size())
		if err := vm.ReadValid(ctx, in, mask); err != nil {
			return err
		}
	}
	for y := in.Y - w.Y; y < in.Y-w.Y+in.H; y++ {
		for x := in.X - w.X; x < in.X-w.X+in.W; x++ {
			i := y*w.W + x
			if mask != nil && !mask[(y-(in.Y-w.Y))*in.W+(x-(in.X-w.X))] {
				continue
			}
			if hasND {
				all := true
				for b := range t.Bands {
					if t.Bands[b][i] != nd {
						all = false
						break
					}
				}
				if all {
					continue
				}
			}
			t.Valid[i] = true
		}
	}
	return nil
}
