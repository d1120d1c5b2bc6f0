package raster

import (
	"context"
	"fmt"
	"image"
	"sync"
)

// Dataset receives composited tiles from the engine.
//
// Tiles arrive in completion order, not row order, from a single goroutine.
// A dataset is complete only after Finalize returns; consumers must treat
// anything unfinalized as a failed run. Discard removes partial state and is
// called instead of Finalize when a run errors or is cancelled.
type Dataset interface {
	Grid() Grid
	Bands() int

	// WriteTile stores one tile. t.Window is in the dataset's pixel space
	// and always fully inside the grid. Invalid pixels carry no data and
	// are written as the dataset's nodata representation.
	WriteTile(ctx context.Context, t *Tile) error

	// Finalize marks the dataset complete and flushes it.
	Finalize(ctx context.Context) error

	// Discard releases partial output. Safe to call after a failed
	// Finalize; not valid after a successful one.
	Discard() error
}

// MemoryDataset buffers the whole mosaic in memory. It serves tests and
// small outputs that are re-encoded as images afterwards; large mosaics
// belong in an ENVIDataset.
type MemoryDataset struct {
	mu        sync.Mutex
	grid      Grid
	dtype     DataType
	bands     [][]float64
	valid     []bool
	finalized bool
	discarded bool
}

// NewMemoryDataset allocates a zeroed mosaic buffer.
func NewMemoryDataset(grid Grid, bands int, dtype DataType) *MemoryDataset {
	n := grid.Cols * grid.Rows
	d := &MemoryDataset{
		grid:  grid,
		dtype: dtype,
		bands: make([][]float64, bands),
		valid: make([]bool, n),
	}
	for b := range d.bands {
		d.bands[b] = make([]float64, n)
	}
	return d
}

func (d *MemoryDataset) Grid() Grid { return d.grid }
func (d *MemoryDataset) Bands() int { return len(d.bands) }

func (d *MemoryDataset) WriteTile(ctx context.Context, t *Tile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.finalized || d.discarded {
		return fmt.Errorf("write to closed dataset")
	}
	if len(t.Bands) != len(d.bands) {
		return fmt.Errorf("tile has %d bands, dataset has %d", len(t.Bands), len(d.bands))
	}
	w := t.Window
	for y := 0; y < w.H; y++ {
		off := (w.Y+y)*d.grid.Cols + w.X
		copy(d.valid[off:off+w.W], t.Valid[y*w.W:(y+1)*w.W])
		for b := range d.bands {
			copy(d.bands[b][off:off+w.W], t.Bands[b][y*w.W:(y+1)*w.W])
		}
	}
	return nil
}

func (d *MemoryDataset) Finalize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.discarded {
		return fmt.Errorf("finalize discarded dataset")
	}
	d.finalized = true
	return nil
}

func (d *MemoryDataset) Discard() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.discarded = true
	d.bands = nil
	d.valid = nil
	return nil
}

// Complete reports whether Finalize succeeded.
func (d *MemoryDataset) Complete() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finalized
}

// Band returns the row-major samples of one band.
func (d *MemoryDataset) Band(b int) []float64 { return d.bands[b] }

// ValidMask returns the row-major validity of the mosaic.
func (d *MemoryDataset) ValidMask() []bool { return d.valid }

// Layer wraps the finalized mosaic as a read-only layer, for previews or
// re-use as merge input.
func (d *MemoryDataset) Layer(name string) (*MemoryLayer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.finalized {
		return nil, fmt.Errorf("dataset %s not finalized", name)
	}
	l, err := NewMemoryLayer(name, d.grid, d.dtype, d.bands)
	if err != nil {
		return nil, err
	}
	l.SetValidMask(d.valid)
	return l, nil
}

// Image renders the mosaic as an 8-bit image with validity as alpha. One
// band renders as gray, three or more as RGB; values are scaled from the
// dataset's native range.
func (d *MemoryDataset) Image() (*image.NRGBA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.finalized {
		return nil, fmt.Errorf("dataset not finalized")
	}
	if len(d.bands) != 1 && len(d.bands) < 3 {
		return nil, fmt.Errorf("cannot render %d-band dataset as image", len(d.bands))
	}
	lo, hi := d.dtype.Range()
	scale := 255 / (hi - lo)
	out := image.NewNRGBA(image.Rect(0, 0, d.grid.Cols, d.grid.Rows))
	for y := 0; y < d.grid.Rows; y++ {
		for x := 0; x < d.grid.Cols; x++ {
			i := y*d.grid.Cols + x
			if !d.valid[i] {
				continue
			}
			var r, g, b uint8
			if len(d.bands) >= 3 {
				r = scaleSample(d.bands[0][i], lo, scale)
				g = scaleSample(d.bands[1][i], lo, scale)
				b = scaleSample(d.bands[2][i], lo, scale)
			} else {
				r = scaleSample(d.bands[0][i], lo, scale)
				g, b = r, r
			}
			o := out.PixOffset(x, y)
			out.Pix[o] = r
			out.Pix[o+1] = g
			out.Pix[o+2] = b
			out.Pix[o+3] = 255
		}
	}
	return out, nil
}
