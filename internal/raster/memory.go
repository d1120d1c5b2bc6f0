package raster

import (
	"context"
	"fmt"
)

// MemoryLayer is a Layer backed by in-memory band buffers. It backs decoded
// image files and synthetic layers in tests. Reads never block, but the
// context is still honoured so cancellation behaves like any other source.
type MemoryLayer struct {
	name        string
	grid        Grid
	dtype       DataType
	bands       [][]float64
	valid       []bool
	nodata      float64
	hasNodata   bool
	fingerprint string
	rangeLo     float64
	rangeHi     float64
	hasRange    bool
}

// NewMemoryLayer wraps row-major band buffers of grid.Cols*grid.Rows samples
// each as a layer.
func NewMemoryLayer(name string, grid Grid, dtype DataType, bands [][]float64) (*MemoryLayer, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("layer %s: no bands", name)
	}
	want := grid.Cols * grid.Rows
	for b, buf := range bands {
		if len(buf) != want {
			return nil, fmt.Errorf("layer %s: band %d holds %d of %d samples", name, b, len(buf), want)
		}
	}
	return &MemoryLayer{name: name, grid: grid, dtype: dtype, bands: bands}, nil
}

// SetNoData declares the sentinel marking invalid pixels.
func (l *MemoryLayer) SetNoData(v float64) {
	l.nodata = v
	l.hasNodata = true
}

// SetFingerprint attaches a cache identity to the layer.
func (l *MemoryLayer) SetFingerprint(fp string) { l.fingerprint = fp }

// SetValidMask attaches an explicit row-major validity mask of
// grid.Cols*grid.Rows entries, typically derived from an alpha channel.
func (l *MemoryLayer) SetValidMask(valid []bool) { l.valid = valid }

// SetFloatRange declares the value range of a float32 layer's samples.
func (l *MemoryLayer) SetFloatRange(lo, hi float64) {
	l.rangeLo, l.rangeHi = lo, hi
	l.hasRange = true
}

func (l *MemoryLayer) Name() string       { return l.name }
func (l *MemoryLayer) Grid() Grid         { return l.grid }
func (l *MemoryLayer) Bands() int         { return len(l.bands) }
func (l *MemoryLayer) DataType() DataType { return l.dtype }

func (l *MemoryLayer) NoData() (float64, bool) { return l.nodata, l.hasNodata }

// Fingerprint implements Fingerprinter.
func (l *MemoryLayer) Fingerprint() (string, bool) {
	return l.fingerprint, l.fingerprint != ""
}

// FloatRange implements FloatRanger.
func (l *MemoryLayer) FloatRange() (lo, hi float64) {
	if l.hasRange {
		return l.rangeLo, l.rangeHi
	}
	return l.dtype.Range()
}

func (l *MemoryLayer) Read(ctx context.Context, band int, w Window, dst []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if band < 0 || band >= len(l.bands) {
		return fmt.Errorf("layer %s: band %d out of range", l.name, band)
	}
	full := Window{W: l.grid.Cols, H: l.grid.Rows}
	if w.Intersect(full) != w {
		return fmt.Errorf("layer %s: window %s outside grid %dx%d", l.name, w, l.grid.Cols, l.grid.Rows)
	}
	src := l.bands[band]
	for y := 0; y < w.H; y++ {
		off := (w.Y+y)*l.grid.Cols + w.X
		copy(dst[y*w.W:(y+1)*w.W], src[off:off+w.W])
	}
	return nil
}

// ReadValid implements ValidMasker when a mask was set. Without a mask every
// in-grid pixel passes.
func (l *MemoryLayer) ReadValid(ctx context.Context, w Window, dst []bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for y := 0; y < w.H; y++ {
		for x := 0; x < w.W; x++ {
			if l.valid == nil {
				dst[y*w.W+x] = true
				continue
			}
			dst[y*w.W+x] = l.valid[(w.Y+y)*l.grid.Cols+w.X+x]
		}
	}
	return nil
}
