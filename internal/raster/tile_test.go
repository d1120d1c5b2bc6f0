package raster

import (
	"context"
	"testing"
)

// gradientLayer builds a single-band layer whose sample at (x, y) is
// y*cols+x, for easy position checks.
func gradientLayer(t *testing.T, cols, rows int) *MemoryLayer {
	t.Helper()
	buf := make([]float64, cols*rows)
	for i := range buf {
		buf[i] = float64(i)
	}
	grid := Grid{OriginX: 0, OriginY: float64(rows), PixelW: 1, PixelH: 1, Cols: cols, Rows: rows}
	l, err := NewMemoryLayer("gradient", grid, Uint8, [][]float64{buf})
	if err != nil {
		t.Fatalf("NewMemoryLayer failed: %v", err)
	}
	return l
}

func TestReadWindowInside(t *testing.T) {
	l := gradientLayer(t, 8, 6)
	w := Window{X: 2, Y: 1, W: 3, H: 2}
	dst := make([]float64, w.Size())
	if err := ReadWindow(context.Background(), l, 0, w, dst); err != nil {
		t.Fatalf("ReadWindow failed: %v", err)
	}
	want := []float64{10, 11, 12, 18, 19, 20}
	for i, v := range want {
		if dst[i] != v {
			t.Errorf("sample %d: got %v, want %v", i, dst[i], v)
		}
	}
}

func TestReadWindowPadsOutside(t *testing.T) {
	l := gradientLayer(t, 4, 4)
	l.SetNoData(255)

	// Window hangs one pixel off every edge.
	w := Window{X: -1, Y: -1, W: 6, H: 6}
	dst := make([]float64, w.Size())
	if err := ReadWindow(context.Background(), l, 0, w, dst); err != nil {
		t.Fatalf("ReadWindow failed: %v", err)
	}
	// Top-left padded corner carries the nodata fill.
	if dst[0] != 255 {
		t.Errorf("padded corner: got %v, want 255", dst[0])
	}
	// Layer pixel (0,0) sits at local (1,1).
	if dst[1*6+1] != 0 {
		t.Errorf("layer origin: got %v, want 0", dst[7])
	}
	// Layer pixel (3,3) sits at local (4,4).
	if dst[4*6+4] != 15 {
		t.Errorf("layer corner: got %v, want 15", dst[4*6+4])
	}
	if dst[5*6+5] != 255 {
		t.Errorf("padded corner: got %v, want 255", dst[5*6+5])
	}
}

func TestReadTileValidity(t *testing.T) {
	cols, rows := 4, 3
	grid := Grid{OriginY: float64(rows), PixelW: 1, PixelH: 1, Cols: cols, Rows: rows}
	band0 := []float64{
		0, 5, 5, 5,
		0, 5, 5, 5,
		0, 5, 5, 5,
	}
	band1 := []float64{
		0, 0, 5, 5,
		0, 0, 5, 5,
		0, 0, 5, 5,
	}
	l, err := NewMemoryLayer("two-band", grid, Uint8, [][]float64{band0, band1})
	if err != nil {
		t.Fatalf("NewMemoryLayer failed: %v", err)
	}
	l.SetNoData(0)

	w := Window{X: -1, Y: 0, W: 6, H: 3}
	tile := NewTile(w, 2)
	if err := ReadTile(context.Background(), l, w, tile); err != nil {
		t.Fatalf("ReadTile failed: %v", err)
	}

	tests := []struct {
		name string
		x, y int
		want bool
	}{
		{"outside extent", 0, 0, false},
		{"all bands nodata", 1, 0, false},
		{"one band nodata", 2, 0, true},
		{"fully valid", 3, 1, true},
		{"outside right", 5, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tile.Valid[tile.Index(tt.x, tt.y)]; got != tt.want {
				t.Errorf("valid(%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

func TestReadTileAlphaMask(t *testing.T) {
	cols, rows := 3, 2
	grid := Grid{OriginY: float64(rows), PixelW: 1, PixelH: 1, Cols: cols, Rows: rows}
	band := []float64{10, 20, 30, 40, 50, 60}
	l, err := NewMemoryLayer("masked", grid, Uint8, [][]float64{band})
	if err != nil {
		t.Fatalf("NewMemoryLayer failed: %v", err)
	}
	l.SetValidMask([]bool{true, false, true, true, true, false})

	w := Window{X: 0, Y: 0, W: 3, H: 2}
	tile := NewTile(w, 1)
	if err := ReadTile(context.Background(), l, w, tile); err != nil {
		t.Fatalf("ReadTile failed: %v", err)
	}
	want := []bool{true, false, true, true, true, false}
	for i, v := range want {
		if tile.Valid[i] != v {
			t.Errorf("valid[%d] = %v, want %v", i, tile.Valid[i], v)
		}
	}
	// Samples still read through regardless of the mask.
	if tile.Bands[0][1] != 20 {
		t.Errorf("masked sample: got %v, want 20", tile.Bands[0][1])
	}
}

func TestTileReset(t *testing.T) {
	tile := NewTile(Window{W: 4, H: 4}, 2)
	tile.Reset(Window{X: 1, Y: 1, W: 2, H: 2})
	if len(tile.Valid) != 4 || len(tile.Bands[0]) != 4 {
		t.Fatalf("Reset shrink: valid %d, band %d, want 4", len(tile.Valid), len(tile.Bands[0]))
	}
	tile.Reset(Window{W: 8, H: 8})
	if len(tile.Valid) != 64 || len(tile.Bands[1]) != 64 {
		t.Fatalf("Reset grow: valid %d, band %d, want 64", len(tile.Valid), len(tile.Bands[1]))
	}
}
