package mosaic

import (
	"strings"
	"testing"

	"github.com/uav4geo/QRasterMerge/internal/raster"
)

// gridAt builds a north-up unit-resolution grid with its outer top-left
// corner at (x, y).
func gridAt(x, y float64, cols, rows int) raster.Grid {
	return raster.Grid{OriginX: x, OriginY: y, PixelW: 1, PixelH: 1, Cols: cols, Rows: rows}
}

func constLayer(t *testing.T, name string, grid raster.Grid, bands int, dtype raster.DataType, v float64) *raster.MemoryLayer {
	t.Helper()
	data := make([][]float64, bands)
	for b := range data {
		data[b] = make([]float64, grid.Cols*grid.Rows)
		for i := range data[b] {
			data[b][i] = v
		}
	}
	l, err := raster.NewMemoryLayer(name, grid, dtype, data)
	if err != nil {
		t.Fatalf("NewMemoryLayer(%s): %v", name, err)
	}
	return l
}

func TestPlanGridUnion(t *testing.T) {
	a := constLayer(t, "a", gridAt(0, 4, 4, 4), 1, raster.Uint8, 1)
	b := constLayer(t, "b", gridAt(2, 2, 4, 4), 1, raster.Uint8, 2)

	grid, err := PlanGrid([]raster.Layer{a, b})
	if err != nil {
		t.Fatalf("PlanGrid: %v", err)
	}
	want := gridAt(0, 4, 6, 6)
	if grid != want {
		t.Fatalf("PlanGrid = %+v, want %+v", grid, want)
	}

	if got := a.Grid().PlacementIn(grid); got != (raster.Window{X: 0, Y: 0, W: 4, H: 4}) {
		t.Errorf("placement of a = %v", got)
	}
	if got := b.Grid().PlacementIn(grid); got != (raster.Window{X: 2, Y: 2, W: 4, H: 4}) {
		t.Errorf("placement of b = %v", got)
	}
}

func TestPlanGridValidation(t *testing.T) {
	ref := constLayer(t, "ref", gridAt(0, 4, 4, 4), 3, raster.Uint8, 1)

	offGrid := gridAt(0.5, 4, 4, 4) // half-pixel phase shift
	coarse := raster.Grid{OriginX: 0, OriginY: 4, PixelW: 2, PixelH: 2, Cols: 2, Rows: 2}

	tests := []struct {
		name   string
		layers []raster.Layer
		msg    string
	}{
		{
			name:   "single layer",
			layers: []raster.Layer{ref},
			msg:    "at least two",
		},
		{
			name:   "band mismatch",
			layers: []raster.Layer{ref, constLayer(t, "mono", gridAt(0, 4, 4, 4), 1, raster.Uint8, 1)},
			msg:    "bands",
		},
		{
			name:   "type mismatch",
			layers: []raster.Layer{ref, constLayer(t, "wide", gridAt(0, 4, 4, 4), 3, raster.Uint16, 1)},
			msg:    "reference",
		},
		{
			name:   "resolution mismatch",
			layers: []raster.Layer{ref, constLayer(t, "coarse", coarse, 3, raster.Uint8, 1)},
			msg:    "resolution",
		},
		{
			name:   "lattice offset",
			layers: []raster.Layer{ref, constLayer(t, "shifted", offGrid, 3, raster.Uint8, 1)},
			msg:    "co-registered",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PlanGrid(tt.layers)
			if err == nil {
				t.Fatal("PlanGrid succeeded, want error")
			}
			if KindOf(err) != KindConfiguration {
				t.Errorf("KindOf = %v, want %v", KindOf(err), KindConfiguration)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("error %q does not mention %q", err, tt.msg)
			}
		})
	}
}

func TestBuildPlanValidation(t *testing.T) {
	grid := gridAt(0, 4, 4, 4)
	rgb := func(name string) raster.Layer { return constLayer(t, name, grid, 3, raster.Uint8, 1) }
	flt := func(name string) raster.Layer { return constLayer(t, name, grid, 3, raster.Float32, 1) }
	good := Options{BlendDistance: 2, TileSize: 4, Workers: 1}
	dest := raster.NewMemoryDataset(grid, 3, raster.Uint8)

	tests := []struct {
		name   string
		layers []raster.Layer
		dest   raster.Dataset
		opts   Options
		msg    string
	}{
		{
			name:   "negative blend",
			layers: []raster.Layer{rgb("a"), rgb("b")},
			dest:   dest,
			opts:   Options{BlendDistance: -1, TileSize: 4, Workers: 1},
			msg:    "blend distance",
		},
		{
			name:   "lch on float",
			layers: []raster.Layer{flt("a"), flt("b")},
			dest:   raster.NewMemoryDataset(grid, 3, raster.Float32),
			opts:   Options{BlendDistance: 2, TileSize: 4, Workers: 1, Equalize: EqualizeLCh},
			msg:    "integer",
		},
		{
			name:   "lch needs three bands",
			layers: []raster.Layer{constLayer(t, "a", grid, 1, raster.Uint8, 1), constLayer(t, "b", grid, 1, raster.Uint8, 1)},
			dest:   raster.NewMemoryDataset(grid, 1, raster.Uint8),
			opts:   Options{BlendDistance: 2, TileSize: 4, Workers: 1, Equalize: EqualizeLCh},
			msg:    "3-band",
		},
		{
			name:   "nil destination",
			layers: []raster.Layer{rgb("a"), rgb("b")},
			dest:   nil,
			opts:   good,
			msg:    "destination",
		},
		{
			name:   "destination grid mismatch",
			layers: []raster.Layer{rgb("a"), rgb("b")},
			dest:   raster.NewMemoryDataset(gridAt(0, 4, 5, 5), 3, raster.Uint8),
			opts:   good,
			msg:    "destination grid",
		},
		{
			name:   "destination band mismatch",
			layers: []raster.Layer{rgb("a"), rgb("b")},
			dest:   raster.NewMemoryDataset(grid, 1, raster.Uint8),
			opts:   good,
			msg:    "bands",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildPlan(tt.layers, tt.dest, tt.opts)
			if err == nil {
				t.Fatal("buildPlan succeeded, want error")
			}
			if KindOf(err) != KindConfiguration {
				t.Errorf("KindOf = %v, want %v", KindOf(err), KindConfiguration)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("error %q does not mention %q", err, tt.msg)
			}
		})
	}
}

func TestTileWindows(t *testing.T) {
	grid := gridAt(0, 7, 10, 7)
	a := constLayer(t, "a", grid, 1, raster.Uint8, 1)
	b := constLayer(t, "b", grid, 1, raster.Uint8, 2)
	dest := raster.NewMemoryDataset(grid, 1, raster.Uint8)

	p, err := buildPlan([]raster.Layer{a, b}, dest, Options{BlendDistance: 2, TileSize: 4, Workers: 1})
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}
	if p.tilesX != 3 || p.tilesY != 2 {
		t.Fatalf("tiling = %dx%d, want 3x2", p.tilesX, p.tilesY)
	}
	if p.tileCount() != 6 {
		t.Fatalf("tileCount = %d, want 6", p.tileCount())
	}

	tests := []struct {
		i    int
		want raster.Window
	}{
		{0, raster.Window{X: 0, Y: 0, W: 4, H: 4}},
		{2, raster.Window{X: 8, Y: 0, W: 2, H: 4}},
		{3, raster.Window{X: 0, Y: 4, W: 4, H: 3}},
		{5, raster.Window{X: 8, Y: 4, W: 2, H: 3}},
	}
	for _, tt := range tests {
		if got := p.tileWindow(tt.i); got != tt.want {
			t.Errorf("tileWindow(%d) = %v, want %v", tt.i, got, tt.want)
		}
	}

	// Every mosaic pixel is covered exactly once.
	seen := make([]int, grid.Cols*grid.Rows)
	for i := 0; i < p.tileCount(); i++ {
		w := p.tileWindow(i)
		for y := w.Y; y < w.Y+w.H; y++ {
			for x := w.X; x < w.X+w.W; x++ {
				seen[y*grid.Cols+x]++
			}
		}
	}
	for i, n := range seen {
		if n != 1 {
			t.Fatalf("pixel %d covered %d times", i, n)
		}
	}
}
