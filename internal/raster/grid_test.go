package raster

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtentUnionIntersect(t *testing.T) {
	a := Extent{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	b := Extent{MinX: 5, MinY: -2, MaxX: 15, MaxY: 8}

	got := a.Union(b)
	want := Extent{MinX: 0, MinY: -2, MaxX: 15, MaxY: 10}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Union mismatch (-want +got):\n%s", diff)
	}

	inter, ok := a.Intersect(b)
	if !ok {
		t.Fatal("Intersect: expected overlap")
	}
	want = Extent{MinX: 5, MinY: 0, MaxX: 10, MaxY: 8}
	if diff := cmp.Diff(want, inter); diff != "" {
		t.Errorf("Intersect mismatch (-want +got):\n%s", diff)
	}

	if _, ok := a.Intersect(Extent{MinX: 20, MinY: 20, MaxX: 30, MaxY: 30}); ok {
		t.Error("Intersect: disjoint extents reported as overlapping")
	}

	if got := (Extent{}).Union(a); got != a {
		t.Errorf("Union with empty: got %+v, want %+v", got, a)
	}
}

func TestGridExtent(t *testing.T) {
	g := Grid{OriginX: 100, OriginY: 200, PixelW: 0.5, PixelH: 0.5, Cols: 40, Rows: 20}
	want := Extent{MinX: 100, MinY: 190, MaxX: 120, MaxY: 200}
	if diff := cmp.Diff(want, g.Extent()); diff != "" {
		t.Errorf("Extent mismatch (-want +got):\n%s", diff)
	}
}

func TestGridAlignsWith(t *testing.T) {
	ref := Grid{OriginX: 100, OriginY: 200, PixelW: 0.5, PixelH: 0.5, Cols: 10, Rows: 10}
	tests := []struct {
		name string
		g    Grid
		want bool
	}{
		{"same origin", Grid{OriginX: 100, OriginY: 200, PixelW: 0.5, PixelH: 0.5}, true},
		{"whole pixel offset", Grid{OriginX: 103.5, OriginY: 196, PixelW: 0.5, PixelH: 0.5}, true},
		{"tiny float drift", Grid{OriginX: 103.5000001, OriginY: 196, PixelW: 0.5, PixelH: 0.5}, true},
		{"half pixel off", Grid{OriginX: 100.25, OriginY: 200, PixelW: 0.5, PixelH: 0.5}, false},
		{"misaligned y", Grid{OriginX: 100, OriginY: 200.1, PixelW: 0.5, PixelH: 0.5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ref.AlignsWith(tt.g); got != tt.want {
				t.Errorf("AlignsWith = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGridPlacementIn(t *testing.T) {
	mosaic := Grid{OriginX: 100, OriginY: 200, PixelW: 0.5, PixelH: 0.5, Cols: 100, Rows: 100}
	layer := Grid{OriginX: 105, OriginY: 190, PixelW: 0.5, PixelH: 0.5, Cols: 30, Rows: 20}

	got := layer.PlacementIn(mosaic)
	want := Window{X: 10, Y: 20, W: 30, H: 20}
	if got != want {
		t.Errorf("PlacementIn = %v, want %v", got, want)
	}
}

func TestSnapTo(t *testing.T) {
	ref := Grid{OriginX: 100, OriginY: 200, PixelW: 0.5, PixelH: 0.5}

	tests := []struct {
		name string
		e    Extent
		want Grid
	}{
		{
			"already on lattice",
			Extent{MinX: 100, MinY: 195, MaxX: 110, MaxY: 200},
			Grid{OriginX: 100, OriginY: 200, PixelW: 0.5, PixelH: 0.5, Cols: 20, Rows: 10},
		},
		{
			"snaps outward",
			Extent{MinX: 100.3, MinY: 195.2, MaxX: 110.3, MaxY: 199.8},
			Grid{OriginX: 100, OriginY: 200, PixelW: 0.5, PixelH: 0.5, Cols: 21, Rows: 10},
		},
		{
			"south-east of origin",
			Extent{MinX: 107, MinY: 180, MaxX: 112, MaxY: 185},
			Grid{OriginX: 107, OriginY: 185, PixelW: 0.5, PixelH: 0.5, Cols: 10, Rows: 10},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SnapTo(tt.e, ref)
			if err != nil {
				t.Fatalf("SnapTo failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("SnapTo mismatch (-want +got):\n%s", diff)
			}
			// The snapped grid must stay on ref's lattice and cover e.
			if !ref.AlignsWith(got) {
				t.Error("snapped grid is off the reference lattice")
			}
			ge := got.Extent()
			if ge.MinX > tt.e.MinX || ge.MinY > tt.e.MinY || ge.MaxX < tt.e.MaxX || ge.MaxY < tt.e.MaxY {
				t.Errorf("snapped grid %+v does not cover extent %+v", ge, tt.e)
			}
		})
	}

	if _, err := SnapTo(Extent{}, ref); err == nil {
		t.Error("SnapTo: expected error for empty extent")
	}
}

func TestWindowOps(t *testing.T) {
	w := Window{X: 10, Y: 20, W: 30, H: 40}

	if got := w.Intersect(Window{X: 30, Y: 50, W: 30, H: 40}); got != (Window{X: 30, Y: 50, W: 10, H: 10}) {
		t.Errorf("Intersect = %v", got)
	}
	if got := w.Intersect(Window{X: 100, Y: 100, W: 5, H: 5}); !got.Empty() {
		t.Errorf("Intersect of disjoint windows = %v, want empty", got)
	}
	if got := w.Translate(-10, -20); got != (Window{X: 0, Y: 0, W: 30, H: 40}) {
		t.Errorf("Translate = %v", got)
	}
	if got := w.Grow(5); got != (Window{X: 5, Y: 15, W: 40, H: 50}) {
		t.Errorf("Grow = %v", got)
	}
	if w.Size() != 1200 {
		t.Errorf("Size = %d, want 1200", w.Size())
	}
	if !w.Overlaps(Window{X: 39, Y: 59, W: 1, H: 1}) {
		t.Error("Overlaps: expected true for corner pixel")
	}
	if w.Overlaps(Window{X: 40, Y: 20, W: 1, H: 1}) {
		t.Error("Overlaps: expected false past the right edge")
	}
}
