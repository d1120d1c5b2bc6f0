package raster

import (
	"fmt"
	"math"
)

// alignTolerance is the maximum lattice phase mismatch, as a fraction of one
// pixel, that two grids may have and still be considered co-registered.
const alignTolerance = 0.01

// Extent is an axis-aligned rectangle in map coordinates.
type Extent struct {
	MinX, MinY, MaxX, MaxY float64
}

// Empty reports whether the extent covers no area.
func (e Extent) Empty() bool {
	return e.MaxX <= e.MinX || e.MaxY <= e.MinY
}

// Width returns the horizontal span in map units.
func (e Extent) Width() float64 { return e.MaxX - e.MinX }

// Height returns the vertical span in map units.
func (e Extent) Height() float64 { return e.MaxY - e.MinY }

// Union returns the smallest extent covering both e and o. An empty extent
// acts as the identity.
func (e Extent) Union(o Extent) Extent {
	if e.Empty() {
		return o
	}
	if o.Empty() {
		return e
	}
	return Extent{
		MinX: math.Min(e.MinX, o.MinX),
		MinY: math.Min(e.MinY, o.MinY),
		MaxX: math.Max(e.MaxX, o.MaxX),
		MaxY: math.Max(e.MaxY, o.MaxY),
	}
}

// Intersect returns the overlap of e and o and whether it is non-empty.
func (e Extent) Intersect(o Extent) (Extent, bool) {
	r := Extent{
		MinX: math.Max(e.MinX, o.MinX),
		MinY: math.Max(e.MinY, o.MinY),
		MaxX: math.Min(e.MaxX, o.MaxX),
		MaxY: math.Min(e.MaxY, o.MaxY),
	}
	if r.Empty() {
		return Extent{}, false
	}
	return r, true
}

// Grid is a north-up, unrotated pixel lattice in map coordinates.
//
// OriginX/OriginY locate the outer top-left corner of pixel (0,0), not its
// centre. PixelW and PixelH are both positive; rows advance southward, so the
// map Y of row r's top edge is OriginY - r*PixelH.
type Grid struct {
	OriginX float64
	OriginY float64
	PixelW  float64
	PixelH  float64
	Cols    int
	Rows    int
}

// Extent returns the map-space footprint of the grid.
func (g Grid) Extent() Extent {
	return Extent{
		MinX: g.OriginX,
		MinY: g.OriginY - float64(g.Rows)*g.PixelH,
		MaxX: g.OriginX + float64(g.Cols)*g.PixelW,
		MaxY: g.OriginY,
	}
}

// SameResolution reports whether o has the same pixel size as g, within
// alignTolerance of one pixel per full axis span.
func (g Grid) SameResolution(o Grid) bool {
	return relClose(g.PixelW, o.PixelW) && relClose(g.PixelH, o.PixelH)
}

func relClose(a, b float64) bool {
	if a == b {
		return true
	}
	ref := math.Max(math.Abs(a), math.Abs(b))
	return math.Abs(a-b) <= ref*1e-6
}

// AlignsWith reports whether o's lattice sits on the same phase as g's, i.e.
// whether o's origin lands on a whole-pixel offset of g. Both grids must
// share a resolution for the answer to be meaningful.
func (g Grid) AlignsWith(o Grid) bool {
	fx := math.Abs(fracOffset((o.OriginX - g.OriginX) / g.PixelW))
	fy := math.Abs(fracOffset((g.OriginY - o.OriginY) / g.PixelH))
	return fx <= alignTolerance && fy <= alignTolerance
}

// fracOffset returns the signed distance from x to the nearest integer.
func fracOffset(x float64) float64 {
	return x - math.Round(x)
}

// PlacementIn returns the window that g's pixels occupy inside m's pixel
// space. The offset is rounded to the nearest whole pixel; callers validate
// alignment beforehand with AlignsWith.
func (g Grid) PlacementIn(m Grid) Window {
	dx := int(math.Round((g.OriginX - m.OriginX) / m.PixelW))
	dy := int(math.Round((m.OriginY - g.OriginY) / m.PixelH))
	return Window{X: dx, Y: dy, W: g.Cols, H: g.Rows}
}

// SnapTo returns a grid with e's coverage whose lattice is phase-aligned to
// ref: the origin is moved outward (north-west) onto ref's lattice and the
// pixel counts grow to keep all of e covered.
func SnapTo(e Extent, ref Grid) (Grid, error) {
	if e.Empty() {
		return Grid{}, fmt.Errorf("snap: empty extent")
	}
	if ref.PixelW <= 0 || ref.PixelH <= 0 {
		return Grid{}, fmt.Errorf("snap: non-positive pixel size %gx%g", ref.PixelW, ref.PixelH)
	}
	ox := ref.OriginX + math.Floor((e.MinX-ref.OriginX)/ref.PixelW+alignTolerance)*ref.PixelW
	oy := ref.OriginY - math.Floor((ref.OriginY-e.MaxY)/ref.PixelH+alignTolerance)*ref.PixelH
	cols := int(math.Ceil((e.MaxX - ox) / ref.PixelW * (1 - 1e-12)))
	rows := int(math.Ceil((oy - e.MinY) / ref.PixelH * (1 - 1e-12)))
	if cols < 1 || rows < 1 {
		return Grid{}, fmt.Errorf("snap: degenerate grid %dx%d", cols, rows)
	}
	return Grid{
		OriginX: ox,
		OriginY: oy,
		PixelW:  ref.PixelW,
		PixelH:  ref.PixelH,
		Cols:    cols,
		Rows:    rows,
	}, nil
}

// Window is a rectangle in pixel coordinates: X/Y is the top-left pixel, W/H
// the size in pixels. Windows may describe regions outside their grid; the
// tile reader fills such pixels as invalid.
type Window struct {
	X, Y, W, H int
}

// Empty reports whether the window covers no pixels.
func (w Window) Empty() bool { return w.W <= 0 || w.H <= 0 }

// Size returns the number of pixels in the window.
func (w Window) Size() int {
	if w.Empty() {
		return 0
	}
	return w.W * w.H
}

// Intersect clips w against o. The result may be empty.
func (w Window) Intersect(o Window) Window {
	x0 := max(w.X, o.X)
	y0 := max(w.Y, o.Y)
	x1 := min(w.X+w.W, o.X+o.W)
	y1 := min(w.Y+w.H, o.Y+o.H)
	if x1 <= x0 || y1 <= y0 {
		return Window{}
	}
	return Window{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Overlaps reports whether w and o share at least one pixel.
func (w Window) Overlaps(o Window) bool {
	return !w.Intersect(o).Empty()
}

// Translate shifts the window by (dx, dy) pixels.
func (w Window) Translate(dx, dy int) Window {
	return Window{X: w.X + dx, Y: w.Y + dy, W: w.W, H: w.H}
}

// Grow pads the window by n pixels on every side.
func (w Window) Grow(n int) Window {
	return Window{X: w.X - n, Y: w.Y - n, W: w.W + 2*n, H: w.H + 2*n}
}

func (w Window) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", w.W, w.H, w.X, w.Y)
}
