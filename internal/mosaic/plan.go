package mosaic

import (
	"github.com/uav4geo/QRasterMerge/internal/histmatch"
	"github.com/uav4geo/QRasterMerge/internal/raster"
)

// placedLayer is one input fixed into mosaic pixel space, with the
// transfers the statistics pass assigned to it.
type placedLayer struct {
	layer     raster.Layer
	placement raster.Window

	// Exactly one of these is active after the statistics pass: transfers
	// in RGB mode (identity when matching is off or degenerate), lch in
	// LCh mode. The reference layer always gets identities.
	transfers []histmatch.TransferFunc
	lch       *histmatch.LChTransfer
}

// plan is a validated merge: the union grid, placed layers and tiling.
type plan struct {
	grid     raster.Grid
	bands    int
	dtype    raster.DataType
	layers   []*placedLayer
	tileSize int
	tilesX   int
	tilesY   int
}

// PlanGrid computes the output lattice for a set of layers: the union of
// their extents snapped outward onto the first layer's lattice. The first
// layer is the reference for both geometry and histogram matching.
func PlanGrid(layers []raster.Layer) (raster.Grid, error) {
	if err := validateLayers(layers); err != nil {
		return raster.Grid{}, err
	}
	var union raster.Extent
	for _, l := range layers {
		union = union.Union(l.Grid().Extent())
	}
	grid, err := raster.SnapTo(union, layers[0].Grid())
	if err != nil {
		return raster.Grid{}, configErrorf("mosaic grid: %v", err)
	}
	return grid, nil
}

func validateLayers(layers []raster.Layer) error {
	if len(layers) < 2 {
		return configErrorf("at least two raster layers are required, got %d", len(layers))
	}
	ref := layers[0]
	for _, l := range layers[1:] {
		if l.Bands() != ref.Bands() {
			return configErrorf("layer %s has %d bands, reference %s has %d",
				l.Name(), l.Bands(), ref.Name(), ref.Bands())
		}
		if l.DataType() != ref.DataType() {
			return configErrorf("layer %s is %s, reference %s is %s",
				l.Name(), l.DataType(), ref.Name(), ref.DataType())
		}
		if !ref.Grid().SameResolution(l.Grid()) {
			return configErrorf("layer %s resolution %gx%g does not match reference %gx%g",
				l.Name(), l.Grid().PixelW, l.Grid().PixelH, ref.Grid().PixelW, ref.Grid().PixelH)
		}
		if !ref.Grid().AlignsWith(l.Grid()) {
			return configErrorf("layer %s is not co-registered with %s: pixel lattices are offset by a fraction of a pixel",
				l.Name(), ref.Name())
		}
	}
	return nil
}

// buildPlan validates everything a run needs before pixel work starts.
func buildPlan(layers []raster.Layer, dest raster.Dataset, opts Options) (*plan, error) {
	if opts.BlendDistance < 1 {
		return nil, configErrorf("blend distance must be at least 1 pixel, got %d", opts.BlendDistance)
	}
	if opts.TileSize < 1 {
		return nil, configErrorf("tile size must be positive, got %d", opts.TileSize)
	}
	if opts.Workers < 1 {
		return nil, configErrorf("workers must be positive, got %d", opts.Workers)
	}
	grid, err := PlanGrid(layers)
	if err != nil {
		return nil, err
	}
	ref := layers[0]
	if opts.Equalize == EqualizeLCh {
		if ref.Bands() != 3 {
			return nil, configErrorf("lch equalization needs 3-band imagery, layers have %d", ref.Bands())
		}
		if !ref.DataType().Integral() {
			return nil, configErrorf("lch equalization needs integer imagery, layers are %s", ref.DataType())
		}
	}
	if dest == nil {
		return nil, configErrorf("no destination dataset")
	}
	if dest.Grid() != grid {
		return nil, configErrorf("destination grid %dx%d does not match planned mosaic %dx%d",
			dest.Grid().Cols, dest.Grid().Rows, grid.Cols, grid.Rows)
	}
	if dest.Bands() != ref.Bands() {
		return nil, configErrorf("destination has %d bands, layers have %d", dest.Bands(), ref.Bands())
	}

	p := &plan{
		grid:     grid,
		bands:    ref.Bands(),
		dtype:    ref.DataType(),
		tileSize: opts.TileSize,
		tilesX:   (grid.Cols + opts.TileSize - 1) / opts.TileSize,
		tilesY:   (grid.Rows + opts.TileSize - 1) / opts.TileSize,
	}
	for _, l := range layers {
		p.layers = append(p.layers, &placedLayer{
			layer:     l,
			placement: l.Grid().PlacementIn(grid),
		})
	}
	return p, nil
}

func (p *plan) tileCount() int { return p.tilesX * p.tilesY }

// tileWindow returns the i-th tile in row-major tile order, clipped to the
// mosaic edge.
func (p *plan) tileWindow(i int) raster.Window {
	tx := i % p.tilesX
	ty := i / p.tilesX
	w := raster.Window{
		X: tx * p.tileSize,
		Y: ty * p.tileSize,
		W: p.tileSize,
		H: p.tileSize,
	}
	return w.Intersect(raster.Window{W: p.grid.Cols, H: p.grid.Rows})
}

// setIdentityTransfers gives every layer pass-through transfers, used when
// equalization is off.
func (p *plan) setIdentityTransfers() {
	for _, pl := range p.layers {
		fns := make([]histmatch.TransferFunc, p.bands)
		for i := range fns {
			fns[i] = histmatch.Identity{}
		}
		pl.transfers = fns
	}
}
