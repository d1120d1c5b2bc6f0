package mosaic

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/uav4geo/QRasterMerge/internal/feather"
	"github.com/uav4geo/QRasterMerge/internal/histmatch"
	"github.com/uav4geo/QRasterMerge/internal/raster"
)

type merger struct {
	plan  *plan
	opts  Options
	dest  raster.Dataset
	log   *log.Logger
	runID string

	matching []MatchInfo
}

// Merge composites layers into dest. The first layer is the reference: it
// fixes the output lattice and the tonal target for histogram matching.
// Later layers blend over earlier ones across the blend distance.
//
// On success dest is finalized. On any error, including cancellation, dest
// is discarded instead, so a partial output never looks complete. The
// returned error carries a Kind; cancellation surfaces as KindCancelled
// and matches errors.Is(err, context.Canceled).
func Merge(ctx context.Context, layers []raster.Layer, dest raster.Dataset, opts Options) (*Result, error) {
	start := time.Now()
	opts = opts.withDefaults()

	p, err := buildPlan(layers, dest, opts)
	if err != nil {
		return nil, err
	}

	m := &merger{
		plan:  p,
		opts:  opts,
		dest:  dest,
		runID: uuid.NewString(),
	}
	m.log = opts.Logger.With("run", m.runID[:8])

	m.log.Info("merge planned",
		"layers", len(p.layers),
		"cols", p.grid.Cols,
		"rows", p.grid.Rows,
		"tiles", p.tileCount(),
		"blend", opts.BlendDistance,
		"equalize", opts.Equalize.String(),
		"workers", opts.Workers)

	if err := m.computeStats(ctx); err != nil {
		return nil, m.abort(err)
	}

	written, err := m.composite(ctx)
	if err != nil {
		return nil, m.abort(err)
	}

	m.emit(Progress{Phase: PhaseFinalize, Done: written, Total: written, Fraction: 1})
	if err := m.dest.Finalize(ctx); err != nil {
		return nil, m.abort(wrapErr(KindWrite, "finalize", err))
	}

	res := &Result{
		RunID:        m.runID,
		Grid:         p.grid,
		Bands:        p.bands,
		Layers:       len(p.layers),
		TilesWritten: written,
		Equalize:     opts.Equalize,
		Matching:     m.matching,
		Elapsed:      time.Since(start),
	}
	m.log.Info("merge complete", "tiles", written, "elapsed", res.Elapsed.Round(time.Millisecond))
	return res, nil
}

// abort discards the destination and passes the failure through. Discard
// problems are logged, not returned: the original error is the story.
func (m *merger) abort(err error) error {
	if derr := m.dest.Discard(); derr != nil {
		m.log.Warn("discard failed after aborted merge", "err", derr)
	}
	if IsCancelled(err) {
		m.log.Info("merge cancelled")
	} else {
		m.log.Error("merge failed", "err", err)
	}
	return err
}

func (m *merger) emit(p Progress) {
	if m.opts.Progress == nil {
		return
	}
	p.RunID = m.runID
	m.opts.Progress(p)
}

// composite runs the tile pass: a bounded worker pool renders tiles and a
// single collector goroutine (this one) writes them, so the dataset sees
// exactly one writer. Tiles land in completion order; datasets address by
// window, so order does not matter.
func (m *merger) composite(ctx context.Context) (int, error) {
	total := m.plan.tileCount()
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tileCh := make(chan int)
	writeCh := make(chan *raster.Tile, m.opts.Workers)
	errCh := make(chan error, m.opts.Workers)

	go func() {
		defer close(tileCh)
		for i := 0; i < total; i++ {
			select {
			case tileCh <- i:
			case <-cctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < m.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scratch := raster.NewTile(raster.Window{}, m.plan.bands)
			for i := range tileCh {
				if cctx.Err() != nil {
					return
				}
				tile, err := m.renderTile(cctx, m.plan.tileWindow(i), scratch)
				if err != nil {
					select {
					case errCh <- err:
					default:
					}
					cancel()
					return
				}
				select {
				case writeCh <- tile:
				case <-cctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(writeCh)
	}()

	written := 0
	var writeErr error
	for tile := range writeCh {
		if writeErr != nil || cctx.Err() != nil {
			continue // drain so workers can exit
		}
		if err := m.dest.WriteTile(cctx, tile); err != nil {
			writeErr = wrapErr(KindWrite, "write tile", err)
			cancel()
			continue
		}
		written++
		m.emit(Progress{
			Phase:    PhaseCompositing,
			Done:     written,
			Total:    total,
			Fraction: float64(written) / float64(total),
		})
	}

	select {
	case err := <-errCh:
		return written, err
	default:
	}
	if writeErr != nil {
		return written, writeErr
	}
	if err := ctx.Err(); err != nil {
		return written, wrapErr(KindCancelled, "compositing", err)
	}
	return written, nil
}

// renderTile composites one mosaic tile. Every intersecting layer is read
// on a halo-padded window so its feather weights are exact; contributions
// are accumulated weighted and normalized per pixel.
func (m *merger) renderTile(ctx context.Context, tw raster.Window, scratch *raster.Tile) (*raster.Tile, error) {
	p := m.plan
	halo := m.opts.BlendDistance
	blend := float64(m.opts.BlendDistance)
	padded := tw.Grow(halo)

	out := raster.NewTile(tw, p.bands)
	wsum := make([]float64, tw.Size())

	for _, pl := range p.layers {
		if !pl.placement.Overlaps(tw) {
			continue
		}
		lw := padded.Translate(-pl.placement.X, -pl.placement.Y)
		if err := raster.ReadTile(ctx, pl.layer, lw, scratch); err != nil {
			return nil, wrapErr(KindRead, "read "+pl.layer.Name(), err)
		}

		if pl.lch != nil {
			pl.lch.ApplyTile(scratch)
		} else {
			histmatch.ApplyBands(scratch, pl.transfers)
		}

		mask := feather.Compute(scratch.Valid, tw.W, tw.H, halo, blend)
		for y := 0; y < tw.H; y++ {
			for x := 0; x < tw.W; x++ {
				pi := y*tw.W + x
				wgt := mask.Weights[pi]
				if wgt <= 0 {
					continue
				}
				si := (y+halo)*padded.W + (x + halo)
				for b := 0; b < p.bands; b++ {
					out.Bands[b][pi] += wgt * scratch.Bands[b][si]
				}
				wsum[pi] += wgt
			}
		}
	}

	lo, hi := p.dtype.Range()
	clamp := p.dtype.Integral()
	for pi, ws := range wsum {
		if ws <= 0 {
			continue
		}
		out.Valid[pi] = true
		for b := 0; b < p.bands; b++ {
			v := out.Bands[b][pi] / ws
			if clamp {
				if v < lo {
					v = lo
				}
				if v > hi {
					v = hi
				}
			}
			out.Bands[b][pi] = v
		}
	}
	return out, nil
}
