package mosaic

import (
	"context"
	"fmt"
	"sync"

	"github.com/uav4geo/QRasterMerge/internal/histmatch"
	"github.com/uav4geo/QRasterMerge/internal/raster"
	"github.com/uav4geo/QRasterMerge/internal/statcache"
)

// computeStats runs the statistics pass: for every non-reference layer,
// accumulate source and reference histograms over their mutual overlap and
// turn them into transfer functions. Must complete before any compositing,
// since a transfer built from partial statistics would shift tonality
// between early and late tiles.
func (m *merger) computeStats(ctx context.Context) error {
	p := m.plan
	p.setIdentityTransfers()
	if m.opts.Equalize == EqualizeNone {
		return nil
	}

	ref := p.layers[0]
	others := p.layers[1:]
	total := len(others)

	sem := make(chan struct{}, m.opts.Workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	done := 0

	for _, pl := range others {
		wg.Add(1)
		go func(pl *placedLayer) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			mu.Lock()
			failed := firstErr != nil
			mu.Unlock()
			if failed || ctx.Err() != nil {
				return
			}

			stats, cached, err := m.layerStats(ctx, pl)
			if err == nil {
				err = m.assignTransfers(pl, stats)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			m.matching = append(m.matching, MatchInfo{
				Layer:     pl.layer.Name(),
				Reference: ref.layer.Name(),
				Overlap:   stats.Overlap,
				Cached:    cached,
				Channels:  stats.Channels,
				Transfers: transfersOf(pl),
			})
			done++
			m.emit(Progress{
				Phase:    PhaseStatistics,
				Done:     done,
				Total:    total,
				Layer:    pl.layer.Name(),
				Fraction: float64(done) / float64(total),
			})
		}(pl)
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return wrapErr(KindCancelled, "statistics", err)
	}
	return nil
}

func transfersOf(pl *placedLayer) []histmatch.TransferFunc {
	if pl.lch != nil {
		return []histmatch.TransferFunc{pl.lch.L, pl.lch.C, pl.lch.H}
	}
	return pl.transfers
}

// assignTransfers compiles stats into the layer's active transfers.
func (m *merger) assignTransfers(pl *placedLayer, stats *histmatch.LayerStats) error {
	fns, err := stats.BuildTransfers()
	if err != nil {
		return wrapErr(KindConfiguration, "match "+pl.layer.Name(), err)
	}
	if m.opts.Equalize == EqualizeLCh {
		_, hi := pl.layer.DataType().Range()
		pl.lch = &histmatch.LChTransfer{Max: hi, L: fns[0], C: fns[1], H: fns[2]}
		pl.transfers = nil
		return nil
	}
	pl.transfers = fns
	return nil
}

// layerStats fetches stats from the cache or accumulates them. The second
// return reports a cache hit.
func (m *merger) layerStats(ctx context.Context, pl *placedLayer) (*histmatch.LayerStats, bool, error) {
	key, keyed := m.cacheKey(pl)
	if keyed {
		stats, ok, err := m.opts.Stats.Get(key)
		if err != nil {
			m.log.Warn("stats cache read failed, recomputing", "layer", pl.layer.Name(), "err", err)
		} else if ok && len(stats.Channels) == m.statsChannels() {
			m.log.Debug("stats cache hit", "layer", pl.layer.Name())
			return stats, true, nil
		}
	}

	stats, err := m.accumulateStats(ctx, pl)
	if err != nil {
		return nil, false, err
	}
	if keyed {
		if err := m.opts.Stats.Put(key, stats); err != nil {
			m.log.Warn("stats cache write failed", "layer", pl.layer.Name(), "err", err)
		}
	}
	return stats, false, nil
}

// cacheKey derives the stats cache key for a layer. Caching needs the
// cache itself plus fingerprints on both the layer and the reference.
func (m *merger) cacheKey(pl *placedLayer) (string, bool) {
	if m.opts.Stats == nil {
		return "", false
	}
	srcFP, ok := fingerprintOf(pl.layer)
	if !ok {
		return "", false
	}
	refFP, ok := fingerprintOf(m.plan.layers[0].layer)
	if !ok {
		return "", false
	}
	return statcache.Key(srcFP, refFP, m.opts.Equalize.String()), true
}

func fingerprintOf(l raster.Layer) (string, bool) {
	fp, ok := l.(raster.Fingerprinter)
	if !ok {
		return "", false
	}
	return fp.Fingerprint()
}

// statsChannels returns how many channel pairs a LayerStats must hold for
// the current mode.
func (m *merger) statsChannels() int {
	if m.opts.Equalize == EqualizeLCh {
		return 3
	}
	return m.plan.bands
}

// accumulateStats streams the overlap of one layer with the reference and
// bins every mutually valid pixel. Without any overlap it falls back to
// both layers' full extents, which still aligns global tonality.
func (m *merger) accumulateStats(ctx context.Context, pl *placedLayer) (*histmatch.LayerStats, error) {
	ref := m.plan.layers[0]
	overlap := pl.placement.Intersect(ref.placement)

	acc, err := m.newAccumulator(pl)
	if err != nil {
		return nil, wrapErr(KindConfiguration, "statistics "+pl.layer.Name(), err)
	}

	if !overlap.Empty() {
		err = m.walkTiles(ctx, overlap, func(w raster.Window) error {
			src, err := m.readFor(ctx, pl, w)
			if err != nil {
				return err
			}
			refTile, err := m.readFor(ctx, ref, w)
			if err != nil {
				return err
			}
			acc.addPair(src, refTile)
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		m.log.Warn("no overlap with reference, matching against full extents",
			"layer", pl.layer.Name(), "reference", ref.layer.Name())
		err = m.walkTiles(ctx, pl.placement, func(w raster.Window) error {
			src, err := m.readFor(ctx, pl, w)
			if err != nil {
				return err
			}
			acc.addSource(src)
			return nil
		})
		if err != nil {
			return nil, err
		}
		err = m.walkTiles(ctx, ref.placement, func(w raster.Window) error {
			refTile, err := m.readFor(ctx, ref, w)
			if err != nil {
				return err
			}
			acc.addReference(refTile)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return acc.stats(pl.layer.Name(), !overlap.Empty()), nil
}

// walkTiles visits a mosaic-space region in tile-size windows, checking for
// cancellation between tiles.
func (m *merger) walkTiles(ctx context.Context, region raster.Window, fn func(raster.Window) error) error {
	ts := m.plan.tileSize
	for y := region.Y; y < region.Y+region.H; y += ts {
		for x := region.X; x < region.X+region.W; x += ts {
			if err := ctx.Err(); err != nil {
				return wrapErr(KindCancelled, "statistics", err)
			}
			w := raster.Window{X: x, Y: y, W: ts, H: ts}.Intersect(region)
			if err := fn(w); err != nil {
				return err
			}
		}
	}
	return nil
}

// readFor reads a mosaic-space window from a placed layer. Stats reads are
// per-goroutine, so tiles are allocated here rather than pooled.
func (m *merger) readFor(ctx context.Context, pl *placedLayer, w raster.Window) (*raster.Tile, error) {
	t := raster.NewTile(raster.Window{}, pl.layer.Bands())
	lw := w.Translate(-pl.placement.X, -pl.placement.Y)
	if err := raster.ReadTile(ctx, pl.layer, lw, t); err != nil {
		return nil, wrapErr(KindRead, "read "+pl.layer.Name(), err)
	}
	return t, nil
}

// accumulator bins samples for one layer/reference pairing.
type accumulator struct {
	mode  EqualizeMode
	max   float64
	src   []*histmatch.Histogram
	ref   []*histmatch.Histogram
	names []string
}

func (m *merger) newAccumulator(pl *placedLayer) (*accumulator, error) {
	acc := &accumulator{mode: m.opts.Equalize}
	_, acc.max = pl.layer.DataType().Range()

	if acc.mode == EqualizeLCh {
		srcH, err := histmatch.LChHistograms()
		if err != nil {
			return nil, err
		}
		refH, err := histmatch.LChHistograms()
		if err != nil {
			return nil, err
		}
		acc.src = srcH
		acc.ref = refH
		acc.names = []string{"L", "C", "H"}
		return acc, nil
	}

	for b := 0; b < m.plan.bands; b++ {
		sh, err := histmatch.NewForLayer(pl.layer)
		if err != nil {
			return nil, err
		}
		rh, err := histmatch.NewForLayer(m.plan.layers[0].layer)
		if err != nil {
			return nil, err
		}
		acc.src = append(acc.src, sh)
		acc.ref = append(acc.ref, rh)
		acc.names = append(acc.names, fmt.Sprintf("band %d", b+1))
	}
	return acc, nil
}

// addPair bins pixels valid in both tiles. The tiles cover the same
// mosaic-space window.
func (a *accumulator) addPair(src, ref *raster.Tile) {
	for i, ok := range src.Valid {
		if !ok || !ref.Valid[i] {
			continue
		}
		a.addPixel(a.src, src, i)
		a.addPixel(a.ref, ref, i)
	}
}

func (a *accumulator) addSource(t *raster.Tile) {
	for i, ok := range t.Valid {
		if ok {
			a.addPixel(a.src, t, i)
		}
	}
}

func (a *accumulator) addReference(t *raster.Tile) {
	for i, ok := range t.Valid {
		if ok {
			a.addPixel(a.ref, t, i)
		}
	}
}

func (a *accumulator) addPixel(hists []*histmatch.Histogram, t *raster.Tile, i int) {
	if a.mode == EqualizeLCh {
		histmatch.AddLCh(hists, a.max, t.Bands[0][i], t.Bands[1][i], t.Bands[2][i])
		return
	}
	for b := range hists {
		hists[b].Add(t.Bands[b][i])
	}
}

func (a *accumulator) stats(layer string, overlap bool) *histmatch.LayerStats {
	s := &histmatch.LayerStats{Layer: layer, Overlap: overlap}
	for i := range a.src {
		s.Channels = append(s.Channels, histmatch.ChannelStats{
			Name:      a.names[i],
			Source:    a.src[i],
			Reference: a.ref[i],
		})
	}
	return s
}
