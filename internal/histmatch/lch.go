package histmatch

import (
	"github.com/lucasb-eyer/go-colorful"

	"github.com/uav4geo/QRasterMerge/internal/raster"
)

// LCh channel domains. L is go-colorful's [0,1] lightness; C tops out
// around 1.34 for sRGB corners, so 1.5 leaves headroom; H is degrees.
const (
	lchMaxL = 1.0
	lchMaxC = 1.5
	lchMaxH = 360.0
)

// LChHistograms allocates the three channel histograms (L, C, H) used when
// matching in LCh space.
func LChHistograms() ([]*Histogram, error) {
	maxes := []float64{lchMaxL, lchMaxC, lchMaxH}
	hs := make([]*Histogram, len(maxes))
	for i, m := range maxes {
		h, err := NewContinuous(0, m, BinsFloat32)
		if err != nil {
			return nil, err
		}
		hs[i] = h
	}
	return hs, nil
}

// RGBToLCh converts a normalized [0,1] RGB triple to L, C, H.
func RGBToLCh(r, g, b float64) (l, c, h float64) {
	hh, cc, ll := colorful.Color{R: r, G: g, B: b}.Hcl()
	if hh < 0 {
		hh += 360
	}
	return ll, cc, hh
}

// LChToRGB converts back to RGB, clamped into [0,1]: matched channels can
// land slightly outside the sRGB gamut.
func LChToRGB(l, c, h float64) (r, g, b float64) {
	col := colorful.Hcl(h, c, l).Clamped()
	return col.R, col.G, col.B
}

// AddLCh converts an RGB pixel in native range [0, max] and counts it into
// the three channel histograms (L, C, H order).
func AddLCh(hists []*Histogram, max, r, g, b float64) {
	l, c, h := RGBToLCh(r/max, g/max, b/max)
	hists[0].Add(l)
	hists[1].Add(c)
	hists[2].Add(h)
}

// LChTransfer applies per-channel transfers in LCh space to RGB pixels in
// native range [0, Max].
type LChTransfer struct {
	Max     float64
	L, C, H TransferFunc
}

// Identity reports whether all three channel transfers are identities.
func (t *LChTransfer) Identity() bool {
	return IsIdentity(t.L) && IsIdentity(t.C) && IsIdentity(t.H)
}

// ApplyPixel maps one native-range RGB triple.
func (t *LChTransfer) ApplyPixel(r, g, b float64) (float64, float64, float64) {
	l, c, h := RGBToLCh(r/t.Max, g/t.Max, b/t.Max)
	l = t.L.Apply(l)
	c = t.C.Apply(c)
	h = t.H.Apply(h)
	rr, gg, bb := LChToRGB(l, c, h)
	return rr * t.Max, gg * t.Max, bb * t.Max
}

// ApplyTile rewrites a three-band tile in place, valid pixels only.
func (t *LChTransfer) ApplyTile(tile *raster.Tile) {
	if t.Identity() {
		return
	}
	r, g, b := tile.Bands[0], tile.Bands[1], tile.Bands[2]
	for i, ok := range tile.Valid {
		if !ok {
			continue
		}
		r[i], g[i], b[i] = t.ApplyPixel(r[i], g[i], b[i])
	}
}

// ApplyBands rewrites tile samples in place with one transfer per band,
// valid pixels only.
func ApplyBands(tile *raster.Tile, fns []TransferFunc) {
	for b, fn := range fns {
		if IsIdentity(fn) {
			continue
		}
		buf := tile.Bands[b]
		for i, ok := range tile.Valid {
			if !ok {
				continue
			}
			buf[i] = fn.Apply(buf[i])
		}
	}
}
