package raster

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"

	"github.com/anthonynsimon/bild/clone"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
)

// OpenImage loads a georeferenced image file as a layer.
//
// The image is decoded whole; stdlib decoders materialize the full frame
// anyway, so a file-backed window reader would not save memory here. The
// engine's working-set bound comes from its tile buffers, not from input
// pinning. Georeferencing is read from the sidecar worldfile next to path;
// a missing worldfile is an error.
//
// Alpha channels become the layer's validity mask: pixels with zero alpha
// carry no data. When nodata is non-nil the sentinel rule applies on top of
// the mask.
func OpenImage(path string, nodata *float64) (*MemoryLayer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	grid, err := GridForImage(path, img.Bounds().Dx(), img.Bounds().Dy())
	if err != nil {
		return nil, err
	}

	l, err := LayerFromImage(path, img, grid, nodata)
	if err != nil {
		return nil, err
	}

	if stat, err := os.Stat(path); err == nil {
		l.SetFingerprint(fmt.Sprintf("%s|%d|%d", path, stat.Size(), stat.ModTime().UnixNano()))
	}
	return l, nil
}

// GridForImage resolves the pixel lattice of an image file from its sidecar
// worldfile.
func GridForImage(path string, cols, rows int) (Grid, error) {
	wfPath, ok := FindWorldfile(path)
	if !ok {
		return Grid{}, fmt.Errorf("%s: no worldfile found (looked for %s)", path, WorldfileName(path))
	}
	wf, err := ReadWorldfile(wfPath)
	if err != nil {
		return Grid{}, err
	}
	return wf.Grid(cols, rows), nil
}

// LayerFromImage converts a decoded image into a layer on grid.
//
// Grayscale images become one band, everything else three bands (RGB).
// 16-bit source types (RGBA64, NRGBA64, Gray16) keep their full range as
// Uint16; all other types decode as Uint8.
func LayerFromImage(name string, img image.Image, grid Grid, nodata *float64) (*MemoryLayer, error) {
	b := img.Bounds()
	if grid.Cols != b.Dx() || grid.Rows != b.Dy() {
		return nil, fmt.Errorf("layer %s: grid %dx%d does not match image %dx%d",
			name, grid.Cols, grid.Rows, b.Dx(), b.Dy())
	}

	hasAlpha := false
	depth16 := false
	switch img.(type) {
	case *image.RGBA, *image.NRGBA, *image.NYCbCrA:
		hasAlpha = true
	case *image.RGBA64, *image.NRGBA64:
		hasAlpha = true
		depth16 = true
	case *image.Gray16:
		depth16 = true
	}

	var (
		bands [][]float64
		valid []bool
		dtype DataType
	)
	switch src := img.(type) {
	case *image.Gray:
		dtype = Uint8
		bands = grayBand(src.Pix, src.Stride, b, 1)
	case *image.Gray16:
		dtype = Uint16
		bands = grayBand(src.Pix, src.Stride, b, 2)
	default:
		if depth16 {
			dtype = Uint16
			bands, valid = colorBands16(img)
		} else {
			dtype = Uint8
			bands, valid = colorBands8(img)
		}
	}
	if !hasAlpha {
		valid = nil
	}

	l, err := NewMemoryLayer(name, grid, dtype, bands)
	if err != nil {
		return nil, err
	}
	if valid != nil {
		l.SetValidMask(valid)
	}
	if nodata != nil {
		l.SetNoData(*nodata)
	}
	return l, nil
}

func grayBand(pix []uint8, stride int, b image.Rectangle, size int) [][]float64 {
	w, h := b.Dx(), b.Dy()
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := pix[y*stride:]
		for x := 0; x < w; x++ {
			if size == 2 {
				out[y*w+x] = float64(uint16(row[2*x])<<8 | uint16(row[2*x+1]))
			} else {
				out[y*w+x] = float64(row[x])
			}
		}
	}
	return [][]float64{out}
}

// colorBands8 extracts RGB bands from any 8-bit color image. The image is
// normalized to RGBA once so rows can be walked without per-pixel interface
// calls; premultiplied samples are restored with the straight-alpha values.
func colorBands8(img image.Image) (bands [][]float64, valid []bool) {
	rgba := clone.AsRGBA(img)
	w, h := rgba.Bounds().Dx(), rgba.Bounds().Dy()
	r := make([]float64, w*h)
	g := make([]float64, w*h)
	bl := make([]float64, w*h)
	valid = make([]bool, w*h)
	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < w; x++ {
			i := y*w + x
			a := row[4*x+3]
			valid[i] = a != 0
			if a == 0 {
				continue
			}
			rr, gg, bb := row[4*x], row[4*x+1], row[4*x+2]
			if a != 255 {
				rr = uint8(int(rr) * 255 / int(a))
				gg = uint8(int(gg) * 255 / int(a))
				bb = uint8(int(bb) * 255 / int(a))
			}
			r[i] = float64(rr)
			g[i] = float64(gg)
			bl[i] = float64(bb)
		}
	}
	return [][]float64{r, g, bl}, valid
}

func colorBands16(img image.Image) (bands [][]float64, valid []bool) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	r := make([]float64, w*h)
	g := make([]float64, w*h)
	bl := make([]float64, w*h)
	valid = make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			rr, gg, bb, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			valid[i] = a != 0
			if a == 0 {
				continue
			}
			if a != 0xffff {
				rr = rr * 0xffff / a
				gg = gg * 0xffff / a
				bb = bb * 0xffff / a
			}
			r[i] = float64(rr)
			g[i] = float64(gg)
			bl[i] = float64(bb)
		}
	}
	return [][]float64{r, g, bl}, valid
}

// Preview renders a downsampled view of a layer, at most maxDim pixels on
// the long side, reading row strips so arbitrarily large layers stay cheap.
// Invalid pixels come out transparent.
func Preview(ctx context.Context, l Layer, maxDim int) (*image.NRGBA, error) {
	g := l.Grid()
	stride := 1
	if g.Cols > maxDim || g.Rows > maxDim {
		stride = (max(g.Cols, g.Rows) + maxDim - 1) / maxDim
	}
	pw := (g.Cols + stride - 1) / stride
	ph := (g.Rows + stride - 1) / stride

	lo, hi := l.DataType().Range()
	if fr, ok := l.(FloatRanger); ok {
		lo, hi = fr.FloatRange()
	}
	scale := 255 / (hi - lo)

	out := image.NewNRGBA(image.Rect(0, 0, pw, ph))
	t := NewTile(Window{}, l.Bands())
	for py := 0; py < ph; py++ {
		row := Window{X: 0, Y: py * stride, W: g.Cols, H: 1}
		if err := ReadTile(ctx, l, row, t); err != nil {
			return nil, err
		}
		for px := 0; px < pw; px++ {
			x := px * stride
			if !t.Valid[x] {
				continue
			}
			var r, gg, b uint8
			if l.Bands() >= 3 {
				r = scaleSample(t.Bands[0][x], lo, scale)
				gg = scaleSample(t.Bands[1][x], lo, scale)
				b = scaleSample(t.Bands[2][x], lo, scale)
			} else {
				r = scaleSample(t.Bands[0][x], lo, scale)
				gg, b = r, r
			}
			i := out.PixOffset(px, py)
			out.Pix[i] = r
			out.Pix[i+1] = gg
			out.Pix[i+2] = b
			out.Pix[i+3] = 255
		}
	}
	return out, nil
}

func scaleSample(v, lo, scale float64) uint8 {
	s := (v - lo) * scale
	if s < 0 {
		s = 0
	}
	if s > 255 {
		s = 255
	}
	return uint8(s + 0.5)
}
