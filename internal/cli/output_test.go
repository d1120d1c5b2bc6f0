package cli

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/uav4geo/QRasterMerge/internal/raster"
)

// writeTestPNG saves a solid-color PNG with a worldfile anchoring its
// top-left corner at (ox, oy), one unit per pixel.
func writeTestPNG(t *testing.T, path string, w, h int, c color.NRGBA, ox, oy float64) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
	g := raster.Grid{OriginX: ox, OriginY: oy, PixelW: 1, PixelH: 1, Cols: w, Rows: h}
	if err := raster.WriteWorldfile(path, g); err != nil {
		t.Fatalf("worldfile for %s: %v", path, err)
	}
}

func TestOpenLayerDispatch(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "in.png")
	writeTestPNG(t, p, 3, 2, color.NRGBA{R: 10, G: 20, B: 30, A: 255}, 0, 2)

	l, closer, err := openLayer(p, nil)
	if err != nil {
		t.Fatalf("openLayer png: %v", err)
	}
	if closer != nil {
		t.Error("image layer returned a closer")
	}
	if l.Bands() != 3 || l.DataType() != raster.Uint8 {
		t.Errorf("got %d bands %v, want 3 bands uint8", l.Bands(), l.DataType())
	}

	if _, _, err := openLayer(filepath.Join(dir, "scan.xyz"), nil); err == nil ||
		!strings.Contains(err.Error(), "unsupported input format") {
		t.Errorf("unsupported extension: got %v", err)
	}
}

func TestCreateDatasetDispatch(t *testing.T) {
	dir := t.TempDir()
	grid := raster.Grid{OriginX: 0, OriginY: 4, PixelW: 1, PixelH: 1, Cols: 4, Rows: 4}

	envi, err := createDataset(filepath.Join(dir, "out.bsq"), grid, 3, raster.Uint8, nil)
	if err != nil {
		t.Fatalf("createDataset envi: %v", err)
	}
	if _, ok := envi.(*raster.ENVIDataset); !ok {
		t.Fatalf("got %T, want *raster.ENVIDataset", envi)
	}
	if err := envi.Discard(); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "out.bsq")); !os.IsNotExist(err) {
		t.Error("discard left the data file behind")
	}

	img, err := createDataset(filepath.Join(dir, "out.png"), grid, 3, raster.Uint8, nil)
	if err != nil {
		t.Fatalf("createDataset png: %v", err)
	}
	if _, ok := img.(*imageDataset); !ok {
		t.Fatalf("got %T, want *imageDataset", img)
	}

	if _, err := createDataset(filepath.Join(dir, "out.png"), grid, 3, raster.Float32, nil); err == nil {
		t.Error("float32 image output: want error")
	}
	if _, err := createDataset(filepath.Join(dir, "out.png"), grid, 2, raster.Uint8, nil); err == nil {
		t.Error("2-band image output: want error")
	}
	if _, err := createDataset(filepath.Join(dir, "out.xyz"), grid, 3, raster.Uint8, nil); err == nil {
		t.Error("unsupported extension: want error")
	}
}

func TestImageDatasetFinalizeWritesFiles(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "mosaic.png")
	grid := raster.Grid{OriginX: 10, OriginY: 8, PixelW: 1, PixelH: 1, Cols: 2, Rows: 2}

	ds, err := createDataset(out, grid, 3, raster.Uint8, nil)
	if err != nil {
		t.Fatalf("createDataset: %v", err)
	}
	tile := raster.NewTile(raster.Window{X: 0, Y: 0, W: 2, H: 2}, 3)
	for i := 0; i < 4; i++ {
		tile.Bands[0][i] = 40
		tile.Bands[1][i] = 80
		tile.Bands[2][i] = 120
		tile.Valid[i] = true
	}
	ctx := context.Background()
	if err := ds.WriteTile(ctx, tile); err != nil {
		t.Fatalf("WriteTile: %v", err)
	}
	if err := ds.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	decoded, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	r, g, b, a := decoded.At(1, 1).RGBA()
	if r>>8 != 40 || g>>8 != 80 || b>>8 != 120 || a>>8 != 255 {
		t.Errorf("pixel = %d %d %d %d, want 40 80 120 255", r>>8, g>>8, b>>8, a>>8)
	}

	wf := raster.WorldfileName(out)
	if _, err := os.Stat(wf); err != nil {
		t.Errorf("worldfile %s: %v", wf, err)
	}
	back, err := raster.OpenImage(out, nil)
	if err != nil {
		t.Fatalf("reopen mosaic: %v", err)
	}
	if back.Grid() != grid {
		t.Errorf("round-trip grid = %+v, want %+v", back.Grid(), grid)
	}
}

func TestImageDatasetDiscard(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "mosaic.png")
	grid := raster.Grid{OriginX: 0, OriginY: 1, PixelW: 1, PixelH: 1, Cols: 1, Rows: 1}

	ds, err := createDataset(out, grid, 3, raster.Uint8, nil)
	if err != nil {
		t.Fatalf("createDataset: %v", err)
	}
	if err := ds.Discard(); err != nil {
		t.Fatalf("discard before finalize: %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("discard left an output file")
	}
}

func TestFitDim(t *testing.T) {
	tests := []struct {
		cols, rows int
		wantW      int
		wantH      int
	}{
		{2048, 1024, 1024, 512},
		{1024, 4096, 256, 1024},
		{100, 200, 100, 200},
		{5000, 3, 1024, 1},
	}
	for _, tt := range tests {
		w, h := fitDim(tt.cols, tt.rows, 1024)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("fitDim(%d, %d) = %dx%d, want %dx%d", tt.cols, tt.rows, w, h, tt.wantW, tt.wantH)
		}
	}
}
