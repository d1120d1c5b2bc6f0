package cli

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/uav4geo/QRasterMerge/internal/raster"
)

func runMergeCmd(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newMergeCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

// writeStripedPNG saves a gray PNG whose rows alternate between two values,
// with a worldfile at (ox, oy). Two-tone content keeps histograms
// non-degenerate so equalization has something to match.
func writeStripedPNG(t *testing.T, path string, w, h int, even, odd uint8, ox, oy float64) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		v := even
		if y%2 == 1 {
			v = odd
		}
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
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

// Two striped strips with a four-column overlap. RGB equalization maps the
// darker east strip (60/100 rows) onto the west strip (100/140 rows), so the
// finished mosaic alternates 100 and 140 by row across its full width.
func TestMergeCommandEndToEnd(t *testing.T) {
	dir := t.TempDir()
	west := filepath.Join(dir, "west.png")
	east := filepath.Join(dir, "east.png")
	writeStripedPNG(t, west, 8, 6, 100, 140, 0, 6)
	writeStripedPNG(t, east, 8, 6, 60, 100, 4, 6)

	out := filepath.Join(dir, "mosaic.png")
	preview := filepath.Join(dir, "preview.png")
	reportPath := filepath.Join(dir, "matching.html")
	err := runMergeCmd(t,
		"--output", out,
		"--blend-distance", "2",
		"--tile-size", "4",
		"--workers", "2",
		"--no-stats-cache",
		"--preview", preview,
		"--report", reportPath,
		west, east)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open mosaic: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode mosaic: %v", err)
	}
	if w, h := img.Bounds().Dx(), img.Bounds().Dy(); w != 12 || h != 6 {
		t.Fatalf("mosaic is %dx%d, want 12x6", w, h)
	}
	for _, pt := range [][2]int{{0, 0}, {6, 0}, {11, 0}, {0, 3}, {6, 3}, {11, 3}} {
		want := uint32(100)
		if pt[1]%2 == 1 {
			want = 140
		}
		r, g, b, a := img.At(pt[0], pt[1]).RGBA()
		if r>>8 != want || g>>8 != want || b>>8 != want || a>>8 != 255 {
			t.Errorf("pixel (%d,%d) = %d %d %d %d, want %d %d %d 255",
				pt[0], pt[1], r>>8, g>>8, b>>8, a>>8, want, want, want)
		}
	}

	back, err := raster.OpenImage(out, nil)
	if err != nil {
		t.Fatalf("reopen mosaic with worldfile: %v", err)
	}
	g := back.Grid()
	if g.OriginX != 0 || g.OriginY != 6 || g.Cols != 12 || g.Rows != 6 {
		t.Errorf("mosaic grid = %+v", g)
	}

	pf, err := os.Open(preview)
	if err != nil {
		t.Fatalf("open preview: %v", err)
	}
	defer pf.Close()
	pimg, err := png.Decode(pf)
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if w, h := pimg.Bounds().Dx(), pimg.Bounds().Dy(); w != 12 || h != 6 {
		t.Errorf("preview is %dx%d, want 12x6", w, h)
	}

	html, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(html), "east.png") {
		t.Error("report does not mention the matched layer")
	}
}

func TestMergeCommandJobFile(t *testing.T) {
	dir := t.TempDir()
	west := filepath.Join(dir, "west.png")
	east := filepath.Join(dir, "east.png")
	writeTestPNG(t, west, 8, 6, color.NRGBA{R: 80, G: 80, B: 80, A: 255}, 0, 6)
	writeTestPNG(t, east, 8, 6, color.NRGBA{R: 120, G: 120, B: 120, A: 255}, 4, 6)

	out := filepath.Join(dir, "mosaic.bsq")
	job := filepath.Join(dir, "job.toml")
	spec := fmt.Sprintf(`
output = %q
equalize = "none"
blend_distance = 2
tile_size = 4

[[input]]
path = %q

[[input]]
path = %q
`, out, west, east)
	if err := os.WriteFile(job, []byte(spec), 0o644); err != nil {
		t.Fatalf("write job: %v", err)
	}

	reportPath := filepath.Join(dir, "matching.html")
	if err := runMergeCmd(t, "--job", job, "--report", reportPath); err != nil {
		t.Fatalf("merge: %v", err)
	}

	l, err := raster.OpenENVI(out)
	if err != nil {
		t.Fatalf("open mosaic: %v", err)
	}
	defer l.Close()
	if g := l.Grid(); g.Cols != 12 || g.Rows != 6 || g.OriginX != 0 || g.OriginY != 6 {
		t.Errorf("mosaic grid = %+v", g)
	}
	row := make([]float64, 12)
	if err := l.Read(context.Background(), 0, raster.Window{X: 0, Y: 0, W: 12, H: 1}, row); err != nil {
		t.Fatalf("read mosaic: %v", err)
	}
	if row[0] != 80 {
		t.Errorf("west edge = %v, want 80", row[0])
	}
	if row[11] != 120 {
		t.Errorf("east edge = %v, want 120", row[11])
	}

	// equalize none produces no matching statistics, so the report is
	// skipped rather than written empty.
	if _, err := os.Stat(reportPath); !os.IsNotExist(err) {
		t.Error("report written for a run without histogram matching")
	}
}

func TestMergeCommandValidation(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	writeTestPNG(t, a, 2, 2, color.NRGBA{A: 255}, 0, 2)
	writeTestPNG(t, b, 2, 2, color.NRGBA{A: 255}, 1, 2)
	out := filepath.Join(dir, "out.png")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no output", []string{a, b}, "no output path"},
		{"one input", []string{"--output", out, a}, "at least two"},
		{"bad equalize", []string{"--output", out, "--equalize", "purple", a, b}, "equalize"},
		{"bad nodata", []string{"--output", out, "--nodata", "abc", a, b}, "nodata"},
	}
	for _, tt := range tests {
		err := runMergeCmd(t, tt.args...)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: got %v, want %q", tt.name, err, tt.want)
		}
	}
}
