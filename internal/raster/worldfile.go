package raster

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Worldfile is the six-parameter affine transform stored beside image files
// (.pgw, .jgw, .tfw, .wld). Only north-up, unrotated transforms are
// supported: RotX and RotY must be zero and PixelH negative.
//
// Note the worldfile convention: X/Y locate the CENTRE of the top-left
// pixel, not its corner.
type Worldfile struct {
	PixelW float64 // A: map units per pixel, X axis
	RotY   float64 // D: row rotation (must be 0)
	RotX   float64 // B: column rotation (must be 0)
	PixelH float64 // E: map units per pixel, Y axis (negative)
	X      float64 // C: map X of the top-left pixel centre
	Y      float64 // F: map Y of the top-left pixel centre
}

// worldfileExt maps image extensions to their sidecar extension. The scheme
// is first+third letter of the image extension plus "w".
var worldfileExt = map[string]string{
	".png":  ".pgw",
	".jpg":  ".jgw",
	".jpeg": ".jgw",
	".tif":  ".tfw",
	".tiff": ".tfw",
	".gif":  ".gfw",
	".bmp":  ".bpw",
}

// WorldfileName returns the conventional sidecar path for an image path.
func WorldfileName(imagePath string) string {
	ext := strings.ToLower(filepath.Ext(imagePath))
	wext, ok := worldfileExt[ext]
	if !ok {
		wext = ".wld"
	}
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + wext
}

// FindWorldfile locates the sidecar for an image, trying the conventional
// extension first and .wld as a fallback.
func FindWorldfile(imagePath string) (string, bool) {
	name := WorldfileName(imagePath)
	if _, err := os.Stat(name); err == nil {
		return name, true
	}
	wld := strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".wld"
	if _, err := os.Stat(wld); err == nil {
		return wld, true
	}
	return "", false
}

// ReadWorldfile parses a worldfile and rejects rotated transforms.
func ReadWorldfile(path string) (Worldfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Worldfile{}, fmt.Errorf("read worldfile: %w", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) < 6 {
		return Worldfile{}, fmt.Errorf("worldfile %s: 6 values required, found %d", path, len(fields))
	}
	vals := make([]float64, 6)
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return Worldfile{}, fmt.Errorf("worldfile %s: line %d: %w", path, i+1, err)
		}
		vals[i] = v
	}
	wf := Worldfile{PixelW: vals[0], RotY: vals[1], RotX: vals[2], PixelH: vals[3], X: vals[4], Y: vals[5]}
	if wf.RotX != 0 || wf.RotY != 0 {
		return Worldfile{}, fmt.Errorf("worldfile %s: rotated transforms are not supported", path)
	}
	if wf.PixelW <= 0 || wf.PixelH >= 0 {
		return Worldfile{}, fmt.Errorf("worldfile %s: only north-up grids are supported (pixel size %g, %g)",
			path, wf.PixelW, wf.PixelH)
	}
	return wf, nil
}

// Grid converts the worldfile to a Grid for an image of cols x rows pixels,
// shifting from pixel-centre to corner origin.
func (wf Worldfile) Grid(cols, rows int) Grid {
	return Grid{
		OriginX: wf.X - wf.PixelW/2,
		OriginY: wf.Y - wf.PixelH/2,
		PixelW:  wf.PixelW,
		PixelH:  -wf.PixelH,
		Cols:    cols,
		Rows:    rows,
	}
}

// WorldfileFor builds the sidecar values describing g.
func WorldfileFor(g Grid) Worldfile {
	return Worldfile{
		PixelW: g.PixelW,
		PixelH: -g.PixelH,
		X:      g.OriginX + g.PixelW/2,
		Y:      g.OriginY - g.PixelH/2,
	}
}

// WriteWorldfile writes the sidecar for an image at imagePath describing g.
func WriteWorldfile(imagePath string, g Grid) error {
	wf := WorldfileFor(g)
	var sb strings.Builder
	for _, v := range []float64{wf.PixelW, wf.RotY, wf.RotX, wf.PixelH, wf.X, wf.Y} {
		sb.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(WorldfileName(imagePath), []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write worldfile: %w", err)
	}
	return nil
}
