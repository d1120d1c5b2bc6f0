package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/uav4geo/QRasterMerge/internal/raster"
)

// previewMaxDim bounds the long edge of --preview output.
const previewMaxDim = 1024

var enviExts = map[string]bool{
	".bsq": true,
	".dat": true,
	".img": true,
	".raw": true,
}

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
	".gif":  true,
}

// openLayer opens one input raster by extension. The returned closer is nil
// for inputs that are fully decoded into memory. nodata is honored for image
// inputs; ENVI inputs carry their own data ignore value in the header.
func openLayer(path string, nodata *float64) (raster.Layer, io.Closer, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case enviExts[ext]:
		l, err := raster.OpenENVI(path)
		if err != nil {
			return nil, nil, err
		}
		return l, l, nil
	case imageExts[ext]:
		l, err := raster.OpenImage(path, nodata)
		if err != nil {
			return nil, nil, err
		}
		return l, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported input format %q: want ENVI (.bsq, .dat, .img, .raw) or image (.png, .jpg, .tif, ...)", ext)
	}
}

// createDataset creates the mosaic destination named by path. ENVI extensions
// stream tiles straight to disk; image extensions buffer the mosaic in memory
// and encode it on Finalize.
func createDataset(path string, grid raster.Grid, bands int, dtype raster.DataType, nodata *float64) (raster.Dataset, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case enviExts[ext]:
		return raster.CreateENVI(path, grid, bands, dtype, nodata)
	case imageExts[ext]:
		if !dtype.Integral() {
			return nil, fmt.Errorf("image output %s cannot hold %s samples, use an ENVI path (.bsq, .dat)", filepath.Base(path), dtype)
		}
		if bands != 1 && bands < 3 {
			return nil, fmt.Errorf("image output %s cannot hold %d bands", filepath.Base(path), bands)
		}
		return &imageDataset{
			MemoryDataset: raster.NewMemoryDataset(grid, bands, dtype),
			path:          path,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q: want ENVI (.bsq, .dat, .img, .raw) or image (.png, .jpg, .tif, ...)", ext)
	}
}

// imageDataset is a memory-backed destination that encodes to an image file
// plus worldfile when the merge finalizes. Until Finalize succeeds nothing
// exists on disk, so a crashed or cancelled run leaves no partial output.
type imageDataset struct {
	*raster.MemoryDataset
	path string
}

func (d *imageDataset) Finalize(ctx context.Context) error {
	if err := d.MemoryDataset.Finalize(ctx); err != nil {
		return err
	}
	img, err := d.MemoryDataset.Image()
	if err != nil {
		return err
	}
	if err := imaging.Save(img, d.path); err != nil {
		os.Remove(d.path)
		return err
	}
	return raster.WriteWorldfile(d.path, d.Grid())
}

func (d *imageDataset) Discard() error {
	err := d.MemoryDataset.Discard()
	if rmErr := os.Remove(d.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

// writePreview renders a small inspection image of the finished mosaic.
// Memory-backed outputs are resampled from the full-resolution render;
// ENVI outputs are re-opened and sampled tile by tile so the preview never
// loads the whole mosaic.
func writePreview(ctx context.Context, dest raster.Dataset, outputPath, previewPath string) error {
	switch d := dest.(type) {
	case *imageDataset:
		img, err := d.Image()
		if err != nil {
			return err
		}
		g := d.Grid()
		pw, ph := fitDim(g.Cols, g.Rows, previewMaxDim)
		if pw == g.Cols && ph == g.Rows {
			return imaging.Save(img, previewPath)
		}
		return imaging.Save(imaging.Resize(img, pw, ph, imaging.Lanczos), previewPath)
	case *raster.ENVIDataset:
		l, err := raster.OpenENVI(outputPath)
		if err != nil {
			return err
		}
		defer l.Close()
		img, err := raster.Preview(ctx, l, previewMaxDim)
		if err != nil {
			return err
		}
		return imaging.Save(img, previewPath)
	default:
		return fmt.Errorf("preview not supported for this output")
	}
}

// fitDim shrinks cols x rows to fit maxDim on the long edge, preserving
// aspect. Dimensions already inside the box are returned unchanged.
func fitDim(cols, rows, maxDim int) (int, int) {
	if cols <= maxDim && rows <= maxDim {
		return cols, rows
	}
	if cols >= rows {
		h := rows * maxDim / cols
		if h < 1 {
			h = 1
		}
		return maxDim, h
	}
	w := cols * maxDim / rows
	if w < 1 {
		w = 1
	}
	return w, maxDim
}
