package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/uav4geo/QRasterMerge/internal/mosaic"
	"github.com/uav4geo/QRasterMerge/internal/raster"
	"github.com/uav4geo/QRasterMerge/internal/report"
	"github.com/uav4geo/QRasterMerge/internal/statcache"
)

type mergeOpts struct {
	output        string
	blendDistance int
	equalize      string
	tileSize      int
	workers       int
	nodata        string
	preview       string
	reportPath    string
	noCache       bool
	job           string
}

// inputSpec is one input raster plus its no-data override, if any.
type inputSpec struct {
	path   string
	nodata *float64
}

func newMergeCmd() *cobra.Command {
	opts := &mergeOpts{}

	cmd := &cobra.Command{
		Use:   "merge [rasters...]",
		Short: "Blend input rasters into one mosaic",
		Long: `Merge composites two or more co-registered rasters into a single mosaic.
The first input is the reference layer: it fixes the pixel grid, band count
and sample type, and later inputs are aligned to it. Seams are feathered
over --blend-distance pixels, and --equalize matches each layer's histogram
to the reference before blending.

Inputs and outputs are ENVI rasters (.bsq, .dat, .img, .raw) or plain
images with worldfiles (.png, .jpg, .tif, ...). ENVI outputs stream tile
by tile, so the full mosaic never has to fit in memory.`,
		Example: `  qrastermerge merge -o mosaic.bsq east.png west.png
  qrastermerge merge -o mosaic.png --equalize lch --blend-distance 50 a.tif b.tif c.tif
  qrastermerge merge --job survey.toml --report matching.html`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd.Context(), cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "", "mosaic path, format chosen by extension")
	f.IntVar(&opts.blendDistance, "blend-distance", mosaic.DefaultBlendDistance, "feathering width in pixels")
	f.StringVar(&opts.equalize, "equalize", "rgb", "histogram matching: rgb, lch or none")
	f.IntVar(&opts.tileSize, "tile-size", mosaic.DefaultTileSize, "processing tile edge in pixels")
	f.IntVar(&opts.workers, "workers", 0, "compositing goroutines, 0 for one per CPU")
	f.StringVar(&opts.nodata, "nodata", "", "treat this sample value as transparent in image inputs")
	f.StringVar(&opts.preview, "preview", "", "also write a small preview image here")
	f.StringVar(&opts.reportPath, "report", "", "write an HTML histogram matching report here")
	f.BoolVar(&opts.noCache, "no-stats-cache", false, "recompute layer statistics even when cached")
	f.StringVar(&opts.job, "job", "", "read inputs and settings from a TOML job file")

	return cmd
}

func runMerge(ctx context.Context, cmd *cobra.Command, args []string, opts *mergeOpts) error {
	logger := loggerFromContext(ctx)

	var inputs []inputSpec
	if opts.job != "" {
		job, err := loadJob(opts.job)
		if err != nil {
			return err
		}
		job.apply(cmd.Flags(), opts)
		for _, in := range job.Inputs {
			inputs = append(inputs, inputSpec{path: in.Path, nodata: in.NoData})
		}
	}
	for _, path := range args {
		inputs = append(inputs, inputSpec{path: path})
	}

	if opts.output == "" {
		return errors.New("no output path: pass --output or set one in the job file")
	}
	if len(inputs) < 2 {
		return fmt.Errorf("need at least two input rasters, got %d", len(inputs))
	}
	mode, err := mosaic.ParseEqualizeMode(opts.equalize)
	if err != nil {
		return err
	}
	var globalND *float64
	if opts.nodata != "" {
		v, err := strconv.ParseFloat(opts.nodata, 64)
		if err != nil {
			return fmt.Errorf("parse --nodata %q: %w", opts.nodata, err)
		}
		globalND = &v
	}

	layers := make([]raster.Layer, 0, len(inputs))
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()
	for _, in := range inputs {
		nd := in.nodata
		if nd == nil {
			nd = globalND
		}
		l, closer, err := openLayer(in.path, nd)
		if err != nil {
			return fmt.Errorf("open %s: %w", in.path, err)
		}
		if closer != nil {
			closers = append(closers, closer)
		}
		layers = append(layers, l)
		logger.Debug("opened layer",
			"path", in.path,
			"size", fmt.Sprintf("%dx%d", l.Grid().Cols, l.Grid().Rows),
			"bands", l.Bands(),
			"type", l.DataType())
	}

	grid, err := mosaic.PlanGrid(layers)
	if err != nil {
		return err
	}
	ref := layers[0]
	dest, err := createDataset(opts.output, grid, ref.Bands(), ref.DataType(), globalND)
	if err != nil {
		return err
	}

	printer := &progressPrinter{log: logger}
	mopts := mosaic.Options{
		BlendDistance: opts.blendDistance,
		Equalize:      mode,
		TileSize:      opts.tileSize,
		Workers:       opts.workers,
		Progress:      printer.report,
		Logger:        logger,
	}
	if mode != mosaic.EqualizeNone && !opts.noCache {
		cache, err := openStatsCache()
		if err != nil {
			logger.Warn("statistics cache unavailable, recomputing", "err", err)
		} else {
			defer cache.Close()
			mopts.Stats = cache
			logger.Debug("statistics cache open", "path", cache.Path())
		}
	}

	res, err := mosaic.Merge(ctx, layers, dest, mopts)
	if err != nil {
		return err
	}

	printSuccess("mosaic written in %s", res.Elapsed.Round(10*time.Millisecond))
	printFile(opts.output)
	switch d := dest.(type) {
	case *raster.ENVIDataset:
		printFile(d.HeaderPath())
	case *imageDataset:
		printFile(raster.WorldfileName(opts.output))
	}
	printDetail("%d layers, %d bands, %dx%d pixels, %d tiles",
		res.Layers, res.Bands, res.Grid.Cols, res.Grid.Rows, res.TilesWritten)
	for _, mi := range res.Matching {
		if !mi.Overlap {
			printWarning("%s does not overlap %s, histograms matched on full extents", mi.Layer, mi.Reference)
		}
	}

	if opts.preview != "" {
		if err := writePreview(ctx, dest, opts.output, opts.preview); err != nil {
			return fmt.Errorf("write preview: %w", err)
		}
		printFile(opts.preview)
	}
	if opts.reportPath != "" {
		switch err := report.WriteFile(opts.reportPath, res); {
		case errors.Is(err, report.ErrNoMatching):
			printInfo("no histogram matching in this run, report skipped")
		case err != nil:
			return fmt.Errorf("write report: %w", err)
		default:
			printFile(opts.reportPath)
		}
	}
	return nil
}

func openStatsCache() (*statcache.Cache, error) {
	path, err := statcache.DefaultPath()
	if err != nil {
		return nil, err
	}
	return statcache.Open(path)
}

// progressPrinter forwards engine progress to the logger. Statistics events
// arrive once per layer and are all logged; compositing events arrive per
// tile and are thinned to one line per ten percent.
type progressPrinter struct {
	log *log.Logger

	mu      sync.Mutex
	lastPct int
}

func (p *progressPrinter) report(ev mosaic.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch ev.Phase {
	case mosaic.PhaseStatistics:
		p.log.Info("layer statistics ready", "layer", ev.Layer, "done", ev.Done, "total", ev.Total)
	case mosaic.PhaseCompositing:
		pct := int(ev.Fraction * 100)
		if pct < p.lastPct+10 && ev.Done < ev.Total {
			return
		}
		p.lastPct = pct - pct%10
		p.log.Info("compositing", "tiles", fmt.Sprintf("%d/%d", ev.Done, ev.Total), "pct", pct)
	case mosaic.PhaseFinalize:
		p.log.Info("finalizing output")
	}
}
