// Package report renders the histogram matching of a merge run as a
// self-contained HTML page, one chart per matched layer and channel.
package report

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/uav4geo/QRasterMerge/internal/histmatch"
	"github.com/uav4geo/QRasterMerge/internal/mosaic"
)

// maxPoints caps the samples per series so a 16-bit histogram does not
// balloon the page.
const maxPoints = 256

// ErrNoMatching is returned when the run carried no matching statistics,
// typically because equalization was off.
var ErrNoMatching = errors.New("report: run has no matching statistics")

// Render writes the report page for res to w. Each chart plots the
// cumulative distributions of one channel: reference, source, and the
// source after its transfer, which should trace the reference.
func Render(w io.Writer, res *mosaic.Result) error {
	if res == nil || len(res.Matching) == 0 {
		return ErrNoMatching
	}
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("merge %s", res.RunID)
	for _, mi := range res.Matching {
		for i, ch := range mi.Channels {
			if ch.Source == nil || ch.Reference == nil {
				continue
			}
			var fn histmatch.TransferFunc = histmatch.Identity{}
			if i < len(mi.Transfers) && mi.Transfers[i] != nil {
				fn = mi.Transfers[i]
			}
			page.AddCharts(channelChart(mi, ch, fn))
		}
	}
	return page.Render(w)
}

// WriteFile renders the report into a file at path.
func WriteFile(path string, res *mosaic.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Render(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func channelChart(mi mosaic.MatchInfo, ch histmatch.ChannelStats, fn histmatch.TransferFunc) *charts.Line {
	subtitle := fmt.Sprintf("source mean %.2f sd %.2f, reference mean %.2f sd %.2f",
		ch.Source.Mean(), ch.Source.StdDev(), ch.Reference.Mean(), ch.Reference.StdDev())
	if !mi.Overlap {
		subtitle += " (full extents, no overlap)"
	}
	if mi.Cached {
		subtitle += " (cached)"
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "960px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s matched to %s, %s", mi.Layer, mi.Reference, ch.Name),
			Subtitle: subtitle,
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "sample value", Type: "value"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "cumulative share", Min: 0, Max: 1}),
	)

	line.AddSeries("reference", cdfSeries(ch.Reference)).
		AddSeries("source", cdfSeries(ch.Source)).
		AddSeries("matched", cdfSeries(rebin(ch.Source, ch.Reference, fn)))
	return line
}

// cdfSeries turns a histogram's CDF into value/share pairs, strided down to
// at most maxPoints+1 points.
func cdfSeries(h *histmatch.Histogram) []opts.LineData {
	cdf := h.CDF()
	bins := len(cdf)
	stride := 1
	if bins > maxPoints {
		stride = (bins + maxPoints - 1) / maxPoints
	}
	var data []opts.LineData
	for i := 0; i < bins; i += stride {
		data = append(data, opts.LineData{Value: []interface{}{h.Value(i), cdf[i]}})
	}
	if (bins-1)%stride != 0 {
		i := bins - 1
		data = append(data, opts.LineData{Value: []interface{}{h.Value(i), cdf[i]}})
	}
	return data
}

// rebin counts src's samples at their transferred values, shaped like ref.
func rebin(src, ref *histmatch.Histogram, fn histmatch.TransferFunc) *histmatch.Histogram {
	var m *histmatch.Histogram
	if ref.Discrete {
		m = histmatch.NewDiscrete(ref.Min, len(ref.Counts))
	} else if c, err := histmatch.NewContinuous(ref.Min, ref.Max, len(ref.Counts)); err == nil {
		m = c
	} else {
		m = histmatch.NewDiscrete(ref.Min, len(ref.Counts))
	}
	for i, c := range src.Counts {
		if c == 0 {
			continue
		}
		m.AddN(fn.Apply(src.Value(i)), c)
	}
	return m
}
