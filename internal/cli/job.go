package cli

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
)

// jobSpec is the TOML shape of a merge job file. Every field mirrors a merge
// flag; flags given on the command line win over job values.
type jobSpec struct {
	Output        string     `toml:"output"`
	BlendDistance *int       `toml:"blend_distance"`
	Equalize      string     `toml:"equalize"`
	TileSize      *int       `toml:"tile_size"`
	Workers       *int       `toml:"workers"`
	NoData        *float64   `toml:"nodata"`
	Preview       string     `toml:"preview"`
	Report        string     `toml:"report"`
	NoStatsCache  bool       `toml:"no_stats_cache"`
	Inputs        []jobInput `toml:"input"`
}

// jobInput is one [[input]] block. The first input is the mosaic reference
// layer, so block order matters.
type jobInput struct {
	Path   string   `toml:"path"`
	NoData *float64 `toml:"nodata"`
}

func loadJob(path string) (*jobSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var job jobSpec
	if err := toml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parse job %s: %w", path, err)
	}
	for i, in := range job.Inputs {
		if in.Path == "" {
			return nil, fmt.Errorf("parse job %s: input %d has no path", path, i+1)
		}
	}
	return &job, nil
}

// apply copies job values into opts for every flag the user did not set on
// the command line.
func (j *jobSpec) apply(flags *pflag.FlagSet, opts *mergeOpts) {
	if j.Output != "" && !flags.Changed("output") {
		opts.output = j.Output
	}
	if j.BlendDistance != nil && !flags.Changed("blend-distance") {
		opts.blendDistance = *j.BlendDistance
	}
	if j.Equalize != "" && !flags.Changed("equalize") {
		opts.equalize = j.Equalize
	}
	if j.TileSize != nil && !flags.Changed("tile-size") {
		opts.tileSize = *j.TileSize
	}
	if j.Workers != nil && !flags.Changed("workers") {
		opts.workers = *j.Workers
	}
	if j.NoData != nil && !flags.Changed("nodata") {
		opts.nodata = fmt.Sprintf("%g", *j.NoData)
	}
	if j.Preview != "" && !flags.Changed("preview") {
		opts.preview = j.Preview
	}
	if j.Report != "" && !flags.Changed("report") {
		opts.reportPath = j.Report
	}
	if j.NoStatsCache && !flags.Changed("no-stats-cache") {
		opts.noCache = true
	}
}
