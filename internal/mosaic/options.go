package mosaic

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/uav4geo/QRasterMerge/internal/histmatch"
)

// EqualizeMode selects how histogram matching runs before compositing.
type EqualizeMode int

const (
	// EqualizeRGB matches each band independently against the reference
	// layer. The default.
	EqualizeRGB EqualizeMode = iota
	// EqualizeLCh matches lightness, chroma and hue channels instead,
	// preserving hue relationships under strong exposure differences.
	// Requires three-band integer imagery.
	EqualizeLCh
	// EqualizeNone skips matching; layers keep their tonality.
	EqualizeNone
)

func (m EqualizeMode) String() string {
	switch m {
	case EqualizeRGB:
		return "rgb"
	case EqualizeLCh:
		return "lch"
	case EqualizeNone:
		return "none"
	default:
		return fmt.Sprintf("EqualizeMode(%d)", int(m))
	}
}

// ParseEqualizeMode reads a mode name as given on a command line.
func ParseEqualizeMode(s string) (EqualizeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rgb", "":
		return EqualizeRGB, nil
	case "lch":
		return EqualizeLCh, nil
	case "none", "off", "no":
		return EqualizeNone, nil
	default:
		return 0, fmt.Errorf("unknown equalize mode %q (rgb, lch or none)", s)
	}
}

// StatsCache persists layer statistics between runs. Implemented by
// statcache.Cache; nil disables caching.
type StatsCache interface {
	Get(key string) (*histmatch.LayerStats, bool, error)
	Put(key string, stats *histmatch.LayerStats) error
}

// DefaultBlendDistance is the feathering width in pixels when none is
// given.
const DefaultBlendDistance = 30

// DefaultTileSize is the edge length of the square processing tiles.
const DefaultTileSize = 256

// Options tune a merge run. The zero value is usable: RGB matching,
// default blend distance and tile size, one worker per CPU.
type Options struct {
	// BlendDistance is the feathering width in pixels, at least 1.
	// 0 means DefaultBlendDistance.
	BlendDistance int

	// Equalize selects the histogram matching mode.
	Equalize EqualizeMode

	// TileSize is the processing tile edge in pixels. 0 means
	// DefaultTileSize.
	TileSize int

	// Workers bounds compositing concurrency. 0 means runtime.NumCPU().
	Workers int

	// Progress, when set, receives events as phases advance. Called from
	// the engine's goroutines; keep it fast.
	Progress func(Progress)

	// Stats caches histogram statistics between runs. Nil disables.
	Stats StatsCache

	// Logger receives run diagnostics. Nil means a silent logger.
	Logger *log.Logger
}

func (o Options) withDefaults() Options {
	if o.BlendDistance == 0 {
		o.BlendDistance = DefaultBlendDistance
	}
	if o.TileSize == 0 {
		o.TileSize = DefaultTileSize
	}
	if o.Workers == 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	return o
}
